package probe

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

const (
	DefaultThreshold int64 = 64 * 1024
	DefaultDeadline        = 5 * time.Second

	readBufSize = 16 * 1024
)

// Race runs one fetch against a deadline. Whichever of {threshold reached,
// natural end of body, stream error, deadline} happens first decides the
// result; the other side is cancelled.
type Race struct {
	Threshold int64
	Deadline  time.Duration
}

// outcome is a two-state machine (pending -> resolved). Only the first
// resolve call has any effect.
type outcome struct {
	mu       sync.Mutex
	resolved bool
	res      domain.ProbeResult
	done     chan struct{}
}

func newOutcome() *outcome {
	return &outcome{done: make(chan struct{})}
}

func (o *outcome) resolve(res domain.ProbeResult) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.resolved {
		return false
	}
	o.resolved = true
	o.res = res
	close(o.done)
	return true
}

func (o *outcome) result() domain.ProbeResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.res
}

// raceRun carries the per-invocation state shared by the timer and the reader.
type raceRun struct {
	start     time.Time
	out       *outcome
	responded atomic.Bool
	status    atomic.Int64
	received  atomic.Int64
}

func (rr *raceRun) finish(st domain.Status, reason domain.Reason, detail string) {
	rr.out.resolve(domain.ProbeResult{
		Status:     st,
		DurationMS: time.Since(rr.start).Seconds() * 1000,
		Reason:     reason,
		Detail:     detail,
		HTTPStatus: int(rr.status.Load()),
		Bytes:      rr.received.Load(),
	})
}

// detected resolves as blocked. READ when a response had already been seen.
func (rr *raceRun) detected(detail string) {
	reason := domain.ReasonConnect
	if rr.responded.Load() {
		reason = domain.ReasonRead
	}
	rr.finish(domain.StatusDetected, reason, detail)
}

// Run fetches url through f and blocks until the race resolves. It always
// returns within Deadline (plus scheduling noise), even if f ignores ctx.
func (r Race) Run(ctx context.Context, f Fetcher, url string) domain.ProbeResult {
	threshold, deadline := r.Threshold, r.Deadline
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	rr := &raceRun{start: time.Now(), out: newOutcome()}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	timer := time.AfterFunc(deadline, func() {
		rr.detected(domain.DetailTimeout)
		cancel()
	})
	defer timer.Stop()

	go rr.consume(ctx, f, url, threshold)

	select {
	case <-rr.out.done:
	case <-ctx.Done():
		rr.detected(domain.DetailAborted)
	}
	return rr.out.result()
}

func (rr *raceRun) consume(ctx context.Context, f Fetcher, url string, threshold int64) {
	resp, err := f.Fetch(ctx, url)
	if err != nil {
		rr.failed(ctx)
		return
	}
	rr.status.Store(int64(resp.StatusCode))
	rr.responded.Store(true)

	if resp.Body == nil {
		rr.finish(domain.StatusWarning, domain.ReasonNone, domain.DetailNoBody)
		return
	}
	// Closing after EOF or after the race was lost is a no-op for callers.
	defer resp.Body.Close()

	buf := make([]byte, readBufSize)
	var total int64
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			total += int64(n)
			rr.received.Store(total)
			if total >= threshold {
				rr.finish(domain.StatusSuccess, domain.ReasonNone, domain.DetailThreshold)
				return
			}
		}
		if errors.Is(err, io.EOF) {
			rr.finish(domain.StatusWarning, domain.ReasonNone, domain.DetailEOF)
			return
		}
		if err != nil {
			rr.failed(ctx)
			return
		}
	}
}

// failed classifies a transport error. Errors caused by our own cancellation
// (deadline or parent abort) count as blocked, anything else as an error.
func (rr *raceRun) failed(ctx context.Context) {
	if ctx.Err() != nil {
		rr.detected(domain.DetailAborted)
		return
	}
	rr.finish(domain.StatusError, domain.ReasonNone, domain.DetailStreamError)
}
