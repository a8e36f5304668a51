package report

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

type fakePublisher struct {
	mu       sync.Mutex
	channel  string
	messages [][]byte
	err      error
	// when set, Publish blocks until it is closed or ctx expires
	release chan struct{}
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return redis.NewIntResult(0, ctx.Err())
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = channel
	if b, ok := message.([]byte); ok {
		f.messages = append(f.messages, b)
	}
	return redis.NewIntResult(1, f.err)
}

func (f *fakePublisher) sent() (string, [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channel, append([][]byte(nil), f.messages...)
}

func TestRedisPublisher_PublishesJSON(t *testing.T) {
	fp := &fakePublisher{}
	p := NewRedisPublisher(nil, fp, "")

	p.OnProbeUpdate("B@1", domain.ProbeResult{Status: domain.StatusDetected, Reason: domain.ReasonRead})
	p.OnRunComplete(0, 1)
	p.Close()

	channel, msgs := fp.sent()
	if channel != DefaultChannel {
		t.Fatalf("channel = %q", channel)
	}
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(msgs))
	}

	var ev Event
	if err := json.Unmarshal(msgs[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventProbe || ev.InstanceID != "B@1" || ev.Result.Reason != domain.ReasonRead {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if err := json.Unmarshal(msgs[1], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventRun || ev.Total != 1 {
		t.Fatalf("events out of order: %+v", ev)
	}
}

func TestRedisPublisher_LogsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fp := &fakePublisher{err: errors.New("connection refused")}
	p := NewRedisPublisher(zap.New(core), fp, "custom")

	p.OnRunComplete(1, 1)
	p.Close()

	if logs.FilterMessage("redis_publish_failed").Len() != 1 {
		t.Fatalf("expected one redis_publish_failed log, got %d", logs.Len())
	}
}

func TestRedisPublisher_SlowRedisDoesNotBlockSink(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fp := &fakePublisher{release: make(chan struct{})}
	p := newRedisPublisher(zap.New(core), fp, "", 2)
	p.Timeout = 5 * time.Second

	start := time.Now()
	for i := 0; i < 10; i++ {
		p.OnProbeUpdate("A", domain.ProbeResult{Status: domain.StatusSuccess})
	}
	p.OnRunComplete(10, 10)
	if el := time.Since(start); el > 100*time.Millisecond {
		t.Fatalf("sink calls blocked for %v", el)
	}

	// one event in flight plus two buffered; the rest overflow
	if p.Dropped() < 8 {
		t.Fatalf("want at least 8 dropped, got %d", p.Dropped())
	}
	if logs.FilterMessage("redis_queue_full").Len() != int(p.Dropped()) {
		t.Fatalf("want one redis_queue_full log per drop, got %d", logs.FilterMessage("redis_queue_full").Len())
	}

	close(fp.release)
	p.Close()

	_, msgs := fp.sent()
	if got := int64(len(msgs)) + p.Dropped(); got != 11 {
		t.Fatalf("sent + dropped = %d, want 11", got)
	}
}

func TestRedisPublisher_CloseIsIdempotent(t *testing.T) {
	fp := &fakePublisher{}
	p := NewRedisPublisher(nil, fp, "")
	p.Close()
	p.Close()

	// events after Close are ignored
	p.OnRunComplete(1, 1)
	if _, msgs := fp.sent(); len(msgs) != 0 {
		t.Fatalf("want no messages after close, got %d", len(msgs))
	}
}
