package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

type countingStarter struct {
	n atomic.Int32
}

func (c *countingStarter) Start(ctx context.Context) (domain.RunState, bool) {
	n := c.n.Add(1)
	// every other call pretends a run is still in progress
	return domain.RunState{RunID: "r", InProgress: n%2 == 0}, n%2 == 1
}

func TestRechecker_StartsImmediatelyAndOnTick(t *testing.T) {
	st := &countingStarter{}
	rc := NewRechecker(zap.NewNop(), st, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 75*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		rc.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("rechecker did not stop on ctx cancel")
	}
	if got := st.n.Load(); got < 3 {
		t.Fatalf("want at least 3 start attempts, got %d", got)
	}
}

func TestRechecker_DisabledReturns(t *testing.T) {
	st := &countingStarter{}
	rc := NewRechecker(nil, st, 0)
	rc.Run(context.Background())
	if st.n.Load() != 0 {
		t.Fatal("disabled rechecker should not start runs")
	}
}

func TestRechecker_DrivesScheduler(t *testing.T) {
	s := New(zap.NewNop(), defs("A", 1), instant(domain.StatusSuccess), 0, nil)
	rc := NewRechecker(zap.NewNop(), s, 30*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	rc.Run(ctx)

	waitRun(t, s, time.Second)
	if st := s.State(); st.Epoch < 2 {
		t.Fatalf("want several runs, got epoch %d", st.Epoch)
	}
}
