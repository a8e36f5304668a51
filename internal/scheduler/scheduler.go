// Package scheduler drives probe runs: it expands the catalog, launches
// staggered instances and reports progress to a sink.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/dpiprobe/internal/aggregate"
	"github.com/hamed0406/dpiprobe/internal/domain"
	"github.com/hamed0406/dpiprobe/internal/probe"
	"github.com/hamed0406/dpiprobe/internal/report"
)

const DefaultStagger = 300 * time.Millisecond

type Scheduler struct {
	Logger  *zap.Logger
	Checker probe.Checker
	Stagger time.Duration
	Sink    report.Sink

	// mu guards run state and the aggregator. emitMu keeps sink calls in the
	// order the state changed.
	mu        sync.Mutex
	emitMu    sync.Mutex
	catalog   []domain.ProbeDefinition
	agg       *aggregate.Aggregator
	state     domain.RunState
	instances []domain.ProbeInstance
	done      chan struct{}
}

func New(
	logger *zap.Logger,
	catalog []domain.ProbeDefinition,
	checker probe.Checker,
	stagger time.Duration,
	sink report.Sink,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stagger < 0 {
		stagger = 0
	}
	if sink == nil {
		sink = report.Nop{}
	}
	return &Scheduler{
		Logger:  logger,
		Checker: checker,
		Stagger: stagger,
		Sink:    sink,
		catalog: append([]domain.ProbeDefinition(nil), catalog...),
		agg:     aggregate.New(),
	}
}

// Catalog returns a copy of the definitions this scheduler runs.
func (s *Scheduler) Catalog() []domain.ProbeDefinition {
	return append([]domain.ProbeDefinition(nil), s.catalog...)
}

// Start begins a new run. While a run is in progress it returns the current
// state and false without touching it. ctx bounds every probe of the run;
// cancelling it makes the outstanding probes resolve as detected.
func (s *Scheduler) Start(ctx context.Context) (domain.RunState, bool) {
	s.mu.Lock()
	if s.state.InProgress {
		st := s.state
		s.mu.Unlock()
		s.Logger.Info("run_already_in_progress",
			zap.String("run_id", st.RunID),
			zap.Int("completed", st.CompletedCount),
			zap.Int("total", st.TotalInstances),
		)
		return st, false
	}

	insts, dropped := dedupe(Expand(s.catalog))
	if len(dropped) > 0 {
		s.Logger.Warn("duplicate_instance_dropped", zap.Strings("instance_ids", dropped))
	}
	epoch := s.state.Epoch + 1
	s.agg.Reset(epoch)
	s.instances = insts
	s.done = make(chan struct{})
	s.state = domain.RunState{
		RunID:          uuid.NewString(),
		Epoch:          epoch,
		InProgress:     true,
		TotalInstances: len(insts),
		StartedAt:      time.Now().UTC(),
	}
	s.Logger.Info("run_started",
		zap.String("run_id", s.state.RunID),
		zap.Uint64("epoch", epoch),
		zap.Int("total", len(insts)),
		zap.Duration("stagger", s.Stagger),
	)

	if len(insts) == 0 {
		s.finishLocked()
		st := s.state
		done := s.done
		s.emitMu.Lock()
		s.mu.Unlock()
		s.Sink.OnRunComplete(0, 0)
		close(done)
		s.emitMu.Unlock()
		return st, true
	}

	st := s.state
	s.mu.Unlock()

	go s.launch(ctx, epoch, insts)
	return st, true
}

// launch starts instance i at i*Stagger after the run began. Once ctx is done
// the remaining instances go out immediately and resolve at once.
func (s *Scheduler) launch(ctx context.Context, epoch uint64, insts []domain.ProbeInstance) {
	begin := time.Now()
	for i, inst := range insts {
		if wait := time.Until(begin.Add(time.Duration(i) * s.Stagger)); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
		}

		id := inst.InstanceID
		tok := probe.NewToken(func(res domain.ProbeResult) {
			s.complete(epoch, id, res)
		})
		go probe.Execute(ctx, s.Checker, inst, tok)
	}
}

func (s *Scheduler) complete(epoch uint64, instanceID string, res domain.ProbeResult) {
	s.mu.Lock()
	if err := s.agg.Record(epoch, instanceID, res); err != nil {
		s.mu.Unlock()
		level := zap.WarnLevel
		if errors.Is(err, aggregate.ErrStaleEpoch) {
			level = zap.DebugLevel
		}
		s.Logger.Check(level, "result_discarded").Write(
			zap.String("instance_id", instanceID),
			zap.Uint64("epoch", epoch),
			zap.Error(err),
		)
		return
	}

	s.state.CompletedCount++
	finished := s.state.CompletedCount == s.state.TotalInstances
	var passed, total int
	var done chan struct{}
	if finished {
		s.finishLocked()
		passed, total = s.agg.Counts()
		done = s.done
	}

	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	s.Sink.OnProbeUpdate(instanceID, res)
	if finished {
		s.Logger.Info("run_finished",
			zap.Uint64("epoch", epoch),
			zap.Int("passed", passed),
			zap.Int("total", total),
		)
		s.Sink.OnRunComplete(passed, total)
		close(done)
	}
}

// finishLocked must be called with mu held.
func (s *Scheduler) finishLocked() {
	now := time.Now().UTC()
	s.state.InProgress = false
	s.state.FinishedAt = &now
}

// State returns a copy of the current run state.
func (s *Scheduler) State() domain.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyState(s.state)
}

// Snapshot returns the run state with its instances and results so far.
func (s *Scheduler) Snapshot() domain.RunSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	passed, _ := s.agg.Counts()
	return domain.RunSnapshot{
		RunState:     copyState(s.state),
		SuccessCount: passed,
		Instances:    append([]domain.ProbeInstance(nil), s.instances...),
		Results:      s.agg.Results(),
	}
}

// Wait blocks until the current run has completed and its sink calls have
// returned. It returns immediately when no run was ever started.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func copyState(st domain.RunState) domain.RunState {
	if st.FinishedAt != nil {
		t := *st.FinishedAt
		st.FinishedAt = &t
	}
	return st
}
