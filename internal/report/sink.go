// Package report carries probe updates and run completions out of the
// scheduler to logs, in-memory feeds and external channels.
package report

import (
	"go.uber.org/zap"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

// Sink receives status updates. Calls arrive serialized, so an implementation
// sees OnRunComplete only after every OnProbeUpdate of that run. Sinks must
// not block for long and never fail the caller.
type Sink interface {
	OnProbeUpdate(instanceID string, res domain.ProbeResult)
	OnRunComplete(successCount, totalCount int)
}

// Multi fans out to every non-nil sink in order.
type Multi []Sink

func (m Multi) OnProbeUpdate(instanceID string, res domain.ProbeResult) {
	for _, s := range m {
		if s != nil {
			s.OnProbeUpdate(instanceID, res)
		}
	}
}

func (m Multi) OnRunComplete(successCount, totalCount int) {
	for _, s := range m {
		if s != nil {
			s.OnRunComplete(successCount, totalCount)
		}
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) OnProbeUpdate(string, domain.ProbeResult) {}
func (Nop) OnRunComplete(int, int)                   {}

// LogSink writes updates to a zap logger.
type LogSink struct {
	Logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{Logger: logger}
}

func (l *LogSink) OnProbeUpdate(instanceID string, res domain.ProbeResult) {
	l.Logger.Debug("probe_update",
		zap.String("instance_id", instanceID),
		zap.String("status", string(res.Status)),
		zap.String("reason", string(res.Reason)),
		zap.Float64("duration_ms", res.DurationMS),
	)
}

func (l *LogSink) OnRunComplete(successCount, totalCount int) {
	level := zap.InfoLevel
	if successCount < totalCount {
		level = zap.WarnLevel
	}
	l.Logger.Check(level, "run_complete").Write(
		zap.Int("passed", successCount),
		zap.Int("total", totalCount),
	)
}
