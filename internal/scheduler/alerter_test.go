package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

type memNotifier struct {
	mu     sync.Mutex
	titles []string
	texts  []string
}

func (m *memNotifier) Send(ctx context.Context, title, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles = append(m.titles, title)
	m.texts = append(m.texts, text)
	return nil
}

func (m *memNotifier) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.titles...)
}

func degradedRun(a *Alerter) {
	a.OnProbeUpdate("A", domain.ProbeResult{Status: domain.StatusSuccess})
	a.OnProbeUpdate("B@0", domain.ProbeResult{Status: domain.StatusDetected, Reason: domain.ReasonConnect, DurationMS: 5000})
	a.OnRunComplete(1, 2)
}

func healthyRun(a *Alerter) {
	a.OnProbeUpdate("A", domain.ProbeResult{Status: domain.StatusSuccess})
	a.OnRunComplete(1, 1)
}

func TestAlerter_DegradedThenRecovered(t *testing.T) {
	n := &memNotifier{}
	a := NewAlerter(zap.NewNop(), n, AlerterConfig{AlertOnRecovery: true, Cooldown: time.Minute})

	degradedRun(a)
	a.Flush()
	degradedRun(a) // same state, no alert
	a.Flush()
	healthyRun(a)
	a.Flush()

	got := n.sent()
	if len(got) != 2 || got[0] != "Probe run degraded" || got[1] != "Probe run recovered" {
		t.Fatalf("unexpected alerts: %v", got)
	}
	if !strings.Contains(n.texts[0], "Passed: 1/2") || !strings.Contains(n.texts[0], "B@0: detected (CONN)") {
		t.Fatalf("unexpected summary: %q", n.texts[0])
	}
	if strings.Contains(n.texts[0], "A:") {
		t.Fatalf("passed instances should not be listed: %q", n.texts[0])
	}
}

func TestAlerter_FirstHealthyRunIsSilent(t *testing.T) {
	n := &memNotifier{}
	a := NewAlerter(zap.NewNop(), n, AlerterConfig{AlertOnRecovery: true})

	healthyRun(a)
	a.Flush()

	if len(n.sent()) != 0 {
		t.Fatalf("no alert expected, got %v", n.sent())
	}
}

func TestAlerter_CooldownSuppressesFlapping(t *testing.T) {
	n := &memNotifier{}
	a := NewAlerter(zap.NewNop(), n, AlerterConfig{AlertOnRecovery: false, Cooldown: 10 * time.Minute})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	degradedRun(a) // alert
	now = now.Add(time.Minute)
	healthyRun(a) // recovery alerts disabled
	now = now.Add(time.Minute)
	degradedRun(a) // within cooldown
	now = now.Add(20 * time.Minute)
	healthyRun(a)
	now = now.Add(time.Minute)
	degradedRun(a) // cooled down
	a.Flush()

	if got := n.sent(); len(got) != 2 {
		t.Fatalf("want 2 degraded alerts, got %v", got)
	}
}

func TestAlerter_NilNotifier(t *testing.T) {
	a := NewAlerter(nil, nil, AlerterConfig{})
	degradedRun(a)
	a.Flush()
}
