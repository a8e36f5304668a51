package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/dpiprobe/internal/domain"
	"github.com/hamed0406/dpiprobe/internal/notify"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
	SendTimeout     time.Duration
}

// Alerter is a sink that notifies when consecutive runs flip between all
// passed and degraded.
type Alerter struct {
	logger   *zap.Logger
	notifier notify.Notifier
	cfg      AlerterConfig
	now      func() time.Time

	mu         sync.Mutex
	failures   map[string]domain.ProbeResult
	known      bool
	lastOK     bool
	lastSentAt time.Time

	wg sync.WaitGroup
}

func NewAlerter(logger *zap.Logger, notifier notify.Notifier, cfg AlerterConfig) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return &Alerter{
		logger:   logger,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		failures: make(map[string]domain.ProbeResult),
	}
}

func (a *Alerter) OnProbeUpdate(instanceID string, res domain.ProbeResult) {
	if res.Passed() {
		return
	}
	a.mu.Lock()
	a.failures[instanceID] = res
	a.mu.Unlock()
}

func (a *Alerter) OnRunComplete(successCount, totalCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	failures := a.failures
	a.failures = make(map[string]domain.ProbeResult)

	ok := successCount == totalCount
	now := a.now()

	stateChanged := !a.known || a.lastOK != ok

	// Cooldown only applies to degraded alerts.
	cooled := a.lastSentAt.IsZero() || now.Sub(a.lastSentAt) >= a.cfg.Cooldown

	downAlert := stateChanged && !ok && cooled
	recoveryAlert := stateChanged && ok && a.known && a.cfg.AlertOnRecovery

	a.known = true
	a.lastOK = ok

	if !downAlert && !recoveryAlert {
		return
	}
	a.lastSentAt = now

	title := "Probe run degraded"
	if ok {
		title = "Probe run recovered"
	}
	text := summary(successCount, totalCount, failures)
	a.send(title, text)
}

func (a *Alerter) send(title, text string) {
	if a.notifier == nil {
		a.logger.Info("alert_skipped_no_notifier", zap.String("title", title))
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SendTimeout)
		defer cancel()
		if err := a.notifier.Send(ctx, title, text); err != nil {
			a.logger.Warn("alert_send_failed", zap.String("title", title), zap.Error(err))
			return
		}
		a.logger.Info("alert_sent", zap.String("title", title))
	}()
}

// Flush waits for in-flight notifications.
func (a *Alerter) Flush() {
	a.wg.Wait()
}

func summary(passed, total int, failures map[string]domain.ProbeResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Passed: %d/%d", passed, total)

	ids := make([]string, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := failures[id]
		fmt.Fprintf(&b, "\n%s: %s", id, r.Status)
		if r.Reason != domain.ReasonNone {
			fmt.Fprintf(&b, " (%s)", r.Reason)
		}
		if r.DNSClass != "" {
			fmt.Fprintf(&b, " dns=%s", r.DNSClass)
		}
		fmt.Fprintf(&b, " %.0f ms", r.DurationMS)
	}
	return b.String()
}
