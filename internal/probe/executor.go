package probe

import (
	"context"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

const minDNSBudget = 100 * time.Millisecond

// Executor takes one probe instance to a terminal result: exactly one fetch,
// no retries.
type Executor struct {
	Logger  *zap.Logger
	Fetcher Fetcher
	Race    Race
	// DNS, when set, annotates CONN detections with a DNS classification.
	DNS *DNSChecker

	random func() float64
}

func NewExecutor(logger *zap.Logger, f Fetcher, threshold int64, deadline time.Duration) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		Logger:  logger,
		Fetcher: f,
		Race:    Race{Threshold: threshold, Deadline: deadline},
		random:  rand.Float64,
	}
}

// Check implements Checker.
func (e *Executor) Check(ctx context.Context, inst domain.ProbeInstance) domain.ProbeResult {
	target := e.uniqueURL(inst.URL)
	res := e.Race.Run(ctx, e.Fetcher, target)

	if e.DNS != nil && res.Status == domain.StatusDetected && res.Reason == domain.ReasonConnect {
		dctx, cancel := context.WithTimeout(ctx, e.dnsBudget())
		dns := e.DNS.Check(dctx, hostOf(inst.URL))
		cancel()
		res.DNSClass = dns.Class
		e.Logger.Debug("dns_check",
			zap.String("instance_id", inst.InstanceID),
			zap.String("domain", dns.Domain),
			zap.String("class", dns.Class),
			zap.Strings("ips", dns.IPs),
			zap.String("cname", dns.CNAME),
			zap.String("resolver_error", dns.ResolverError),
		)
	}

	fields := []zap.Field{
		zap.String("instance_id", inst.InstanceID),
		zap.String("provider", inst.Provider),
		zap.String("url", inst.URL),
		zap.String("status", string(res.Status)),
		zap.String("reason", string(res.Reason)),
		zap.String("detail", res.Detail),
		zap.Int("http_status", res.HTTPStatus),
		zap.Int64("bytes", res.Bytes),
		zap.Float64("duration_ms", res.DurationMS),
	}
	if res.Passed() {
		e.Logger.Info("probe_result", fields...)
	} else {
		e.Logger.Warn("probe_result", fields...)
	}
	return res
}

// dnsBudget bounds the CONN diagnostics so a slow resolver adds at most a
// quarter of the race deadline to the probe.
func (e *Executor) dnsBudget() time.Duration {
	d := e.Race.Deadline
	if d <= 0 {
		d = DefaultDeadline
	}
	b := d / 4
	if b < minDNSBudget {
		b = minDNSBudget
	}
	if e.DNS.Timeout > 0 && b > e.DNS.Timeout {
		b = e.DNS.Timeout
	}
	return b
}

// Run executes inst and completes tok exactly once.
func (e *Executor) Run(ctx context.Context, inst domain.ProbeInstance, tok *Token) {
	Execute(ctx, e, inst, tok)
}

// uniqueURL appends a random t= parameter so no cache can answer for the
// origin. The fragment is dropped since it is never sent anyway.
func (e *Executor) uniqueURL(raw string) string {
	rnd := e.random
	if rnd == nil {
		rnd = rand.Float64
	}
	return withCacheBuster(raw, strconv.FormatFloat(rnd(), 'f', -1, 64))
}

func withCacheBuster(raw, token string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "t=" + token
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
