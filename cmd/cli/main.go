package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hamed0406/dpiprobe/internal/catalog"
	"github.com/hamed0406/dpiprobe/internal/domain"
	"github.com/hamed0406/dpiprobe/internal/probe"
	"github.com/hamed0406/dpiprobe/internal/scheduler"
)

// console prints updates as they arrive.
type console struct {
	mu      sync.Mutex
	out     io.Writer
	asJSON  bool
	passed  int
	total   int
	started time.Time
}

func (c *console) OnProbeUpdate(id string, res domain.ProbeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.asJSON {
		_ = json.NewEncoder(c.out).Encode(map[string]any{"instance_id": id, "result": res})
		return
	}
	line := fmt.Sprintf("%-14s %-9s %7.0f ms  %6d B", id, res.Status, res.DurationMS, res.Bytes)
	if res.Reason != domain.ReasonNone {
		line += "  " + string(res.Reason)
	}
	if res.DNSClass != "" {
		line += "  dns=" + res.DNSClass
	}
	fmt.Fprintln(c.out, line)
}

func (c *console) OnRunComplete(passed, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passed, c.total = passed, total
	if c.asJSON {
		_ = json.NewEncoder(c.out).Encode(map[string]int{"passed": passed, "total": total})
		return
	}
	fmt.Fprintf(c.out, "\npassed %d/%d in %s\n", passed, total, time.Since(c.started).Round(time.Millisecond))
}

func main() {
	var (
		catalogPath = pflag.String("catalog", "", "catalog file (yaml/json/toml); built-in catalog when empty")
		ids         = pflag.StringSlice("id", nil, "only run these probe ids")
		providers   = pflag.StringSlice("provider", nil, "only run probes of these providers")
		threshold   = pflag.Int64("threshold", probe.DefaultThreshold, "bytes that count as success")
		timeout     = pflag.Duration("timeout", probe.DefaultDeadline, "per-probe deadline")
		stagger     = pflag.Duration("stagger", scheduler.DefaultStagger, "delay between probe launches")
		dnsServer   = pflag.String("dns", "", "resolver for DNS diagnostics on CONN detections, e.g. 1.1.1.1:53")
		asJSON      = pflag.Bool("json", false, "print JSON lines")
		strict      = pflag.Bool("strict", false, "exit 1 unless every probe passed")
		verbose     = pflag.BoolP("verbose", "v", false, "log probe details to stderr")
	)
	pflag.Parse()

	if *threshold <= 0 || *timeout <= 0 || *stagger < 0 {
		fmt.Fprintln(os.Stderr, "threshold and timeout must be > 0, stagger >= 0")
		os.Exit(2)
	}

	defs, err := catalog.Resolve(*catalogPath, *ids, *providers)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exec := probe.NewExecutor(logger, probe.NewHTTPFetcher(), *threshold, *timeout)
	if *dnsServer != "" {
		exec.DNS = probe.NewDNSChecker(*dnsServer, 3*time.Second)
	}

	out := &console{out: os.Stdout, asJSON: *asJSON, started: time.Now()}
	sched := scheduler.New(logger, defs, exec, *stagger, out)

	sched.Start(ctx)
	// cancelling ctx makes every outstanding probe resolve, so this returns
	_ = sched.Wait(context.Background())

	if *strict && out.passed < out.total {
		os.Exit(1)
	}
}
