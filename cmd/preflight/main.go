// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hamed0406/dpiprobe/internal/catalog"
	"github.com/hamed0406/dpiprobe/internal/config"
	"github.com/hamed0406/dpiprobe/internal/probe"
)

func main() {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.FromEnv()
	if err != nil {
		fail(err.Error())
		os.Exit(1)
	}
	ok(fmt.Sprintf("API_ADDR=%s", cfg.Addr))
	ok(fmt.Sprintf("probe threshold=%dB timeout=%s stagger=%s", cfg.ThresholdBytes, cfg.ProbeTimeout, cfg.Stagger))

	if len(cfg.AdminAPIKeys) == 0 {
		fail("ADMIN_API_KEYS is empty (anyone can start runs).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty; read routes accept admin keys only.")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty: CORS allows every origin.")
	} else {
		ok(fmt.Sprintf("ALLOWED_ORIGINS=%v", cfg.AllowedOrigins))
	}

	defs, err := catalog.Resolve(cfg.CatalogPath, cfg.ProbeIDs, cfg.ProbeProviders)
	switch {
	case err != nil:
		fail(err.Error())
	case len(defs) == 0:
		warn("catalog filters match no probes; runs will complete immediately with 0/0.")
	default:
		total := 0
		for _, d := range defs {
			total += d.RepeatCount
		}
		ok(fmt.Sprintf("catalog: %d probes, %d instances", len(defs), total))
	}

	if cfg.ProbeTimeout < time.Second {
		warn("PROBE_TIMEOUT under 1s will flag slow but open paths as detected.")
	}

	if cfg.SlackWebhookURL == "" && cfg.TelegramBotToken == "" {
		warn("no notifier configured; degraded runs are only logged.")
	}
	if (cfg.TelegramBotToken == "") != (cfg.TelegramChatID == "") {
		fail("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			fail(fmt.Sprintf("redis %s unreachable: %v", cfg.RedisAddr, err))
		} else {
			ok("redis reachable at " + cfg.RedisAddr)
		}
		_ = rdb.Close()
	}

	if cfg.DNSServer != "" {
		st := probe.NewDNSChecker(cfg.DNSServer, cfg.DNSTimeout).Check(ctx, "example.com")
		if st.Class != probe.DNSResolves {
			fail(fmt.Sprintf("DNS_SERVER %s: %s %s", cfg.DNSServer, st.Class, st.ResolverError))
		} else {
			ok("DNS_SERVER answers: " + cfg.DNSServer)
		}
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}
