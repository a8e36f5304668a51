package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hamed0406/dpiprobe/internal/catalog"
	"github.com/hamed0406/dpiprobe/internal/config"
	"github.com/hamed0406/dpiprobe/internal/httpapi"
	apimw "github.com/hamed0406/dpiprobe/internal/httpapi/middleware"
	"github.com/hamed0406/dpiprobe/internal/logging"
	"github.com/hamed0406/dpiprobe/internal/notify"
	"github.com/hamed0406/dpiprobe/internal/probe"
	"github.com/hamed0406/dpiprobe/internal/report"
	"github.com/hamed0406/dpiprobe/internal/scheduler"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defs, err := catalog.Resolve(cfg.CatalogPath, cfg.ProbeIDs, cfg.ProbeProviders)
	if err != nil {
		logger.Fatal("catalog_load_failed", zap.Error(err))
	}

	exec := probe.NewExecutor(logger, probe.NewHTTPFetcher(), cfg.ThresholdBytes, cfg.ProbeTimeout)
	if cfg.DNSServer != "" {
		exec.DNS = probe.NewDNSChecker(cfg.DNSServer, cfg.DNSTimeout)
	}

	events := report.NewEventBus(cfg.EventBuffer)
	alerter := scheduler.NewAlerter(
		logger,
		notify.Build(cfg.SlackWebhookURL, cfg.TelegramBotToken, cfg.TelegramChatID),
		scheduler.AlerterConfig{AlertOnRecovery: cfg.AlertOnRecovery, Cooldown: cfg.AlertCooldown},
	)
	sinks := report.Multi{report.NewLogSink(logger), events, alerter}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			// keep running; publishes will fail and be logged until Redis is back
			logger.Warn("redis_unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			logger.Info("redis_connected", zap.String("addr", cfg.RedisAddr))
		}
		pub := report.NewRedisPublisher(logger, rdb, cfg.RedisChannel)
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	sched := scheduler.New(logger, defs, exec, cfg.Stagger, sinks)

	api := httpapi.NewServer(logger, sched, events)
	api.RunContext = ctx
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go scheduler.NewRechecker(logger, sched, cfg.ProbeInterval).Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("api_listen",
		zap.String("addr", cfg.Addr),
		zap.Int("probes", len(defs)),
		zap.Bool("dns_diagnostics", exec.DNS != nil),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("api_listen_failed", zap.Error(err))
	}

	// outstanding probes were cancelled with ctx; let them report before exit
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = sched.Wait(waitCtx)
	alerter.Flush()
	logger.Info("api_stopped")
}
