// Command sms-bridge runs the SMS-to-operator OTP delivery bridge: it
// ingests SMS records and edge-node telemetry over HTTP, forwards OTPs to
// Telegram with an email fallback, holds exhausted deliveries in a dead
// letter office, and escalates node health problems to an external
// automation endpoint. Grounded on the teacher's cmd/notify-server/main.go
// wiring order (log setup, config load, service construction, signal-
// driven graceful shutdown), adapted from a scraper/notifier topology to
// the bridge's queue/dlo/health/ctoagent/api topology.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/cellbridge/sms-bridge/internal/api"
	"github.com/cellbridge/sms-bridge/internal/bridge"
	"github.com/cellbridge/sms-bridge/internal/config"
	"github.com/cellbridge/sms-bridge/internal/ctoagent"
	"github.com/cellbridge/sms-bridge/internal/cryptobox"
	"github.com/cellbridge/sms-bridge/internal/dispatch/email"
	"github.com/cellbridge/sms-bridge/internal/dispatch/telegram"
	"github.com/cellbridge/sms-bridge/internal/dlo"
	"github.com/cellbridge/sms-bridge/internal/events"
	"github.com/cellbridge/sms-bridge/internal/health"
	"github.com/cellbridge/sms-bridge/internal/pkg/version"
	"github.com/cellbridge/sms-bridge/internal/queue"
	"github.com/cellbridge/sms-bridge/internal/queue/durable"
	"github.com/cellbridge/sms-bridge/internal/scheduler"
	applog "github.com/cellbridge/sms-bridge/pkg/log"
)

// Build metadata, injected at link time via -ldflags.
var (
	Version     = "dev"
	BuildDate   = "unknown"
	BuildNumber = "0"
)

const appName = "sms-bridge"

// Exit codes, per the external interface contract: 0 clean shutdown,
// 1 configuration error, 2 unrecoverable runtime error.
const (
	exitOK           = 0
	exitConfigError  = 1
	exitRuntimeError = 2
)

func main() {
	logOpts := applog.NewProductionOptions(appName)
	logOpts.EnableConsoleLog = true
	logOpts.CallerPathPrefix = "github.com/cellbridge/sms-bridge"

	closer, err := applog.Setup(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(exitConfigError)
	}
	defer closer.Close()

	version.Set(version.Info{
		Version:     Version,
		BuildDate:   BuildDate,
		BuildNumber: BuildNumber,
		GoVersion:   runtime.Version(),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
	})

	cfg, err := config.Load()
	if err != nil {
		applog.WithComponentAndFields("main", applog.Fields{"error": err}).Error("failed to load configuration")
		os.Exit(exitConfigError)
	}

	if err := run(cfg); err != nil {
		applog.WithComponentAndFields("main", applog.Fields{"error": err}).Error("fatal runtime error")
		os.Exit(exitRuntimeError)
	}
	os.Exit(exitOK)
}

func run(cfg *config.AppConfig) error {
	key, err := decodeFernetKey(cfg.FernetEncryptionKey)
	if err != nil {
		return fmt.Errorf("invalid fernet encryption key: %w", err)
	}
	box, err := cryptobox.New(key)
	if err != nil {
		return fmt.Errorf("failed to construct cryptobox: %w", err)
	}

	telegramDispatcher, err := telegram.New(telegram.Config{
		BotToken:      cfg.TelegramBotToken,
		ChatID:        cfg.TelegramChatID,
		RatePerSecond: 30,
		Burst:         30,
	}, box)
	if err != nil {
		return fmt.Errorf("failed to construct telegram dispatcher: %w", err)
	}

	emailDispatcher := email.New(email.Config{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
		To:   cfg.SMTPTo,
	}, box)

	bus := events.New()

	q := queue.New(queue.Config{
		Capacity:   cfg.QueueCapacity,
		Workers:    cfg.WorkerCount,
		MaxRetries: cfg.MaxRetries,
	}, telegramDispatcher, emailDispatcher, bus)

	if cfg.QueueDurableRedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := durable.New(ctx, durable.Config{Addr: cfg.QueueDurableRedisAddr})
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect durable dedup store: %w", err)
		}
		defer store.Close()
		q = q.WithDurableDedup(store)
	}

	office := dlo.New(dlo.Config{
		MaxSize: cfg.DLOMax,
		TTL:     time.Duration(cfg.DLOTTLSec) * time.Second,
	})

	monitor := health.New(health.Config{
		HeartbeatTimeout: time.Duration(cfg.HeartbeatTimeoutSec) * time.Second,
		BatteryLowMV:     cfg.BatteryLowMV,
		WifiWeakDBM:      cfg.WifiWeakDBM,
		DLOGrowthMax:     cfg.DLOMax / 2,
	}, bus)

	agent := ctoagent.New(ctoagent.Config{
		WebhookURL:    cfg.N8NWebhookURL,
		WebhookSecret: cfg.N8NWebhookSecret,
		Cooldown:      time.Duration(cfg.CTOCooldownSec) * time.Second,
	})

	facade := bridge.New(bus, q, office, monitor, agent, box)

	jobs := []scheduler.Job{
		{
			Name: "dlo-prune-expired",
			Spec: "0 * * * * *",
			Run: func() {
				pruned := office.PruneExpired()
				if pruned > 0 {
					applog.WithComponentAndFields("main", applog.Fields{"pruned": pruned}).Info("pruned expired dead letters")
				}
			},
		},
		{
			Name: "health-evaluate",
			Spec: "*/15 * * * * *",
			Run: func() {
				snap := q.Snapshot()
				dloSnap := office.Snapshot()
				monitor.Evaluate(snap.Depth, snap.Capacity, dloSnap.Size)
			},
		},
	}
	sched := scheduler.New(jobs)

	handler := api.NewHandler(facade, agent, telegramDispatcher)
	httpServer := api.NewServer(api.ServerConfig{}, handler)

	stopCtx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	q.Start()
	sched.Start(stopCtx, wg)

	wg.Add(1)
	go func() {
		defer wg.Done()
		applog.WithComponentAndFields("main", applog.Fields{"addr": cfg.ListenAddr}).Info("starting http server")
		if err := httpServer.Start(cfg.ListenAddr); err != nil {
			applog.WithComponentAndFields("main", applog.Fields{"error": err}).Warn("http server stopped")
		}
	}()

	term := make(chan os.Signal, 1)
	signal.Notify(term, syscall.SIGINT, syscall.SIGTERM)
	<-term

	applog.WithComponent("main").Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	q.Stop()
	wg.Wait()

	return nil
}

func decodeFernetKey(raw string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(key) != cryptobox.KeySize {
		return nil, fmt.Errorf("encryption key must decode to %d bytes, got %d", cryptobox.KeySize, len(key))
	}
	return key, nil
}
