package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hamed0406/reachcheck/internal/config"
	"github.com/hamed0406/reachcheck/internal/diagnose"
	"github.com/hamed0406/reachcheck/internal/httpapi"
	apimw "github.com/hamed0406/reachcheck/internal/httpapi/middleware"
	"github.com/hamed0406/reachcheck/internal/logging"
	"github.com/hamed0406/reachcheck/internal/metrics"
	"github.com/hamed0406/reachcheck/internal/notify"
	"github.com/hamed0406/reachcheck/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "YAML or TOML config file (env vars still override)")
	flag.Parse()

	cfg := config.FromEnv()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(cfg.LogDir, logging.WithLevel(cfg.LogLevel), logging.WithConsole(os.Stderr))
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	d, err := diagnose.New(ctx, cfg, logger, m)
	if err != nil {
		logger.Fatal("diagnoser_init", zap.Error(err))
	}

	// The admin route shares the diagnoser's provisioner so both callers
	// serialize on the same lock.
	var prov diagnose.FirewallProvisioner
	if cfg.FirewallBackend != "none" {
		prov = d.Provisioner
	}

	api := httpapi.NewServer(logger, d, prov)
	api.Gatherer = reg

	if cfg.WatchInterval > 0 {
		var alerter *scheduler.Alerter
		if cfg.WebhookURL != "" {
			alerter = scheduler.NewAlerter(notify.NewSlack(cfg.WebhookURL), scheduler.AlerterConfig{
				AlertOnRecovery: cfg.AlertOnRecovery,
				Cooldown:        cfg.AlertCooldown,
			}, nil)
		}
		rc := scheduler.NewRechecker(logger, d, cfg.WatchInterval, alerter)
		api.Latest = rc
		go rc.Run(ctx)
	}

	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.RateLimitRPM, cfg.RateLimitBurst, cfg.RateLimitRPM, cfg.RateLimitBurst),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("api_listen", zap.String("addr", cfg.Addr), zap.Error(err))
	}
	logger.Info("api_listen", zap.String("addr", ln.Addr().String()))

	// Type=notify units wait for this before ordering dependents.
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("sd_notify_failed", zap.Error(err))
	} else if sent {
		logger.Info("sd_notify_ready")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("api_serve", zap.Error(err))
		}
	case <-ctx.Done():
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
		logger.Info("api_shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("api_shutdown_error", zap.Error(err))
		}
	}
}
