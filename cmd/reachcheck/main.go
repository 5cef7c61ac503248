// cmd/reachcheck/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hamed0406/reachcheck/internal/config"
	"github.com/hamed0406/reachcheck/internal/diagnose"
	"github.com/hamed0406/reachcheck/internal/logging"
	"github.com/hamed0406/reachcheck/internal/notify"
	"github.com/hamed0406/reachcheck/internal/report"
)

// exitSetup is used when no diagnostic could run at all; 0-2 are severities.
const exitSetup = 3

func main() {
	os.Exit(run())
}

func run() (code int) {
	var (
		configPath = flag.String("config", "", "YAML or TOML config file (env vars still override)")
		asJSON     = flag.Bool("json", false, "print the report as JSON")
		provision  = flag.Bool("provision", false, "add the bridge firewall rule when it is the remedy")
		port       = flag.Int("port", 0, "service port (overrides config)")
		verbose    = flag.Bool("v", false, "mirror logs to stderr")
	)
	flag.Parse()

	fail := func(msg string) int {
		fmt.Fprintln(os.Stderr, "✖", msg)
		return exitSetup
	}

	cfg := config.FromEnv()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return fail(err.Error())
		}
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if *provision {
		cfg.AutoProvision = true
	}
	if err := cfg.Validate(); err != nil {
		return fail("config invalid: " + err.Error())
	}

	opts := []logging.Option{logging.WithLevel(cfg.LogLevel)}
	if *verbose {
		opts = append(opts, logging.WithConsole(os.Stderr))
	}
	logger, err := logging.NewLogger(cfg.LogDir, opts...)
	if err != nil {
		return fail("logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic", zap.Any("recover", r), zap.Stack("stack"))
			code = fail(fmt.Sprintf("internal error: %v", r))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := diagnose.New(ctx, cfg, logger, nil)
	if err != nil {
		return fail(err.Error())
	}
	rep := d.Run(ctx)

	if *asJSON {
		err = report.JSON(os.Stdout, rep)
	} else {
		err = report.Text(os.Stdout, rep)
	}
	if err != nil {
		logger.Warn("report_write_failed", zap.Error(err))
	}

	if cfg.WebhookURL != "" {
		if _, err := notify.Report(ctx, notify.NewSlack(cfg.WebhookURL), rep); err != nil {
			fmt.Fprintln(os.Stderr, "⚠ webhook:", err)
		}
	}
	return rep.ExitCode()
}
