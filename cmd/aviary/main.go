package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"
	"golang.org/x/sync/errgroup"

	"github.com/aviarybot/aviary/api"
	"github.com/aviarybot/aviary/bot"
	"github.com/aviarybot/aviary/health"
	"github.com/aviarybot/aviary/internal/config"
)

const (
	serviceName        = "Aviary"
	serviceDisplayName = "Aviary Bot"
	serviceDescription = "Runs a gateway-connected chat bot as a background service"
)

// daemon implements kardianos/service.Interface for the background
// service lifecycle.
type daemon struct {
	cfg    *config.Config
	cancel context.CancelFunc
}

func (d *daemon) Start(s service.Service) error {
	go d.run()
	return nil
}

func (d *daemon) Stop(s service.Service) error {
	slog.Info("service stop requested")
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}

func (d *daemon) run() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	defer cancel()

	if err := runBot(ctx, d.cfg); err != nil {
		slog.Error("bot exited with error", "error", err)
		os.Exit(1)
	}
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default: "+config.DefaultConfigPath+")")
		doInstall   = flag.Bool("install", false, "install as a background service")
		doUninstall = flag.Bool("uninstall", false, "uninstall the background service")
		doRun       = flag.Bool("run", false, "run in foreground (non-service mode)")
	)
	flag.Parse()

	initLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	initLogger(cfg.LogLevel)

	svcConfig := &service.Config{
		Name:        serviceName,
		DisplayName: serviceDisplayName,
		Description: serviceDescription,
		Arguments:   []string{},
	}

	d := &daemon{cfg: cfg}
	svc, err := service.New(d, svcConfig)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	switch {
	case *doInstall:
		if err := svc.Install(); err != nil {
			slog.Error("failed to install service", "error", err)
			os.Exit(1)
		}
		fmt.Println("Service installed successfully:", serviceName)
		return

	case *doUninstall:
		if err := svc.Stop(); err != nil {
			slog.Warn("failed to stop service (may not be running)", "error", err)
		}
		if err := svc.Uninstall(); err != nil {
			slog.Error("failed to uninstall service", "error", err)
			os.Exit(1)
		}
		fmt.Println("Service uninstalled successfully:", serviceName)
		return

	case *doRun:
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		slog.Info("starting aviary in foreground mode")
		if err := runBot(ctx, cfg); err != nil {
			slog.Error("bot exited with error", "error", err)
			os.Exit(1)
		}
		return

	default:
		if service.Interactive() {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := runBot(ctx, cfg); err != nil {
				slog.Error("bot exited with error", "error", err)
				os.Exit(1)
			}
		} else {
			if err := svc.Run(); err != nil {
				slog.Error("service run failed", "error", err)
				os.Exit(1)
			}
		}
	}
}

// runBot wires the api lookup client, the bot facade and the health
// server together and runs until ctx is canceled.
func runBot(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting aviary", "api_base_url", cfg.APIBaseURL)

	apiClient := api.NewClient(cfg.APIBaseURL, cfg.BotToken, slog.Default())
	b := bot.New(apiClient, cfg.BotToken, slog.Default())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.Run(gctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})

	if cfg.HealthAddr != "" {
		healthSrv := health.NewServer(cfg.HealthAddr, b, slog.Default())
		g.Go(func() error { return healthSrv.Run(gctx) })
	}

	return g.Wait()
}

// initLogger configures the global slog logger at the given level.
func initLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
