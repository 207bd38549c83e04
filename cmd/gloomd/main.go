// Gloomd serves named Bloom filters over a unix or TCP socket.
//
// Configuration comes from the file named by --config or GLOOMD_CONFIG,
// with command-line flags applied on top. When --metrics-address is set,
// Prometheus metrics are served on it at /metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	gloom "github.com/jcalabro/gloomd"
	"github.com/jcalabro/gloomd/internal/config"
	"github.com/jcalabro/gloomd/internal/metrics"
	"github.com/jcalabro/gloomd/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath     string
		network        string
		address        string
		metricsAddress string
		logLevel       string
		logFormat      string
	)

	flagSet := pflag.NewFlagSet("gloomd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&network, "network", "", "listen network, unix or tcp")
	flagSet.StringVar(&address, "address", "", "socket path (unix) or host:port (tcp)")
	flagSet.StringVar(&metricsAddress, "metrics-address", "", "host:port for the Prometheus endpoint")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.StringVar(&logFormat, "log-format", "", "text or json")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Flags override the file.
	for _, override := range []struct {
		flag   string
		value  string
		target *string
	}{
		{"network", network, &cfg.Listen.Network},
		{"address", address, &cfg.Listen.Address},
		{"metrics-address", metricsAddress, &cfg.MetricsAddress},
		{"log-level", logLevel, &cfg.Log.Level},
		{"log-format", logFormat, &cfg.Log.Format},
	} {
		if flagSet.Changed(override.flag) {
			*override.target = override.value
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := gloom.NewRegistry(gloom.WithMaxFilters(cfg.Limits.MaxFilters))

	server := service.NewSocketServer(service.ServerConfig{
		Network:         cfg.Listen.Network,
		Address:         cfg.Listen.Address,
		ReadTimeout:     cfg.Timeouts.Read,
		WriteTimeout:    cfg.Timeouts.Write,
		MaxRequestBytes: cfg.Limits.MaxRequestBytes,
	}, logger)
	service.NewHandlers(registry, cfg.Defaults.Params()).Register(server)

	logger.Info("gloomd starting",
		"network", cfg.Listen.Network,
		"address", cfg.Listen.Address,
		"default_capacity", cfg.Defaults.Capacity,
		"default_error_rate", cfg.Defaults.ErrorRate,
		"max_filters", cfg.Limits.MaxFilters,
	)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.ListenAndServe(ctx)
	})
	if cfg.MetricsAddress != "" {
		group.Go(func() error {
			return serveMetrics(ctx, cfg.MetricsAddress, logger)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("gloomd stopped", "filters", registry.Len())
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, options)), nil
}

func serveMetrics(ctx context.Context, address string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "address", address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
