// Command testhttpd runs the HTTP/1.0 test server. The bound host:port is
// printed on stdout as the first line, so a parent process (see
// internal/forked) can pick it up over a pipe; logs go to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"dqx0.com/go/testhttpd/config"
	"dqx0.com/go/testhttpd/httpd"
	"dqx0.com/go/testhttpd/internal/obs"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		listen     = flag.String("listen", "", "listen address (overrides config)")
		maxconn    = flag.Int("maxconn", 0, "max concurrent connections (overrides config)")
		timeout    = flag.Duration("timeout", 0, "idle timeout (overrides config)")
		metrics    = flag.String("metrics", "", "metrics listen address (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *maxconn > 0 {
		cfg.MaxConn = *maxconn
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *metrics != "" {
		cfg.MetricsListen = *metrics
	}

	// Client code under test must reach this server directly.
	config.ScrubProxyEnv()

	logger, min, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger, min); err != nil {
		logger.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger, min obs.Level) error {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		// Failing to bind is the only startup-fatal condition.
		return fmt.Errorf("bind %s: %w", cfg.Listen, err)
	}
	// Bound-address report, exactly once.
	fmt.Println(ln.Addr().String())

	preg := prometheus.NewRegistry()
	srv := &httpd.Server{
		MaxConn:     cfg.MaxConn,
		IdleTimeout: cfg.Timeout,
		Logger:      obs.NewZapLogger(logger, min),
		Meter:       obs.NewPromMeter(preg),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(ln) })
	g.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})

	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
		msrv := &http.Server{Addr: cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(msrv.ListenAndServe)
		g.Go(func() error {
			<-ctx.Done()
			return msrv.Close()
		})
	}

	err = g.Wait()
	if errors.Is(err, httpd.ErrServerClosed) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func buildLogger(level string) (*zap.Logger, obs.Level, error) {
	zl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, 0, fmt.Errorf("log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zl)
	logger, err := zcfg.Build()
	if err != nil {
		return nil, 0, err
	}
	var min obs.Level
	switch level {
	case "debug":
		min = obs.Debug
	case "warn":
		min = obs.Warn
	case "error":
		min = obs.Error
	default:
		min = obs.Info
	}
	return logger, min, nil
}
