// Command rpc-server serves the UserService contract.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contract-rpc/config"
	"contract-rpc/middleware"
	"contract-rpc/server"
	"contract-rpc/telemetry"
	"contract-rpc/userservice"

	"github.com/urfave/cli"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	app := cli.NewApp()
	app.Name = "rpc-server"
	app.Usage = "serve the UserService contract over contract-rpc"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "YAML config file", EnvVar: "RPC_CONFIG"},
		cli.StringFlag{Name: "addr", Usage: "listen address", EnvVar: "RPC_ADDR"},
		cli.DurationFlag{Name: "request-timeout", Usage: "server-side budget per call, 0 disables", EnvVar: "RPC_REQUEST_TIMEOUT"},
		cli.DurationFlag{Name: "shutdown-timeout", Usage: "how long to wait for in-flight calls", EnvVar: "RPC_SHUTDOWN_TIMEOUT"},
		cli.Float64Flag{Name: "rate-limit", Usage: "calls per second, 0 disables", EnvVar: "RPC_RATE_LIMIT"},
		cli.IntFlag{Name: "rate-burst", Usage: "rate limiter burst", EnvVar: "RPC_RATE_BURST"},
		cli.StringFlag{Name: "store", Usage: "user store: memory or etcd", EnvVar: "RPC_STORE"},
		cli.StringSliceFlag{Name: "etcd-endpoints", Usage: "etcd endpoints for the etcd store", EnvVar: "ETCD_ENDPOINTS"},
		cli.StringFlag{Name: "otlp-endpoint", Usage: "OTLP/gRPC collector for traces", EnvVar: "OTEL_EXPORTER_OTLP_ENDPOINT"},
		cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", EnvVar: "RPC_LOG_LEVEL"},
		cli.BoolFlag{Name: "log-dev", Usage: "human-readable logs", EnvVar: "RPC_LOG_DEV"},
	}
	app.Action = serveCommand

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "rpc-server:", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file and flags that were set.
func loadConfig(c *cli.Context) (config.Server, error) {
	cfg := config.DefaultServer()
	if err := config.Load(c.String("config"), &cfg); err != nil {
		return cfg, err
	}
	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}
	if c.IsSet("request-timeout") {
		cfg.RequestTimeout = c.Duration("request-timeout")
	}
	if c.IsSet("shutdown-timeout") {
		cfg.ShutdownTimeout = c.Duration("shutdown-timeout")
	}
	if c.IsSet("rate-limit") {
		cfg.RateLimit = c.Float64("rate-limit")
	}
	if c.IsSet("rate-burst") {
		cfg.RateBurst = c.Int("rate-burst")
	}
	if c.IsSet("store") {
		cfg.Store = c.String("store")
	}
	if c.IsSet("etcd-endpoints") {
		cfg.EtcdEndpoints = c.StringSlice("etcd-endpoints")
	}
	if c.IsSet("otlp-endpoint") {
		cfg.OTLPEndpoint = c.String("otlp-endpoint")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-dev") {
		cfg.Log.Development = c.Bool("log-dev")
	}
	return cfg, cfg.Validate()
}

func serveCommand(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	shutdownTracing, err := telemetry.Setup(cfg.OTLPEndpoint, "rpc-server")
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("flush traces", zap.Error(err))
		}
	}()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := server.NewRegistry()
	if _, err := reg.Expose(userservice.NewImpl(store, logger), userservice.Contract.Descriptor); err != nil {
		return err
	}

	srv := server.NewServer(reg, server.WithLogger(logger))
	srv.Use(middleware.TracingMiddleware(otel.GetTracerProvider()))
	srv.Use(middleware.LoggingMiddleware(logger))
	if cfg.RateLimit > 0 {
		srv.Use(middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.RequestTimeout > 0 {
		srv.Use(middleware.TimeOutMiddleware(cfg.RequestTimeout))
	}

	served := make(chan error, 1)
	go func() {
		served <- srv.ListenAndServe("tcp", cfg.Addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-served:
		return err
	case s := <-sig:
		logger.Info("shutting down", zap.Stringer("signal", s))
	}

	if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	return <-served
}

func openStore(cfg config.Server) (userservice.Store, func(), error) {
	if cfg.Store != config.StoreEtcd {
		return userservice.NewMemoryStore(), func() {}, nil
	}
	store, err := userservice.NewEtcdStore(cfg.EtcdEndpoints, cfg.EtcdDialTimeout)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}
