package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/straja-ai/magika-go/internal/config"
	"github.com/straja-ai/magika-go/internal/engine"
	"github.com/straja-ai/magika-go/internal/redact"
	"github.com/straja-ai/magika-go/internal/report"
	"github.com/straja-ai/magika-go/internal/server"
	"github.com/straja-ai/magika-go/internal/telemetry"
)

var version = "dev"

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "magika.yaml", "path to config yaml")
	modelPath := flag.String("model", "", "path to model.onnx (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		redact.Fatalf("failed to load config: %v", err)
	}
	if *addrFlag != "" {
		cfg.Server.Addr = *addrFlag
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if err := config.Validate(cfg); err != nil {
		redact.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  "magika-server",
		Version:  version,
	})
	if err != nil {
		redact.Fatalf("telemetry: %v", err)
	}

	eng, err := engine.New(cfg.Model, engine.Options{Wrap: tel.InstrumentInferencer})
	if err != nil {
		redact.Fatalf("load model: %v", err)
	}

	em, sinks, err := report.NewFromConfig(cfg.Report)
	if err != nil {
		redact.Fatalf("report sinks: %v", err)
	}

	opts := []server.Option{
		server.WithModelName(eng.Paths.Name),
		server.WithTelemetry(tel),
		server.WithEmitter(em),
	}
	for _, s := range sinks {
		if h, ok := s.(server.EventLookup); ok {
			opts = append(opts, server.WithHistory(h))
			break
		}
	}

	srv, err := server.New(cfg.Server, eng.Scanner, opts...)
	if err != nil {
		redact.Fatalf("server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			redact.Logf("server error: %v", err)
		}
	case <-ctx.Done():
		redact.Logf("server: shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		redact.Logf("server: shutdown: %v", err)
	}
	em.Close(shutdownCtx)
	tel.Shutdown(shutdownCtx)
	if err := eng.Close(); err != nil {
		redact.Logf("server: close model: %v", err)
	}
}
