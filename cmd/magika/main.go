package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/straja-ai/magika-go/internal/config"
	"github.com/straja-ai/magika-go/internal/engine"
	"github.com/straja-ai/magika-go/internal/report"
	"github.com/straja-ai/magika-go/internal/telemetry"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, engine.ONNXLoader)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, loader engine.Loader) int {
	fs := flag.NewFlagSet("magika", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "magika.yaml", "path to config yaml")
	modelPath := fs.String("model", "", "path to model.onnx (overrides config)")
	jsonOut := fs.Bool("json", false, "print one JSON object per file")
	recursive := fs.Bool("r", false, "recurse into directories")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: magika [-config f] [-model path] [-json] [-r] path...\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: load config: %v\n", err)
		return 1
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if *recursive {
		cfg.Scan.Recursive = true
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "Error: invalid config: %v\n", err)
		return 1
	}

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  "magika",
		Version:  version,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: telemetry: %v\n", err)
		return 1
	}
	defer shutdown(tel.Shutdown)

	eng, err := engine.New(cfg.Model, engine.Options{
		Loader: loader,
		Wrap:   tel.InstrumentInferencer,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer eng.Close()

	em, _, err := report.NewFromConfig(cfg.Report)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer shutdown(func(ctx context.Context) { em.Close(ctx) })

	w := &walker{
		scanner:     eng.Scanner,
		model:       eng.Paths.Name,
		cfg:         cfg.Scan,
		s3cfg:       cfg.S3,
		emitter:     em,
		tel:         tel,
		json:        *jsonOut,
		stdout:      stdout,
		stderr:      stderr,
		fileTimeout: time.Duration(cfg.Scan.FileTimeoutSeconds) * time.Second,
	}
	for _, p := range fs.Args() {
		if ctx.Err() != nil {
			break
		}
		w.scanArg(ctx, p)
	}

	if w.failed > 0 || ctx.Err() != nil {
		return 1
	}
	return 0
}

func shutdown(f func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f(ctx)
}
