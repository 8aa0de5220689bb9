package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/straja-ai/magika-go/internal/config"
	"github.com/straja-ai/magika-go/internal/engine"
	"github.com/straja-ai/magika-go/internal/magika"
)

func main() {
	cfgPath := flag.String("config", "magika.yaml", "path to config yaml")
	modelPath := flag.String("model", "", "path to model.onnx (overrides config)")
	n := flag.Int("n", 200, "number of iterations")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: magika-bench [-config f] [-model path] [-n N] file")
	}
	input := flag.Arg(0)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}

	eng, err := engine.New(cfg.Model, engine.Options{})
	if err != nil {
		log.Fatalf("load model: %v", err)
	}
	defer eng.Close()

	data, err := os.ReadFile(input)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	ctx := context.Background()
	var pred magika.Prediction
	for i := 0; i < 5; i++ {
		if pred, err = eng.Scanner.ScanBytes(ctx, data); err != nil {
			log.Fatalf("warmup scan failed: %v", err)
		}
	}

	if *n <= 0 {
		*n = 1
	}

	durations := make([]time.Duration, 0, *n)
	for i := 0; i < *n; i++ {
		start := time.Now()
		if _, err := eng.Scanner.ScanBytes(ctx, data); err != nil {
			log.Fatalf("scan failed: %v", err)
		}
		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}

	avg := float64(total.Microseconds()) / 1000.0 / float64(len(durations))
	p50 := float64(durations[len(durations)/2].Microseconds()) / 1000.0
	p95 := float64(durations[int(float64(len(durations))*0.95)].Microseconds()) / 1000.0

	fmt.Printf("bench: n=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f features=%d label=%s score=%.4f model=%s\n",
		len(durations),
		avg,
		p50,
		p95,
		eng.Config.FeatureLen(),
		pred.Label,
		pred.Score,
		eng.Paths.ModelPath,
	)
}
