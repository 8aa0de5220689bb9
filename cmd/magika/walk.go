package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/straja-ai/magika-go/internal/config"
	"github.com/straja-ai/magika-go/internal/magika"
	"github.com/straja-ai/magika-go/internal/report"
	"github.com/straja-ai/magika-go/internal/s3source"
	"github.com/straja-ai/magika-go/internal/telemetry"
)

// walker scans CLI arguments one file at a time. A failed file is reported
// and counted; the walk continues.
type walker struct {
	scanner     *magika.Scanner
	model       string
	cfg         config.ScanConfig
	s3cfg       config.S3Config
	s3          s3source.API
	emitter     *report.Emitter
	tel         *telemetry.Provider
	json        bool
	stdout      io.Writer
	stderr      io.Writer
	fileTimeout time.Duration

	scanned int
	failed  int
}

func (w *walker) scanArg(ctx context.Context, arg string) {
	if s3source.IsURI(arg) {
		w.scanS3(ctx, arg)
		return
	}

	info, err := os.Stat(arg)
	if err != nil {
		w.fail(arg, fmt.Errorf("%w: %w", magika.ErrSourceUnavailable, err))
		return
	}
	if !info.IsDir() {
		w.scanFile(ctx, arg)
		return
	}
	if !w.cfg.Recursive {
		w.fail(arg, fmt.Errorf("%w: %s is a directory (use -r)", magika.ErrSourceUnavailable, arg))
		return
	}

	err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			w.fail(path, fmt.Errorf("%w: %w", magika.ErrSourceUnavailable, err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if !w.cfg.FollowSymlinks {
				return nil
			}
			target, statErr := os.Stat(path)
			if statErr != nil {
				w.fail(path, fmt.Errorf("%w: %w", magika.ErrSourceUnavailable, statErr))
				return nil
			}
			if !target.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		w.scanFile(ctx, path)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		w.fail(arg, err)
	}
}

// fileContext bounds one file's open, read and inference steps.
func (w *walker) fileContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.fileTimeout > 0 {
		return context.WithTimeout(ctx, w.fileTimeout)
	}
	return context.WithCancel(ctx)
}

func (w *walker) scanFile(ctx context.Context, path string) {
	ctx, cancel := w.fileContext(ctx)
	defer cancel()

	src, err := magika.OpenFile(path)
	if err != nil {
		w.fail(path, err)
		return
	}
	defer src.Close()
	w.scan(ctx, path, src)
}

func (w *walker) scanS3(ctx context.Context, uri string) {
	if w.s3 == nil {
		client, err := s3source.NewClient(ctx, w.s3cfg)
		if err != nil {
			w.fail(uri, fmt.Errorf("%w: %w", magika.ErrSourceUnavailable, err))
			return
		}
		w.s3 = client
	}

	ctx, cancel := w.fileContext(ctx)
	defer cancel()

	src, err := s3source.OpenURI(ctx, w.s3, uri)
	if err != nil {
		w.fail(uri, err)
		return
	}
	w.scan(ctx, uri, src)
}

func (w *walker) scan(ctx context.Context, name string, src magika.Source) {
	ctx, span := w.tel.StartScan(ctx, map[string]interface{}{
		telemetry.AttrSource: name,
		telemetry.AttrSize:   src.Size(),
		telemetry.AttrOrigin: "cli",
	})
	start := time.Now()
	pred, err := w.scanner.Scan(ctx, src)
	dur := time.Since(start)
	telemetry.EndScan(span, pred, err)
	w.tel.RecordScan(ctx, pred, src.Size(), dur, err)

	var mime string
	if err == nil && (w.json || w.emitter != nil) {
		mime = report.DetectMIME(src)
	}
	ev := report.BuildEvent(report.BuildParams{
		Source:     name,
		Model:      w.model,
		Prediction: pred,
		Size:       src.Size(),
		MIME:       mime,
		Err:        err,
		Duration:   dur,
	})
	w.emitter.Emit(ev)

	if err != nil {
		w.failed++
		w.printError(name, err)
		if w.json {
			w.printJSON(ev)
		}
		return
	}
	w.scanned++
	if w.json {
		w.printJSON(ev)
		return
	}
	fmt.Fprintf(w.stdout, "%s: %s (confidence: %.4f)\n", name, pred.Label, pred.Score)
}

// fail reports an error for an input that never reached the scanner.
func (w *walker) fail(name string, err error) {
	w.failed++
	w.printError(name, err)
	w.emitter.Emit(report.BuildEvent(report.BuildParams{Source: name, Model: w.model, Err: err}))
}

func (w *walker) printError(name string, err error) {
	fmt.Fprintf(w.stderr, "Error scanning file %s: %v\n", name, err)
}

func (w *walker) printJSON(ev *report.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		fmt.Fprintf(w.stderr, "Error encoding result for %s: %v\n", ev.Source, err)
		return
	}
	fmt.Fprintf(w.stdout, "%s\n", data)
}
