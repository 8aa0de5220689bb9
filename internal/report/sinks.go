package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/straja-ai/magika-go/internal/config"
)

// NewFromConfig builds an Emitter with the sinks named in cfg. A config
// with no sinks yields a nil Emitter, which discards events.
func NewFromConfig(cfg config.ReportConfig) (*Emitter, []Sink, error) {
	if len(cfg.Sinks) == 0 {
		return nil, nil, nil
	}
	sinks, err := buildSinks(cfg.Sinks)
	if err != nil {
		return nil, nil, err
	}
	em := NewEmitter(EmitterConfig{
		QueueSize:       cfg.QueueSize,
		Workers:         cfg.Workers,
		ShutdownTimeout: time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second,
	}, sinks)
	return em, sinks, nil
}

func buildSinks(cfgs []config.SinkConfig) ([]Sink, error) {
	sinks := make([]Sink, 0, len(cfgs))
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close(context.Background())
		}
	}
	for i, sc := range cfgs {
		var (
			s   Sink
			err error
		)
		switch strings.ToLower(strings.TrimSpace(sc.Type)) {
		case "file_jsonl":
			s, err = NewFileSink(sc.Path)
		case "webhook":
			s, err = NewWebhookSink(sc.URL, sc.Headers, time.Duration(sc.TimeoutMs)*time.Millisecond)
		case "sqlite":
			s, err = NewSQLiteSink(sc.Path)
		default:
			err = fmt.Errorf("unknown type %q", sc.Type)
		}
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("report sink %d: %w", i, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
