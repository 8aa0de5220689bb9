// Package report records scan outcomes and fans them out to sinks.
package report

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/straja-ai/magika-go/internal/magika"
	"github.com/straja-ai/magika-go/internal/redact"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// mimeSniffLen matches mimetype's default read limit.
const mimeSniffLen = 3072

// Event is one scan outcome.
type Event struct {
	Version    string    `json:"version"`
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Model      string    `json:"model,omitempty"`
	Status     string    `json:"status"`
	Label      string    `json:"label,omitempty"`
	Score      float32   `json:"score"`
	Size       int64     `json:"size"`
	MIME       string    `json:"mime,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs float64   `json:"duration_ms"`
}

// BuildParams collects the inputs of a single scan.
type BuildParams struct {
	ID         string
	Source     string
	Model      string
	Prediction magika.Prediction
	Size       int64
	MIME       string
	Err        error
	Duration   time.Duration
}

// BuildEvent assembles an Event, assigning a fresh ID when none is given.
func BuildEvent(params BuildParams) *Event {
	ev := &Event{
		Version:    "1",
		ID:         ensureID(params.ID),
		Timestamp:  time.Now().UTC(),
		Source:     redact.String(params.Source),
		Model:      params.Model,
		Size:       params.Size,
		MIME:       params.MIME,
		DurationMs: float64(params.Duration) / float64(time.Millisecond),
	}
	if params.Err != nil {
		ev.Status = StatusError
		ev.ErrorKind = magika.ErrorKind(params.Err)
		ev.Error = redact.String(params.Err.Error())
		return ev
	}
	ev.Status = StatusOK
	ev.Label = params.Prediction.Label
	ev.Score = params.Prediction.Score
	return ev
}

// LogEvent prints a redacted JSON representation of the event.
func LogEvent(ev *Event) {
	if ev == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		redact.Logf("report: failed to marshal event: %v", err)
		return
	}
	redact.Logf("report: %s", string(data))
}

// DetectMIME sniffs the leading bytes of src. It returns "" when src is
// empty or unreadable.
func DetectMIME(src magika.Source) string {
	if src == nil || src.Size() == 0 {
		return ""
	}
	buf := make([]byte, min(src.Size(), mimeSniffLen))
	n, err := src.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return ""
	}
	mt := mimetype.Detect(buf[:n])
	if mt == nil {
		return ""
	}
	return strings.TrimSpace(mt.String())
}

func ensureID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

// ValidID reports whether id looks like an ID produced by BuildEvent.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
