// Command report-receiver is a local sink for the webhook reporter. It
// decodes each posted scan event and logs it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/straja-ai/magika-go/internal/redact"
	"github.com/straja-ai/magika-go/internal/report"
)

const maxEventBytes = 1 << 20

func main() {
	addr := flag.String("addr", ":8099", "listen address for the report receiver")
	flag.Parse()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	redact.Logf("report receiver listening on %s (POST JSON to /events)...", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		redact.Fatalf("receiver error: %v", err)
	}
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /events", handleEvent)
	mux.HandleFunc("POST /", handleEvent)
	return mux
}

func handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	_ = r.Body.Close()
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var ev report.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		redact.Logf("report receiver: invalid event (len=%d): %v", len(body), err)
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}
	report.LogEvent(&ev)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, `{"status":"ok"}`)
}
