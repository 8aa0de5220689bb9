package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/magika-go/internal/magika"
	"github.com/straja-ai/magika-go/internal/report"
)

func TestReceiverAcceptsWebhookEvents(t *testing.T) {
	ts := httptest.NewServer(newMux())
	defer ts.Close()

	sink, err := report.NewWebhookSink(ts.URL+"/events", nil, time.Second)
	require.NoError(t, err)

	ev := report.BuildEvent(report.BuildParams{
		Source:     "a.txt",
		Model:      "standard_v3_3",
		Prediction: magika.Prediction{Label: "txt", Score: 0.9},
		Size:       4,
	})
	require.NoError(t, sink.Deliver(context.Background(), ev))
}

func TestReceiverRejectsInvalidJSON(t *testing.T) {
	ts := httptest.NewServer(newMux())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/events", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/events")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}
