package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/runs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedRun(status runs.RunStatus) runs.Run {
	created := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	completed := created.Add(75 * time.Second)
	return runs.Run{
		ID:          "run-123",
		SeedURL:     "https://example.com/",
		Status:      status,
		TotalPages:  40,
		FailedPages: 3,
		CreatedAt:   created,
		CompletedAt: &completed,
	}
}

func TestNewRunNotification(t *testing.T) {
	tests := []struct {
		name     string
		status   runs.RunStatus
		errMsg   string
		wantType NotificationType
		title    string
		message  string
	}{
		{
			name:     "completed",
			status:   runs.RunStatusCompleted,
			wantType: NotificationRunComplete,
			title:    "Crawl complete: https://example.com/",
			message:  "40 pages crawled in 1m 15s, 3 failed",
		},
		{
			name:     "failed",
			status:   runs.RunStatusFailed,
			errMsg:   "crawl aborted: collaborator unavailable",
			wantType: NotificationRunFailed,
			title:    "Crawl failed: https://example.com/",
			message:  "crawl aborted: collaborator unavailable",
		},
		{
			name:     "cancelled",
			status:   runs.RunStatusCancelled,
			wantType: NotificationRunCancelled,
			title:    "Crawl cancelled: https://example.com/",
			message:  "40 pages crawled before cancellation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := finishedRun(tt.status)
			run.ErrorMessage = tt.errMsg

			n := NewRunNotification(run)
			assert.Equal(t, tt.wantType, n.Type)
			assert.Equal(t, tt.title, n.Title)
			assert.Equal(t, tt.message, n.Message)
			assert.Equal(t, "1m 15s", n.Duration)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "N/A", formatDuration(0))
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 30m", formatDuration(90*time.Minute))
}

func TestSlackChannelDeliver(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &body))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ch, err := NewSlackChannel(srv.URL)
	require.NoError(t, err)

	err = ch.Deliver(context.Background(), NewRunNotification(finishedRun(runs.RunStatusCompleted)))
	require.NoError(t, err)

	assert.Equal(t, "Crawl complete: https://example.com/: 40 pages crawled in 1m 15s, 3 failed", body["text"])
	blocks, ok := body["blocks"].([]any)
	require.True(t, ok)
	assert.Len(t, blocks, 3)
}

func TestSlackChannelDeliverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	ch, err := NewSlackChannel(srv.URL)
	require.NoError(t, err)

	err = ch.Deliver(context.Background(), NewRunNotification(finishedRun(runs.RunStatusFailed)))
	assert.Error(t, err)
}

func TestNewSlackChannelRequiresURL(t *testing.T) {
	_, err := NewSlackChannel("")
	assert.Error(t, err)
}

type recordingChannel struct {
	mu   sync.Mutex
	name string
	err  error
	got  []*Notification
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(ctx context.Context, n *Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
	return c.err
}

func TestServiceNotifyRunFinished(t *testing.T) {
	failing := &recordingChannel{name: "broken", err: errors.New("boom")}
	working := &recordingChannel{name: "ok"}

	s := NewService(failing)
	s.AddChannel(working)
	s.NotifyRunFinished(context.Background(), finishedRun(runs.RunStatusCompleted), nil)

	require.Len(t, failing.got, 1)
	require.Len(t, working.got, 1, "a failing channel does not stop delivery to the others")
	assert.Equal(t, "run-123", working.got[0].RunID)
}
