package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/claudegram/internal/events"
)

func jobEvent(t *testing.T, id int64, typ string, data any) events.Event {
	t.Helper()
	b, err := json.Marshal(data)
	require.NoError(t, err)
	return events.Event{ID: id, Type: typ, At: time.Now(), Data: b}
}

func TestJobBoardLifecycle(t *testing.T) {
	b := &JobBoard{}
	b.Apply(jobEvent(t, 1, events.JobEnqueued, events.JobData{JobID: "a", ChatID: 1, Position: 1}))
	b.Apply(jobEvent(t, 2, events.JobEnqueued, events.JobData{JobID: "b", ChatID: 1, Position: 2}))
	require.Len(t, b.Waiting, 2)

	b.Apply(jobEvent(t, 3, events.JobStarted, events.JobData{JobID: "a", ChatID: 1}))
	require.NotNil(t, b.Current)
	assert.Equal(t, "a", b.Current.ID)
	assert.Equal(t, statusRunning, b.Current.Status)
	require.Len(t, b.Waiting, 1)

	b.Apply(jobEvent(t, 4, events.JobHeartbeat, events.JobData{JobID: "a", Beat: 2, ElapsedMS: 60000}))
	assert.Equal(t, 2, b.Current.Beats)

	b.Apply(jobEvent(t, 5, events.JobTimedOut, events.JobData{JobID: "a", ElapsedMS: 600000, Error: "tool timed out"}))
	assert.Nil(t, b.Current)
	require.Len(t, b.Finished, 1)
	assert.Equal(t, "timed_out", b.Finished[0].Status)
	assert.Equal(t, 10*time.Minute, b.Finished[0].Elapsed)
	assert.Equal(t, "tool timed out", b.Finished[0].Error)
}

func TestJobBoardQueueCleared(t *testing.T) {
	b := &JobBoard{}
	b.Apply(jobEvent(t, 1, events.JobEnqueued, events.JobData{JobID: "a", Position: 1}))
	b.Apply(jobEvent(t, 2, events.JobEnqueued, events.JobData{JobID: "b", Position: 2}))
	b.Apply(jobEvent(t, 3, events.QueueCleared, events.QueueData{Cleared: 2, Reason: "cancel"}))

	assert.Empty(t, b.Waiting)
	require.Len(t, b.Finished, 2)
	assert.Equal(t, "canceled", b.Finished[0].Status)
}

func TestJobBoardKeepsRecentFinished(t *testing.T) {
	b := &JobBoard{}
	for i := range maxFinished + 5 {
		b.Apply(jobEvent(t, int64(i+1), events.JobCompleted, events.JobData{JobID: fmt.Sprintf("job-%d", i)}))
	}
	require.Len(t, b.Finished, maxFinished)
	assert.Equal(t, fmt.Sprintf("job-%d", maxFinished+4), b.Finished[0].ID)
}

func TestJobBoardIgnoresGarbage(t *testing.T) {
	b := &JobBoard{}
	b.Apply(events.Event{ID: 1, Type: events.JobStarted, Data: []byte("not json")})
	b.Apply(jobEvent(t, 2, events.JobStarted, map[string]string{"other": "x"}))
	assert.Nil(t, b.Current)
}

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		"id: 7",
		"event: job.started",
		`data: {"job_id":"abc","chat_id":5}`,
		"",
		": keep-alive",
		"",
		"id: 8",
		"event: job.completed",
		`data: {"job_id":"abc"}`,
		"",
	}, "\n")

	ch := make(chan events.Event, 4)
	readEvents(bufio.NewScanner(strings.NewReader(stream)), ch)
	close(ch)

	var got []events.Event
	for e := range ch {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, events.JobStarted, got[0].Type)
	assert.JSONEq(t, `{"job_id":"abc","chat_id":5}`, string(got[0].Data))
	assert.Equal(t, events.JobCompleted, got[1].Type)
}

func TestSubscribeSendsLastEventID(t *testing.T) {
	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("Last-Event-ID")
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "id: 13\nevent: job.enqueued\ndata: {\"job_id\":\"x\"}\n\n")
	}))
	defer srv.Close()

	ch := make(chan events.Event, 1)
	msg := subscribeToEvents(srv.URL, "k", 12, ch)()

	assert.IsType(t, sseDisconnectedMsg{}, msg)
	assert.Equal(t, "12", <-seen)
	assert.Equal(t, int64(13), (<-ch).ID)
}

func TestSubscribeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	msg := subscribeToEvents(srv.URL, "bad", 0, make(chan events.Event))()
	err, ok := msg.(errMsg)
	require.True(t, ok)
	assert.Contains(t, err.Error(), "401")
}

func TestFetchHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		fmt.Fprint(w, `{"status":"ok","uptime_seconds":42,"queue_depth":3,"processing":true}`)
	}))
	defer srv.Close()

	msg := fetchHealth(srv.URL)
	h, ok := msg.(healthMsg)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, int64(42), h.UptimeSeconds)
	assert.Equal(t, 3, h.QueueDepth)
	assert.True(t, h.Processing)
}

func TestUpdateAppliesEvents(t *testing.T) {
	m := *New("http://unused", "k")

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	next, _ = next.Update(eventMsg(jobEvent(t, 4, events.JobStarted, events.JobData{JobID: "job-1", ChatID: 9})))
	next, _ = next.Update(eventMsg(jobEvent(t, 5, events.JobEnqueued, events.JobData{JobID: "job-2", ChatID: 9, Position: 1})))
	m = next.(Model)

	assert.Equal(t, int64(5), m.lastID)
	assert.True(t, m.health.Processing)
	assert.Equal(t, 1, m.health.QueueDepth)
	assert.True(t, m.health.Connected)
	assert.Len(t, m.eventLog, 2)
	assert.Equal(t, events.JobEnqueued, m.eventLog[0].Type)

	view := m.View()
	assert.Contains(t, view, "CLAUDEGRAM WATCH")
	assert.Contains(t, view, "job-1")
	assert.Contains(t, view, "job.enqueued")
}

func TestUpdateDisconnectKeepsLastID(t *testing.T) {
	m := *New("http://unused", "k")
	next, _ := m.Update(eventMsg(jobEvent(t, 9, events.JobCompleted, events.JobData{JobID: "j"})))
	next, cmd := next.Update(sseDisconnectedMsg{})
	m = next.(Model)

	assert.False(t, m.health.Connected)
	assert.NotEmpty(t, m.lastError)
	assert.NotNil(t, cmd)
	assert.Equal(t, int64(9), m.lastID)
}

func TestViewBeforeResize(t *testing.T) {
	assert.Equal(t, "Connecting to claudegram...", New("u", "k").View())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "3m 5s", formatDuration(185*time.Second))
	assert.Equal(t, "2h 1m", formatDuration(121*time.Minute))
}
