package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotSinceRingOverwrite(t *testing.T) {
	h := NewHub(3)
	for i := range 5 {
		h.Publish(JobStarted, JobData{JobID: string(rune('a' + i))})
	}

	all := h.SnapshotSince(0)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].ID)
	assert.Equal(t, int64(5), all[2].ID)

	tail := h.SnapshotSince(4)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(5), tail[0].ID)
}

func TestSubscribeReceivesPayload(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe()
	defer cancel()

	code := 3
	h.Publish(JobCompleted, JobData{JobID: "j1", ChatID: 9, ExitCode: &code})

	select {
	case ev := <-ch:
		assert.Equal(t, JobCompleted, ev.Type)
		var data JobData
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		assert.Equal(t, "j1", data.JobID)
		require.NotNil(t, data.ExitCode)
		assert.Equal(t, 3, *data.ExitCode)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestCancelClosesChannelOnce(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic.
	h.Publish(QueueCleared, QueueData{Cleared: 2, Reason: "cancel"})
}

func TestPublishNilData(t *testing.T) {
	h := NewHub(0)
	h.Publish(JobEnqueued, nil)
	evs := h.SnapshotSince(0)
	require.Len(t, evs, 1)
	assert.JSONEq(t, "{}", string(evs[0].Data))
}
