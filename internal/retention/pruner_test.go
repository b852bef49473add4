package retention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/claudegram/internal/journal"
	"github.com/mattjoyce/claudegram/internal/log"
	"github.com/mattjoyce/claudegram/internal/retention/mocks"
	"github.com/mattjoyce/claudegram/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

func TestPrunesAtStartWithCutoff(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	done := make(chan struct{})
	store.EXPECT().
		Prune(gomock.Any(), now.Add(-48*time.Hour)).
		DoAndReturn(func(context.Context, time.Time) (int64, error) {
			close(done)
			return 3, nil
		})

	p := New(store, 48*time.Hour, time.Hour, log.WithComponent("test"))
	p.now = func() time.Time { return now }
	p.Start(context.Background())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("prune did not run at start")
	}
	p.Stop()
}

func TestPrunesOnInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	calls := make(chan struct{}, 10)
	store.EXPECT().Prune(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, time.Time) (int64, error) {
			select {
			case calls <- struct{}{}:
			default:
			}
			return 0, errors.New("database is locked")
		}).
		MinTimes(3)

	p := New(store, time.Hour, 10*time.Millisecond, log.WithComponent("test"))
	p.Start(context.Background())
	for range 3 {
		select {
		case <-calls:
		case <-time.After(5 * time.Second):
			t.Fatal("prune loop stalled")
		}
	}
	p.Stop()
}

func TestStopsWithContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Prune(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	p := New(store, time.Hour, time.Hour, log.WithComponent("test"))
	p.Start(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("loop ignored context cancellation")
	}
}

func TestPrunesRealJournal(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	j := journal.New(db)

	now := time.Now().UTC()
	require.NoError(t, j.Record(ctx, journal.Entry{JobID: "old", Status: "completed", CompletedAt: now.Add(-72 * time.Hour)}))
	require.NoError(t, j.Record(ctx, journal.Entry{JobID: "new", Status: "completed", CompletedAt: now.Add(-time.Hour)}))

	p := New(j, 24*time.Hour, time.Hour, log.WithComponent("test"))
	p.prune(ctx)

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].JobID)
}
