package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/claudegram/internal/log"
	"github.com/mattjoyce/claudegram/internal/telegram"
)

const testSecret = "hook_secret-123"

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

type recorder struct {
	mu      sync.Mutex
	updates []telegram.Update
}

func (r *recorder) handle(_ context.Context, u telegram.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) ids() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.updates))
	for _, u := range r.updates {
		out = append(out, u.UpdateID)
	}
	return out
}

func newServer(rec *recorder, maxBody int64) http.Handler {
	s := New(Config{Listen: "127.0.0.1:0", Path: "/telegram", Secret: testSecret, MaxBodySize: maxBody}, rec.handle, log.WithComponent("webhook"))
	return s.setupRoutes(context.Background())
}

func push(h http.Handler, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/telegram", strings.NewReader(body))
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPushDelivered(t *testing.T) {
	rec := &recorder{}
	h := newServer(rec, 0)

	rr := push(h, testSecret, `{"update_id":10,"message":{"message_id":1,"text":"hello","chat":{"id":5,"type":"private"},"from":{"id":7,"is_bot":false}}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	require.Len(t, rec.updates, 1)
	u := rec.updates[0]
	require.NotNil(t, u.Message)
	assert.Equal(t, "hello", u.Message.Text)
	assert.Equal(t, int64(5), u.Message.Chat.ID)
}

func TestPushRejectsBadSecret(t *testing.T) {
	rec := &recorder{}
	h := newServer(rec, 0)

	assert.Equal(t, http.StatusForbidden, push(h, "", `{"update_id":1}`).Code)
	assert.Equal(t, http.StatusForbidden, push(h, "wrong", `{"update_id":1}`).Code)
	assert.Empty(t, rec.ids())
}

func TestPushDuplicatesIgnored(t *testing.T) {
	rec := &recorder{}
	h := newServer(rec, 0)

	for _, body := range []string{`{"update_id":3}`, `{"update_id":4}`, `{"update_id":4}`, `{"update_id":2}`, `{"update_id":5}`} {
		assert.Equal(t, http.StatusOK, push(h, testSecret, body).Code)
	}
	assert.Equal(t, []int64{3, 4, 5}, rec.ids())
}

func TestPushLimits(t *testing.T) {
	rec := &recorder{}
	h := newServer(rec, 32)

	assert.Equal(t, http.StatusRequestEntityTooLarge, push(h, testSecret, `{"update_id":1,"padding":"`+strings.Repeat("x", 64)+`"}`).Code)
	assert.Equal(t, http.StatusBadRequest, push(h, testSecret, `not json`).Code)
	assert.Empty(t, rec.ids())
}

func TestOtherPathsNotServed(t *testing.T) {
	h := newServer(&recorder{}, 0)
	req := httptest.NewRequest(http.MethodPost, "/elsewhere", strings.NewReader(`{}`))
	req.Header.Set(SecretHeader, testSecret)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"", DefaultMaxBodySize, true},
		{"2048", 2048, true},
		{"512KB", 512 << 10, true},
		{"1mb", 1 << 20, true},
		{"1GB", 1 << 30, true},
		{"-1", 0, false},
		{"lots", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidSecret(t *testing.T) {
	assert.True(t, ValidSecret(testSecret))
	assert.False(t, ValidSecret(""))
	assert.False(t, ValidSecret("has space"))
	assert.False(t, ValidSecret(strings.Repeat("a", 257)))
	assert.False(t, secretMatches("", ""))
}
