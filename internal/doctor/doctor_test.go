package doctor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/claudegram/internal/config"
	"github.com/mattjoyce/claudegram/internal/storage"
)

const goodToken = "123456789:AAbbCCddEEffGGhhIIjjKKllMM"

// validConfig returns a config whose every check passes inside a temp dir.
func validConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pubspec.yaml"), []byte("version: 1.0.0\n"), 0o644))

	cfg := config.Defaults()
	cfg.Telegram.Token = goodToken
	cfg.Access.AllowedUsers = []int64{42}
	cfg.Tool.Workdir = dir
	cfg.State.Path = filepath.Join(dir, "data", "claudegram.db")
	return cfg
}

func newDoctor(cfg *config.Config) *Doctor {
	d := New(cfg)
	d.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	d.checkLocal = func(string) error { return nil }
	return d
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig(t)).Validate()
	assert.True(t, r.Valid, "errors: %v", r.Errors)
	assert.Empty(t, r.Warnings)
}

func TestValidate_MissingToken(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Telegram.Token = ""
	r := newDoctor(cfg).Validate()
	assert.False(t, r.Valid)
	assertHasError(t, r, "telegram", "required")
}

func TestValidate_OddTokenNotEchoed(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Telegram.Token = "not-a-token-secret"
	r := newDoctor(cfg).Validate()
	assert.True(t, r.Valid)
	assertHasWarning(t, r, "telegram", "does not look like")
	out, err := FormatJSON(r)
	require.NoError(t, err)
	assert.NotContains(t, out, "not-a-token-secret")
}

func TestValidate_AllowList(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Access.AllowedUsers = nil
	r := newDoctor(cfg).Validate()
	assertHasError(t, r, "access", "empty")

	cfg.Access.AllowedUsers = []int64{42, -1, 42}
	r = newDoctor(cfg).Validate()
	assertHasError(t, r, "access", "-1")
	assertHasWarning(t, r, "access", "more than once")
}

func TestValidate_ToolNotOnPath(t *testing.T) {
	t.Parallel()
	d := newDoctor(validConfig(t))
	d.lookPath = func(name string) (string, error) {
		if name == "claude" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}
	r := d.Validate()
	assert.True(t, r.Valid)
	assertHasWarning(t, r, "tool", "claude")
}

func TestValidate_Workdir(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Tool.Workdir = filepath.Join(t.TempDir(), "missing")
	r := newDoctor(cfg).Validate()
	assert.False(t, r.Valid)
	assertHasError(t, r, "tool", "missing")

	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	cfg.Tool.Workdir = file
	r = newDoctor(cfg).Validate()
	assertHasError(t, r, "tool", "not a directory")
}

func TestValidate_PromptDir(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Tool.PromptDir = filepath.Join(t.TempDir(), "nope")
	r := newDoctor(cfg).Validate()
	assertHasError(t, r, "tool", "prompt_dir")
}

func TestValidate_Timing(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Tool.Timeout = time.Minute
	cfg.Tool.HeartbeatInterval = 2 * time.Minute
	cfg.Tool.KillGrace = 90 * time.Second
	r := newDoctor(cfg).Validate()
	assert.True(t, r.Valid)
	assertHasWarning(t, r, "tool", "no heartbeat")
	assertHasWarning(t, r, "tool", "kill grace")
}

func TestValidate_NetworkState(t *testing.T) {
	t.Parallel()
	d := newDoctor(validConfig(t))
	d.checkLocal = func(path string) error {
		return fmt.Errorf("%w: %q is on nfs", storage.ErrNetworkFilesystem, path)
	}
	r := d.Validate()
	assert.True(t, r.Valid)
	assertHasWarning(t, r, "state", "network filesystem")
}

func TestValidate_API(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Enabled = true
	cfg.API.Listen = "127.0.0.1:8080"
	cfg.API.Auth.APIKey = "0123456789abcdef0123"
	r := newDoctor(cfg).Validate()
	assert.True(t, r.Valid)
	assert.Empty(t, r.Warnings)

	cfg.API.Listen = "0.0.0.0:8080"
	cfg.API.Auth.APIKey = "short"
	r = newDoctor(cfg).Validate()
	assertHasWarning(t, r, "api", "beyond localhost")
	assertHasWarning(t, r, "api", "shorter than")

	cfg.API.Listen = "8080"
	r = newDoctor(cfg).Validate()
	assertHasError(t, r, "api", "invalid listen address")

	cfg.API.Listen = "localhost:8080"
	cfg.API.Auth.APIKey = ""
	r = newDoctor(cfg).Validate()
	assertHasError(t, r, "api", "no api_key")
}

func TestValidate_Webhook(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Telegram.Webhook.Enabled = true
	cfg.Telegram.Webhook.PublicURL = "https://bot.example.com"
	cfg.Telegram.Webhook.Secret = "hook_secret-1"
	r := newDoctor(cfg).Validate()
	assert.True(t, r.Valid, "errors: %v", r.Errors)

	cfg.Telegram.Webhook.PublicURL = "http://bot.example.com"
	cfg.Telegram.Webhook.Secret = "has spaces"
	cfg.Telegram.Webhook.MaxBodySize = "lots"
	r = newDoctor(cfg).Validate()
	assertHasError(t, r, "webhook", "https")
	assertHasError(t, r, "webhook", "secret must be")
	assertHasError(t, r, "webhook", "size")

	cfg = validConfig(t)
	cfg.Telegram.Webhook.Enabled = true
	cfg.Telegram.Webhook.PublicURL = "https://bot.example.com"
	cfg.Telegram.Webhook.Secret = "ok"
	cfg.Telegram.Webhook.Listen = "127.0.0.1:8080"
	cfg.API.Enabled = true
	cfg.API.Listen = "127.0.0.1:8080"
	cfg.API.Auth.APIKey = "0123456789abcdef0123"
	r = newDoctor(cfg).Validate()
	assertHasError(t, r, "webhook", "share a listen address")
}

func TestValidate_VCSAndVersionFile(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Tool.Workdir = t.TempDir()
	r := newDoctor(cfg).Validate()
	assert.True(t, r.Valid)
	assertHasWarning(t, r, "vcs", "git checkout")
	assertHasWarning(t, r, "version_file", "pubspec.yaml")
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:  false,
		Errors: []Issue{{Category: "test", Message: "bad thing"}},
	}
	out, err := FormatJSON(r)
	require.NoError(t, err)
	assert.Contains(t, out, "bad thing")
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Configuration valid.\n", FormatHuman(&Result{Valid: true}))

	out := FormatHuman(&Result{Valid: true, Warnings: []Issue{{Category: "tool", Message: "slow"}}})
	assert.Contains(t, out, "1 warning(s)")
	assert.Contains(t, out, "WARN  [tool] slow")

	out = FormatHuman(&Result{
		Valid:  false,
		Errors: []Issue{{Category: "test", Field: "x.y", Message: "broken"}},
	})
	assert.Contains(t, out, "ERROR [test] x.y: broken")
}

// --- helpers ---

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
