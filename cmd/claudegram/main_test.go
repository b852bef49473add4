package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/claudegram/internal/config"
	"github.com/mattjoyce/claudegram/internal/log"
	"github.com/mattjoyce/claudegram/internal/telegram"
)

const testToken = "123456789:AAbbCCddEEffGGhhIIjjKKllMM"

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	require.NoError(t, err)
	stderrR, stderrW, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = stdoutW
	os.Stderr = stderrW

	outCh := make(chan []byte, 1)
	errCh := make(chan []byte, 1)
	go func() { b, _ := io.ReadAll(stdoutR); outCh <- b }()
	go func() { b, _ := io.ReadAll(stderrR); errCh <- b }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	return code, string(<-outCh), string(<-errCh)
}

// writeConfig lays out a workdir that passes every doctor check and returns
// the config path.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	work := filepath.Join(dir, "work")
	require.NoError(t, os.MkdirAll(filepath.Join(work, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(work, "pubspec.yaml"), []byte("version: 2.1.0\n"), 0o644))

	body := `
telegram:
  token: "` + testToken + `"
access:
  allowed_users: [1001]
tool:
  command: sh
  workdir: ` + work + `
vcs:
  command: sh
state:
  path: ` + filepath.Join(dir, "state", "claudegram.db") + `
` + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunCLIUsage(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI([]string{"help"}) })
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "claudegram <command>")

	code, _, _ = captureOutputWithExitCode(t, func() int { return runCLI(nil) })
	assert.Equal(t, 1, code)

	code, _, stderr := captureOutputWithExitCode(t, func() int { return runCLI([]string{"bogus"}) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: bogus")

	code, _, stderr = captureOutputWithExitCode(t, func() int { return runCLI([]string{"config", "frobnicate"}) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown config action")
}

func TestRunVersionJSON(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI([]string{"version", "--json"}) })
	require.Equal(t, 0, code)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, version, info.Version)
	assert.NotEmpty(t, info.Commit)
}

func TestConfigCheck(t *testing.T) {
	path := writeConfig(t, "")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path, "--strict"})
	})
	assert.Equal(t, 0, code, "stdout: %s stderr: %s", stdout, stderr)
	assert.Contains(t, stdout, "Configuration valid.")
}

func TestConfigCheckStrictWarnings(t *testing.T) {
	path := writeConfig(t, "version_file:\n  path: missing.yaml\n")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path, "--json"})
	})
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, `"version_file"`)

	code, _, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path, "--strict"})
	})
	assert.Equal(t, 2, code)
}

func TestConfigCheckLoadError(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"doctor", "--config", filepath.Join(t.TempDir(), "none.yaml")})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Config load error")
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	path := writeConfig(t, "api:\n  enabled: true\n  auth:\n    api_key: super-secret-operator-key\n")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "show", "--config", path})
	})
	require.Equal(t, 0, code, stderr)
	assert.NotContains(t, stdout, testToken)
	assert.NotContains(t, stdout, "super-secret-operator-key")
	assert.Contains(t, stdout, redacted)
	assert.Contains(t, stdout, "allowed_users")
}

func TestConfigGet(t *testing.T) {
	path := writeConfig(t, "")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "get", "--config", path, "tool.command"})
	})
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "sh\n", stdout)

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "get", "--config", path, "telegram.token"})
	})
	assert.Equal(t, 0, code)
	assert.NotContains(t, stdout, testToken)

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "get", "--config", path, "access"})
	})
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "1001")

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "get", "--config", path, "tool.missing"})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not found")
}

func TestRedactSecretsLeavesOriginal(t *testing.T) {
	cfg := config.Defaults()
	cfg.Telegram.Token = testToken
	out := redactSecrets(cfg)
	assert.Equal(t, redacted, out.Telegram.Token)
	assert.Empty(t, out.API.Auth.APIKey)
	assert.Equal(t, testToken, cfg.Telegram.Token)
}

func TestWatchRequiresKey(t *testing.T) {
	t.Setenv("CLAUDEGRAM_API_KEY", "")
	code, _, stderr := captureOutputWithExitCode(t, func() int { return runCLI([]string{"watch"}) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "API key required")
}

type fakePoller struct {
	calls atomic.Int32
	poll  func(n int32, ctx context.Context) error
}

func (f *fakePoller) Poll(ctx context.Context, _ telegram.Handler) error {
	return f.poll(f.calls.Add(1), ctx)
}

func TestPollForeverRestartsAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &fakePoller{poll: func(n int32, ctx context.Context) error {
		if n < 3 {
			return errors.New("getUpdates failed 10 times in a row")
		}
		cancel()
		<-ctx.Done()
		return nil
	}}

	err := pollForever(ctx, p, nil, time.Millisecond, log.WithComponent("test"))
	assert.NoError(t, err)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestPollForeverStopsOnRejectedToken(t *testing.T) {
	p := &fakePoller{poll: func(int32, context.Context) error {
		return telegram.ErrUnauthorized
	}}
	err := pollForever(context.Background(), p, nil, time.Millisecond, log.WithComponent("test"))
	assert.ErrorIs(t, err, telegram.ErrUnauthorized)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestPollForeverTreatsCleanReturnAsCrash(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &fakePoller{poll: func(n int32, ctx context.Context) error {
		if n == 2 {
			cancel()
		}
		return nil
	}}
	err := pollForever(ctx, p, nil, time.Millisecond, log.WithComponent("test"))
	assert.NoError(t, err)
	assert.Equal(t, int32(2), p.calls.Load())
}

type fakeUpdateClient struct {
	fakePoller
	hookURL, secret string
	deleted         int
	setErr          error
}

func (f *fakeUpdateClient) SetWebhook(_ context.Context, hookURL, secret string) error {
	f.hookURL, f.secret = hookURL, secret
	return f.setErr
}

func (f *fakeUpdateClient) DeleteWebhook(context.Context) error {
	f.deleted++
	return nil
}

func TestUpdateSourcePollingClearsWebhook(t *testing.T) {
	cfg := config.Defaults()
	tg := &fakeUpdateClient{}
	tg.poll = func(int32, context.Context) error { return telegram.ErrUnauthorized }

	receive, err := updateSource(context.Background(), cfg, tg, nil, log.WithComponent("test"))
	require.NoError(t, err)
	assert.Equal(t, 1, tg.deleted)
	assert.Empty(t, tg.hookURL)
	assert.ErrorIs(t, receive(context.Background()), telegram.ErrUnauthorized)
}

func TestUpdateSourceWebhookRegisters(t *testing.T) {
	cfg := config.Defaults()
	cfg.Telegram.Webhook = config.WebhookConfig{
		Enabled:   true,
		Listen:    "127.0.0.1:0",
		Path:      "/tg",
		PublicURL: "https://bot.example.com/",
		Secret:    "hook-secret",
	}
	tg := &fakeUpdateClient{}

	receive, err := updateSource(context.Background(), cfg, tg, nil, log.WithComponent("test"))
	require.NoError(t, err)
	assert.NotNil(t, receive)
	assert.Equal(t, "https://bot.example.com/tg", tg.hookURL)
	assert.Equal(t, "hook-secret", tg.secret)
	assert.Zero(t, tg.deleted)

	tg.setErr = errors.New("bad request")
	_, err = updateSource(context.Background(), cfg, tg, nil, log.WithComponent("test"))
	assert.ErrorContains(t, err, "setWebhook")

	cfg.Telegram.Webhook.MaxBodySize = "huge"
	_, err = updateSource(context.Background(), cfg, tg, nil, log.WithComponent("test"))
	assert.ErrorContains(t, err, "max_body_size")
}

func TestCurrentVersionInfoShortensCommit(t *testing.T) {
	old := gitCommit
	t.Cleanup(func() { gitCommit = old })
	gitCommit = strings.Repeat("a", 40)
	assert.Equal(t, strings.Repeat("a", 12), currentVersionInfo().Commit)
}
