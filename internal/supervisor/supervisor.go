package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// maxStderrBytes caps the amount of stderr kept from a run.
	maxStderrBytes = 64 * 1024

	// stderrExcerpt is how much stderr is surfaced to the chat on failure.
	stderrExcerpt = 500

	DefaultTimeout   = 600 * time.Second
	DefaultKillGrace = 5 * time.Second
)

var (
	// ErrSpawn means the tool could not be started.
	ErrSpawn = errors.New("tool could not be started")
	// ErrTimeout means the run exceeded its wall-clock limit and was killed.
	ErrTimeout = errors.New("tool timed out")
	// ErrToolFailure means a non-zero exit with nothing on stdout.
	ErrToolFailure = errors.New("tool failed")
	// ErrCanceled means the run was killed on request.
	ErrCanceled = errors.New("tool run canceled")
)

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCanceled  Status = "canceled"
)

// Invocation is one request for the tool.
type Invocation struct {
	JobID   string
	ChatID  int64
	Prompt  string
	Context string
}

// Outcome is the result of Run. Output is stdout with surrounding whitespace
// removed. ExitCode is -1 when the process never exited normally.
type Outcome struct {
	Status     Status
	Output     string
	Stderr     string
	ExitCode   int
	Err        error
	Duration   time.Duration
	PromptHash string
}

// Config describes how the tool is launched.
type Config struct {
	Command      string
	Args         []string
	Workdir      string
	PromptDir    string
	SystemPrompt string
	Timeout      time.Duration
	KillGrace    time.Duration
}

// Supervisor spawns the external tool and enforces its timeout.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Supervisor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.KillGrace < 0 {
		cfg.KillGrace = 0
	}
	return &Supervisor{cfg: cfg, logger: logger}
}

// Timeout is the effective wall-clock limit per run.
func (s *Supervisor) Timeout() time.Duration {
	return s.cfg.Timeout
}

// Run composes the prompt, feeds it to the tool on stdin and waits for the
// process. Cancelling ctx kills the process group and yields StatusCanceled.
// Run blocks; callers keep it off any goroutine that must stay responsive.
func (s *Supervisor) Run(ctx context.Context, inv Invocation) Outcome {
	start := time.Now()
	full := ComposePrompt(s.cfg.SystemPrompt, inv.Context, inv.Prompt)
	out := Outcome{ExitCode: -1, PromptHash: Fingerprint(full)}
	logger := s.logger.With("job_id", inv.JobID, "chat_id", inv.ChatID)

	finish := func(status Status, err error) Outcome {
		out.Status = status
		out.Err = err
		out.Duration = time.Since(start)
		return out
	}

	promptPath, err := writePromptFile(s.cfg.PromptDir, full)
	if err != nil {
		return finish(StatusFailed, fmt.Errorf("%w: %w", ErrSpawn, err))
	}
	defer os.Remove(promptPath)

	stdin, err := os.Open(promptPath)
	if err != nil {
		return finish(StatusFailed, fmt.Errorf("%w: open prompt file: %w", ErrSpawn, err))
	}
	defer stdin.Close()

	// Not CommandContext: termination is handled below so that timeouts get
	// a grace period and cancels do not.
	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Dir = s.cfg.Workdir
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = max(s.cfg.KillGrace, time.Second)
	setProcessGroup(cmd)

	logger.Debug("spawning tool", "command", s.cfg.Command, "timeout", s.cfg.Timeout, "prompt_hash", out.PromptHash)
	if err := cmd.Start(); err != nil {
		return finish(StatusFailed, fmt.Errorf("%w: %w", ErrSpawn, err))
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	timeout := time.NewTimer(s.cfg.Timeout)
	defer timeout.Stop()

	select {
	case <-timeout.C:
		logger.Warn("tool timed out, sending SIGTERM", "timeout", s.cfg.Timeout)
		if err := terminate(cmd); err != nil {
			logger.Error("failed to send SIGTERM", "error", err)
		}

		grace := time.NewTimer(s.cfg.KillGrace)
		defer grace.Stop()
		select {
		case <-waitErr:
			logger.Info("tool exited after SIGTERM")
		case <-grace.C:
			logger.Warn("tool did not exit after SIGTERM, sending SIGKILL")
			if err := kill(cmd); err != nil {
				logger.Error("failed to send SIGKILL", "error", err)
			}
			<-waitErr
		}
		s.capture(&out, cmd, &stdout, &stderr)
		return finish(StatusTimedOut, fmt.Errorf("%w after %v", ErrTimeout, s.cfg.Timeout))

	case <-ctx.Done():
		logger.Info("tool run canceled, killing process group")
		if err := kill(cmd); err != nil {
			logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
		s.capture(&out, cmd, &stdout, &stderr)
		return finish(StatusCanceled, fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx)))

	case err := <-waitErr:
		s.capture(&out, cmd, &stdout, &stderr)
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
			logger.Warn("wait for tool failed", "error", err)
			if out.Output == "" {
				return finish(StatusFailed, fmt.Errorf("%w: wait: %w", ErrToolFailure, err))
			}
		}

		logger.Info("tool exited", "exit_code", out.ExitCode, "stdout_len", len(out.Output), "stderr_len", len(out.Stderr))
		if out.Stderr != "" {
			logger.Debug("tool stderr", "stderr", excerpt(out.Stderr, 200))
		}

		// Usable output wins over the exit status.
		if out.Output != "" {
			return finish(StatusCompleted, nil)
		}
		if out.ExitCode != 0 {
			return finish(StatusFailed, fmt.Errorf("%w: exit code %d: %s",
				ErrToolFailure, out.ExitCode, excerpt(out.Stderr, stderrExcerpt)))
		}
		return finish(StatusCompleted, nil)
	}
}

func (s *Supervisor) capture(out *Outcome, cmd *exec.Cmd, stdout, stderr *bytes.Buffer) {
	out.Output = strings.TrimSpace(stdout.String())
	out.Stderr = truncateStderr(stderr.String())
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}
}

func writePromptFile(dir, prompt string) (string, error) {
	f, err := os.CreateTemp(dir, "claudegram-prompt-*.txt")
	if err != nil {
		return "", fmt.Errorf("create prompt file: %w", err)
	}
	if _, err := f.WriteString(prompt); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write prompt file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close prompt file: %w", err)
	}
	return f.Name(), nil
}

// truncateStderr truncates stderr to at most maxStderrBytes without
// splitting a UTF-8 sequence.
func truncateStderr(s string) string {
	if len(s) <= maxStderrBytes {
		return s
	}
	cut := maxStderrBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// excerpt returns at most n runes of s.
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
