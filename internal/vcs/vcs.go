package vcs

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLogCount = 5
	DefaultTimeout  = 2 * time.Minute
)

// Config locates the repository the tool works in.
type Config struct {
	Command  string
	Dir      string
	LogCount int
	Timeout  time.Duration
	// Remote is pushed to on revert; empty means the branch upstream.
	Remote string
}

// Git runs the few version-control commands the bot exposes.
type Git struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Git {
	if cfg.Command == "" {
		cfg.Command = "git"
	}
	if cfg.LogCount <= 0 {
		cfg.LogCount = DefaultLogCount
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Git{cfg: cfg, logger: logger}
}

// Log returns the most recent commits, one per line.
func (g *Git) Log(ctx context.Context) (string, error) {
	return g.run(ctx, "log", "--oneline", "-"+strconv.Itoa(g.cfg.LogCount))
}

// Revert reverts HEAD and pushes the result.
func (g *Git) Revert(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "revert", "HEAD", "--no-edit")
	if err != nil {
		return "", err
	}
	pushArgs := []string{"push"}
	if g.cfg.Remote != "" {
		pushArgs = append(pushArgs, g.cfg.Remote, "HEAD")
	}
	pushed, err := g.run(ctx, pushArgs...)
	if err != nil {
		return out, err
	}
	g.logger.Info("reverted HEAD", "dir", g.cfg.Dir)
	return strings.TrimSpace(out + "\n" + pushed), nil
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.cfg.Command, args...)
	cmd.Dir = g.cfg.Dir
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text == "" {
			text = err.Error()
		}
		g.logger.Warn("git command failed", "args", strings.Join(args, " "), "error", text)
		return "", fmt.Errorf("%s %s: %s", g.cfg.Command, strings.Join(args, " "), text)
	}
	return text, nil
}
