package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattjoyce/claudegram/internal/engine"
	"github.com/mattjoyce/claudegram/internal/versionfile"
)

const (
	previewLen          = 50
	defaultHistoryLimit = 5
)

const helpText = `Send any message to hand it to the coding tool. Requests run one at a time in arrival order.

/status - recent commits and tool state
/queue - pending requests
/ping - liveness check
/cancel - stop the running job and clear the queue
/reset - forget this chat's conversation, clear the queue, stop the running job
/revert - revert the last commit and push
/version - current version of the project
/history - recently finished jobs
/help - this message`

// Config locates the versioned artifact and sizes /history.
type Config struct {
	VersionPath  string
	VersionField string
	HistoryLimit int
}

// Surface answers control commands. It never queues work.
type Surface struct {
	cfg     Config
	engine  Engine
	vcs     VCS
	history History
	logger  *slog.Logger
}

// New builds a Surface. history may be nil, which disables /history.
func New(cfg Config, eng Engine, vcs VCS, history History, logger *slog.Logger) *Surface {
	if cfg.VersionField == "" {
		cfg.VersionField = "version"
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &Surface{cfg: cfg, engine: eng, vcs: vcs, history: history, logger: logger}
}

// Reply produces a command's answer. It may block on git, the journal or a
// job that is still shutting down.
type Reply func(ctx context.Context) string

// Begin applies whatever cmd changes in engine state and reads any state it
// reports on, then returns the rest of the work as a Reply. Callers invoke
// Begin in message arrival order so a command never sees or clears a
// message sent after it.
func (s *Surface) Begin(chatID int64, cmd Command) Reply {
	s.logger.Info("control command", "command", cmd.Name, "chat_id", chatID)

	switch cmd.Name {
	case "status":
		snap := s.engine.Snapshot()
		return func(ctx context.Context) string { return s.status(ctx, snap) }
	case "cancel":
		return s.cancel()
	case "reset":
		return s.reset(chatID)
	case "queue":
		return fixed(s.queue())
	case "ping":
		return fixed(s.ping())
	case "revert":
		return s.revert
	case "version":
		return func(context.Context) string { return s.version() }
	case "history":
		return s.recent
	case "help", "start":
		return fixed(helpText)
	default:
		return fixed(fmt.Sprintf("Unknown command /%s. Send /help for the list.", cmd.Name))
	}
}

func fixed(text string) Reply {
	return func(context.Context) string { return text }
}

func (s *Surface) status(ctx context.Context, snap engine.Snapshot) string {
	commits, err := s.vcs.Log(ctx)
	if err != nil {
		commits = "(unavailable: " + err.Error() + ")"
	}

	tool := "Tool: idle"
	if snap.Current != nil {
		tool = fmt.Sprintf("Tool: busy (%ds)", secs(snap.Current.Elapsed))
	}
	return fmt.Sprintf("Recent commits:\n%s\n%s\nPending messages: %d", commits, tool, snap.QueueLength)
}

func (s *Surface) cancel() Reply {
	res, ok := s.engine.Interrupt()
	if !ok {
		return fixed("Nothing running to cancel.")
	}
	return func(ctx context.Context) string {
		cleared := fmt.Sprintf("Queue cleared (%d message(s) removed).", res.Cleared)
		if res.Finished {
			s.engine.Settle(ctx, res.Done())
			return "The running job had already finished; its answer is being delivered.\n" + cleared
		}
		msg := fmt.Sprintf("Canceled! (was running for %ds)\n%s\nThe tool is available.", secs(res.Elapsed), cleared)
		if !s.engine.Settle(ctx, res.Done()) {
			msg += "\nThe process is still shutting down."
		}
		return msg
	}
}

func (s *Surface) reset(chatID int64) Reply {
	res := s.engine.ResetChat(chatID)
	return func(ctx context.Context) string {
		msg := "Conversation reset, queue cleared"
		if res.Cleared > 0 {
			msg += fmt.Sprintf(" (%d message(s) removed)", res.Cleared)
		}
		if res.Killed {
			msg += ", running job stopped"
			if !s.engine.Settle(ctx, res.Done()) {
				msg += " (still shutting down)"
			}
		}
		return msg + "."
	}
}

func (s *Surface) queue() string {
	pending := s.engine.Snapshot().Pending
	if len(pending) == 0 {
		return "Queue empty."
	}
	lines := make([]string, 0, len(pending)+1)
	lines = append(lines, fmt.Sprintf("Queue (%d messages):", len(pending)))
	for i, req := range pending {
		lines = append(lines, fmt.Sprintf("  #%d: %s", i+1, req.Preview(previewLen)))
	}
	return strings.Join(lines, "\n")
}

func (s *Surface) ping() string {
	snap := s.engine.Snapshot()
	var b strings.Builder
	b.WriteString("Pong! Bot alive\n")
	if snap.Current != nil {
		fmt.Fprintf(&b, "Status: processing\nRunning for: %ds\n", secs(snap.Current.Elapsed))
	} else {
		b.WriteString("Status: available\n")
	}
	fmt.Fprintf(&b, "Queue: %d message(s)", snap.QueueLength)
	return b.String()
}

func (s *Surface) revert(ctx context.Context) string {
	if _, err := s.vcs.Revert(ctx); err != nil {
		return "Revert error: " + err.Error()
	}
	return "Last commit reverted and pushed."
}

func (s *Surface) version() string {
	v, err := versionfile.Read(s.cfg.VersionPath, s.cfg.VersionField)
	switch {
	case errors.Is(err, versionfile.ErrNotFound):
		return "Version not found"
	case err != nil:
		return "Error: " + err.Error()
	}
	return versionfile.Line(s.cfg.VersionField, v)
}

func (s *Surface) recent(ctx context.Context) string {
	if s.history == nil {
		return "History is not recorded."
	}
	entries, err := s.history.Recent(ctx, s.cfg.HistoryLimit)
	if err != nil {
		s.logger.Warn("history lookup failed", "error", err)
		return "Error: " + err.Error()
	}
	if len(entries) == 0 {
		return "No finished jobs yet."
	}
	lines := []string{"Recent jobs:"}
	for _, e := range entries {
		line := fmt.Sprintf("  %s %s %ds (exit %d)",
			e.CompletedAt.Local().Format("01-02 15:04"), e.Status, secs(e.Duration), e.ExitCode)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func secs(d time.Duration) int {
	return int(d / time.Second)
}
