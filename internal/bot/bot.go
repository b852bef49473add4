package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mattjoyce/claudegram/internal/auth"
	"github.com/mattjoyce/claudegram/internal/control"
	"github.com/mattjoyce/claudegram/internal/engine"
	"github.com/mattjoyce/claudegram/internal/queue"
	"github.com/mattjoyce/claudegram/internal/response"
	"github.com/mattjoyce/claudegram/internal/telegram"
)

// ErrDenied is returned for senders outside the allow-list.
var ErrDenied = errors.New("sender not allowed")

// DeniedReply is the only thing an unknown sender ever gets back.
const DeniedReply = "Access denied"

// Submitter queues prompts. *engine.Engine satisfies it.
type Submitter interface {
	Submit(ctx context.Context, chatID, senderID int64, text string) (queue.Request, int)
}

// Commands answers slash commands. *control.Surface satisfies it.
type Commands interface {
	Begin(chatID int64, cmd control.Command) control.Reply
}

// Router turns inbound chat messages into queued prompts or command replies.
type Router struct {
	allow     *auth.AllowList
	submitter Submitter
	commands  Commands
	replies   *response.Dispatcher
	logger    *slog.Logger

	wg sync.WaitGroup
}

func NewRouter(allow *auth.AllowList, submitter Submitter, commands Commands, messenger engine.Messenger, logger *slog.Logger) *Router {
	return &Router{
		allow:     allow,
		submitter: submitter,
		commands:  commands,
		replies:   response.NewDispatcher(messenger, response.DefaultLimit, logger),
		logger:    logger,
	}
}

// HandleUpdate is the poll loop's handler. Prompts are queued, and commands
// applied, before it returns, which preserves arrival order. Command replies
// are produced on their own goroutine so slow ones never hold up polling.
func (r *Router) HandleUpdate(ctx context.Context, u telegram.Update) {
	msg := u.Message
	if msg == nil || msg.From == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	chatID, senderID := msg.Chat.ID, msg.From.ID
	logger := r.logger.With("chat_id", chatID, "sender_id", senderID, "update_id", u.UpdateID)

	if err := r.authorize(senderID); err != nil {
		logger.Warn("rejected message", "error", err)
		r.reply(ctx, chatID, DeniedReply, logger)
		return
	}

	if cmd, ok := control.Parse(msg.Text); ok {
		reply := r.begin(chatID, cmd, logger)
		if reply == nil {
			return
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("command panicked", "command", cmd.Name, "panic", rec)
				}
			}()
			r.reply(ctx, chatID, reply(ctx), logger)
		}()
		return
	}

	req, pos := r.submitter.Submit(ctx, chatID, senderID, msg.Text)
	logger.Debug("message queued", "job_id", req.ID, "position", pos)
}

func (r *Router) begin(chatID int64, cmd control.Command, logger *slog.Logger) (reply control.Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("command panicked", "command", cmd.Name, "panic", rec)
			reply = nil
		}
	}()
	return r.commands.Begin(chatID, cmd)
}

// Wait blocks until in-flight command handlers have replied.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) authorize(senderID int64) error {
	if !r.allow.Allowed(senderID) {
		return fmt.Errorf("%w: %d", ErrDenied, senderID)
	}
	return nil
}

func (r *Router) reply(ctx context.Context, chatID int64, text string, logger *slog.Logger) {
	if err := r.replies.Send(ctx, chatID, text); err != nil {
		logger.Warn("reply failed", "error", err)
	}
}
