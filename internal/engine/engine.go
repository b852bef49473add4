package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/claudegram/internal/conversation"
	"github.com/mattjoyce/claudegram/internal/events"
	"github.com/mattjoyce/claudegram/internal/heartbeat"
	"github.com/mattjoyce/claudegram/internal/journal"
	"github.com/mattjoyce/claudegram/internal/queue"
	"github.com/mattjoyce/claudegram/internal/response"
	"github.com/mattjoyce/claudegram/internal/supervisor"
)

const (
	// DefaultSettleTimeout bounds how long Cancel and Reset wait for a
	// killed job to be released by the worker.
	DefaultSettleTimeout = 5 * time.Second

	previewLen    = 50
	recordTimeout = 5 * time.Second
)

// Config tunes the engine.
type Config struct {
	HeartbeatInterval time.Duration
	MaxMessageLen     int
	SettleTimeout     time.Duration
	// NewTicker overrides the heartbeat clock; nil uses a real ticker.
	NewTicker heartbeat.TickerFunc
}

// Deps are the collaborators of the engine. Journal and Events are optional.
type Deps struct {
	Runner        Runner
	Messenger     Messenger
	Conversations *conversation.Store
	Queue         *queue.Queue
	Journal       Recorder
	Events        Publisher
	Logger        *slog.Logger
}

// Engine owns the request queue and the running job. Inbound handlers only
// call Submit and the control methods; Run is the single worker that takes
// jobs off the queue and drives them to a terminal state.
type Engine struct {
	cfg        Config
	runner     Runner
	messenger  Messenger
	dispatcher *response.Dispatcher
	convo      *conversation.Store
	queue      *queue.Queue
	journal    Recorder
	events     Publisher
	logger     *slog.Logger
	now        func() time.Time

	running atomic.Bool

	mu      sync.Mutex
	current *Job
}

func New(cfg Config, deps Deps) *Engine {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = heartbeat.DefaultInterval
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = DefaultSettleTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Conversations == nil {
		deps.Conversations = conversation.NewStore(conversation.DefaultWindow)
	}
	if deps.Queue == nil {
		deps.Queue = queue.New()
	}
	return &Engine{
		cfg:        cfg,
		runner:     deps.Runner,
		messenger:  deps.Messenger,
		dispatcher: response.NewDispatcher(deps.Messenger, cfg.MaxMessageLen, deps.Logger),
		convo:      deps.Conversations,
		queue:      deps.Queue,
		journal:    deps.Journal,
		events:     deps.Events,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// Conversations exposes the store for reset and inspection.
func (e *Engine) Conversations() *conversation.Store {
	return e.convo
}

// Timeout is the per-job wall-clock limit.
func (e *Engine) Timeout() time.Duration {
	return e.runner.Timeout()
}

// Submit records text as a user turn and queues it. When a job is already
// running the sender is told where the request sits in line.
func (e *Engine) Submit(ctx context.Context, chatID, senderID int64, text string) (queue.Request, int) {
	e.convo.Append(chatID, conversation.RoleUser, text)

	e.mu.Lock()
	req, pos := e.queue.Enqueue(queue.Request{ChatID: chatID, SenderID: senderID, Prompt: text})
	var busyFor time.Duration
	busy := e.current != nil
	if busy {
		busyFor = e.now().Sub(e.current.StartedAt)
	}
	e.mu.Unlock()

	e.logger.Info("request queued", "job_id", req.ID, "chat_id", chatID, "position", pos, "busy", busy)
	e.publish(events.JobEnqueued, events.JobData{JobID: req.ID, ChatID: chatID, Position: pos, PromptLen: len(text)})

	if busy {
		e.notify(ctx, chatID, queuedAck(pos, busyFor))
	}
	return req, pos
}

// Run is the worker loop. It returns ctx.Err() on shutdown, or
// ErrWorkerRunning if another Run is active.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrWorkerRunning
	}
	defer e.running.Store(false)

	e.logger.Info("worker started")
	defer e.logger.Info("worker stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, jobCtx, ok := e.next(ctx)
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.queue.Ready():
			}
			continue
		}
		e.process(ctx, jobCtx, job)
	}
}

// next pops the head of the queue and makes it the current job in one step,
// so no control command can observe a popped but unowned request.
func (e *Engine) next(ctx context.Context) (*Job, context.Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, ok := e.queue.Pop()
	if !ok {
		return nil, nil, false
	}
	jobCtx, cancel := context.WithCancelCause(ctx)
	job := newJob(req, e.now(), cancel)
	e.current = job
	return job, jobCtx, true
}

type result struct {
	out         supervisor.Outcome
	deliveryErr error
}

func (e *Engine) process(ctx, jobCtx context.Context, job *Job) {
	logger := e.logger.With("job_id", job.ID, "chat_id", job.ChatID)
	res := &result{out: supervisor.Outcome{Status: supervisor.StatusFailed, ExitCode: -1}}

	defer e.release(ctx, job, res, logger)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
			res.out = supervisor.Outcome{Status: supervisor.StatusFailed, ExitCode: -1, Err: fmt.Errorf("internal error: %v", r)}
			e.notify(ctx, job.ChatID, failureNotice(res.out.Err))
		}
	}()

	waiting := e.queue.Len()
	logger.Info("job started", "waiting", waiting, "queued_for", job.StartedAt.Sub(job.EnqueuedAt))
	e.publish(events.JobStarted, events.JobData{JobID: job.ID, ChatID: job.ChatID, PromptLen: len(job.Prompt)})
	e.notify(ctx, job.ChatID, startNotice(waiting, e.runner.Timeout()))

	res.out = e.runTool(jobCtx, job, logger)
	e.toolFinished(jobCtx, job, &res.out)

	switch res.out.Status {
	case supervisor.StatusCompleted:
		resp, err := e.dispatcher.Deliver(ctx, job.ChatID, res.out.Output)
		if err != nil {
			logger.Warn("response delivery failed", "error", err)
			res.deliveryErr = err
		}
		logger.Info("job completed", "kind", resp.Kind.String(), "exit_code", res.out.ExitCode, "duration", res.out.Duration)
	case supervisor.StatusTimedOut:
		logger.Warn("job timed out", "timeout", e.runner.Timeout())
		res.deliveryErr = e.notify(ctx, job.ChatID, timeoutNotice(e.runner.Timeout()))
	case supervisor.StatusCanceled:
		logger.Info("job canceled", "cause", context.Cause(jobCtx))
	default:
		logger.Warn("job failed", "error", res.out.Err, "exit_code", res.out.ExitCode)
		res.deliveryErr = e.notify(ctx, job.ChatID, failureNotice(res.out.Err))
	}
}

// runTool runs the tool with the heartbeat alive for exactly as long as the
// run: Stop returns before runTool does, on every path.
func (e *Engine) runTool(ctx context.Context, job *Job, logger *slog.Logger) supervisor.Outcome {
	hb := heartbeat.Start(ctx, heartbeat.Config{
		Interval:  e.cfg.HeartbeatInterval,
		Timeout:   e.runner.Timeout(),
		NewTicker: e.cfg.NewTicker,
	}, func(ctx context.Context, b heartbeat.Beat) error {
		e.publish(events.JobHeartbeat, events.JobData{JobID: job.ID, ChatID: job.ChatID, Beat: b.N, ElapsedMS: b.Elapsed.Milliseconds()})
		return e.messenger.Send(ctx, job.ChatID, heartbeatNotice(b.Elapsed, b.Remaining))
	}, logger)
	defer hb.Stop()

	out := e.runner.Run(ctx, supervisor.Invocation{
		JobID:   job.ID,
		ChatID:  job.ChatID,
		Prompt:  job.Prompt,
		Context: e.convo.Context(job.ChatID),
	})
	hb.Stop()
	logger.Debug("tool exited", "status", out.Status, "heartbeats", hb.Beats(), "duration", out.Duration)
	return out
}

// toolFinished marks the job as delivering. A run that exited on its own
// after an operator asked to stop it counts as canceled. The answer joins
// the conversation under the same lock a reset takes.
func (e *Engine) toolFinished(jobCtx context.Context, job *Job, out *supervisor.Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job.toolDone = true

	cause := context.Cause(jobCtx)
	if out.Status == supervisor.StatusCompleted && (errors.Is(cause, errCancelRequested) || errors.Is(cause, errResetRequested)) {
		out.Status = supervisor.StatusCanceled
		out.Err = fmt.Errorf("%w: %w", supervisor.ErrCanceled, cause)
		return
	}
	if out.Status == supervisor.StatusCompleted && out.Output != "" {
		e.convo.Append(job.ChatID, conversation.RoleAssistant, out.Output)
	}
}

// release journals the job, announces its end and hands the tool back.
func (e *Engine) release(ctx context.Context, job *Job, res *result, logger *slog.Logger) {
	job.State = stateOf(res.out.Status)
	finished := e.now()

	errText := ""
	if res.out.Err != nil {
		errText = res.out.Err.Error()
	}
	if res.deliveryErr != nil {
		errText = joinErr(errText, res.deliveryErr.Error())
	}

	if e.journal != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		err := e.journal.Record(rctx, journal.Entry{
			JobID:       job.ID,
			ChatID:      job.ChatID,
			PromptHash:  res.out.PromptHash,
			Status:      string(job.State),
			ExitCode:    res.out.ExitCode,
			EnqueuedAt:  job.EnqueuedAt,
			StartedAt:   job.StartedAt,
			CompletedAt: finished,
			Duration:    finished.Sub(job.StartedAt),
			LastError:   errText,
			Stderr:      res.out.Stderr,
		})
		cancel()
		if err != nil {
			logger.Error("failed to journal job", "error", err)
		}
	}

	data := events.JobData{JobID: job.ID, ChatID: job.ChatID, ElapsedMS: finished.Sub(job.StartedAt).Milliseconds(), Error: errText}
	if res.out.ExitCode >= 0 {
		code := res.out.ExitCode
		data.ExitCode = &code
	}
	e.publish(eventFor(job.State), data)

	e.mu.Lock()
	if e.current == job {
		e.current = nil
	}
	e.mu.Unlock()
	job.cancel(nil)
	close(job.done)
}

// Interrupt kills the running job and drops everything queued behind it,
// without waiting for the worker. ok is false when nothing was running. A
// job whose tool already exited is left to finish delivering.
func (e *Engine) Interrupt() (res CancelResult, ok bool) {
	e.mu.Lock()
	job := e.current
	if job == nil {
		e.mu.Unlock()
		return CancelResult{}, false
	}
	cleared := e.queue.Clear()
	if !job.toolDone {
		job.cancel(errCancelRequested)
	}
	res = CancelResult{
		JobID:    job.ID,
		Elapsed:  e.now().Sub(job.StartedAt),
		Cleared:  cleared,
		Finished: job.toolDone,
		done:     job.done,
	}
	e.mu.Unlock()

	e.logger.Info("cancel requested", "job_id", job.ID, "elapsed", res.Elapsed, "cleared", cleared, "finished", res.Finished)
	e.publish(events.QueueCleared, events.QueueData{Cleared: cleared, Reason: "cancel"})
	return res, true
}

// Cancel is Interrupt followed by a wait, bounded by SettleTimeout, for the
// worker to release the job.
func (e *Engine) Cancel(ctx context.Context) (CancelResult, bool) {
	res, ok := e.Interrupt()
	if ok {
		res.Settled = e.Settle(ctx, res.Done())
	}
	return res, ok
}

// ResetChat forgets chatID's conversation, empties the queue and kills any
// running job, without waiting for the worker.
func (e *Engine) ResetChat(chatID int64) ResetResult {
	e.mu.Lock()
	e.convo.Reset(chatID)
	res := ResetResult{Cleared: e.queue.Clear(), Settled: true}
	job := e.current
	if job != nil && !job.toolDone {
		job.cancel(errResetRequested)
		res.Killed = true
		res.Settled = false
		res.done = job.done
	}
	e.mu.Unlock()

	e.logger.Info("reset requested", "chat_id", chatID, "cleared", res.Cleared, "killed", res.Killed)
	e.publish(events.QueueCleared, events.QueueData{Cleared: res.Cleared, Reason: "reset"})
	return res
}

// Reset is ResetChat followed by a bounded wait for a killed job.
func (e *Engine) Reset(ctx context.Context, chatID int64) ResetResult {
	res := e.ResetChat(chatID)
	if res.Killed {
		res.Settled = e.Settle(ctx, res.Done())
		if !res.Settled {
			e.logger.Warn("running job did not settle after reset")
		}
	}
	return res
}

// Settle waits, bounded by SettleTimeout, until done is closed. A nil done
// has nothing to wait for.
func (e *Engine) Settle(ctx context.Context, done <-chan struct{}) bool {
	if done == nil {
		return true
	}
	timer := time.NewTimer(e.cfg.SettleTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Snapshot reports the running job and the pending requests.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	pending := e.queue.Snapshot()
	snap := Snapshot{
		Processing:  e.current != nil,
		QueueLength: len(pending),
		Pending:     pending,
	}
	if job := e.current; job != nil {
		snap.Current = &JobView{
			ID:        job.ID,
			ChatID:    job.ChatID,
			Preview:   queue.Request{Prompt: job.Prompt}.Preview(previewLen),
			StartedAt: job.StartedAt,
			Elapsed:   e.now().Sub(job.StartedAt),
		}
	}
	return snap
}

func (e *Engine) notify(ctx context.Context, chatID int64, text string) error {
	if err := e.dispatcher.Send(ctx, chatID, text); err != nil {
		e.logger.Warn("notice delivery failed", "chat_id", chatID, "error", err)
		return err
	}
	return nil
}

func (e *Engine) publish(eventType string, data any) {
	if e.events != nil {
		e.events.Publish(eventType, data)
	}
}

func stateOf(s supervisor.Status) State {
	switch s {
	case supervisor.StatusCompleted:
		return StateCompleted
	case supervisor.StatusTimedOut:
		return StateTimedOut
	case supervisor.StatusCanceled:
		return StateCanceled
	default:
		return StateFailed
	}
}

func eventFor(s State) string {
	switch s {
	case StateCompleted:
		return events.JobCompleted
	case StateTimedOut:
		return events.JobTimedOut
	case StateCanceled:
		return events.JobCanceled
	default:
		return events.JobFailed
	}
}

func joinErr(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
