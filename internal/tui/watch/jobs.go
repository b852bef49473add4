package watch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/claudegram/internal/events"
)

const (
	statusQueued    = "queued"
	statusRunning   = "running"
	statusCompleted = "completed"

	heartbeatType = events.JobHeartbeat
	maxFinished   = 15
)

// JobState is one job as seen through the event stream.
type JobState struct {
	ID       string
	ChatID   int64
	Status   string
	Position int
	Started  time.Time
	Elapsed  time.Duration
	Beats    int
	Error    string
}

// JobBoard folds job.* and queue.cleared events into the running job, the
// waiting jobs and the most recently finished ones.
type JobBoard struct {
	Current  *JobState
	Waiting  []*JobState
	Finished []*JobState
}

// Apply updates the board with one event. Unknown types are ignored.
func (b *JobBoard) Apply(e events.Event) {
	if e.Type == events.QueueCleared {
		for _, j := range b.Waiting {
			j.Status = "canceled"
			b.finish(j)
		}
		b.Waiting = nil
		return
	}

	var data events.JobData
	if err := json.Unmarshal(e.Data, &data); err != nil || data.JobID == "" {
		return
	}

	switch e.Type {
	case events.JobEnqueued:
		b.Waiting = append(b.Waiting, &JobState{
			ID:       data.JobID,
			ChatID:   data.ChatID,
			Status:   statusQueued,
			Position: data.Position,
		})

	case events.JobStarted:
		job := b.takeWaiting(data.JobID)
		if job == nil {
			job = &JobState{ID: data.JobID, ChatID: data.ChatID}
		}
		job.Status = statusRunning
		job.Started = e.At
		b.Current = job

	case events.JobHeartbeat:
		if b.Current != nil && b.Current.ID == data.JobID {
			b.Current.Beats = data.Beat
			b.Current.Elapsed = time.Duration(data.ElapsedMS) * time.Millisecond
		}

	case events.JobCompleted, events.JobFailed, events.JobTimedOut, events.JobCanceled:
		job := b.Current
		if job == nil || job.ID != data.JobID {
			job = &JobState{ID: data.JobID, ChatID: data.ChatID}
		} else {
			b.Current = nil
		}
		job.Status = e.Type[len("job."):]
		job.Elapsed = time.Duration(data.ElapsedMS) * time.Millisecond
		job.Error = data.Error
		b.finish(job)
	}
}

func (b *JobBoard) takeWaiting(id string) *JobState {
	for i, j := range b.Waiting {
		if j.ID == id {
			b.Waiting = append(b.Waiting[:i], b.Waiting[i+1:]...)
			return j
		}
	}
	return nil
}

// finish records a job as done, newest first.
func (b *JobBoard) finish(j *JobState) {
	b.Finished = append([]*JobState{j}, b.Finished...)
	if len(b.Finished) > maxFinished {
		b.Finished = b.Finished[:maxFinished]
	}
}

// rows lists the running job, then the waiting ones, then finished jobs.
func (b *JobBoard) rows(theme Theme) []table.Row {
	var rows []table.Row
	add := func(j *JobState, duration string) {
		rows = append(rows, table.Row{
			shortID(j.ID),
			strconv.FormatInt(j.ChatID, 10),
			theme.statusStyle(j.Status).Render(j.Status),
			duration,
			j.Error,
		})
	}

	if j := b.Current; j != nil {
		elapsed := j.Elapsed
		if !j.Started.IsZero() {
			elapsed = time.Since(j.Started)
		}
		add(j, formatDuration(elapsed)+fmt.Sprintf(" (%d beats)", j.Beats))
	}
	for i, j := range b.Waiting {
		add(j, fmt.Sprintf("#%d", i+1))
	}
	for _, j := range b.Finished {
		add(j, formatDuration(j.Elapsed))
	}
	return rows
}

func renderJobs(b *JobBoard, theme Theme, width int) string {
	innerWidth := width - 4

	rows := b.rows(theme)
	if len(rows) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("JOBS"),
			theme.Dim.Render("  No jobs yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	errWidth := max(10, innerWidth-8-14-12-18-8)
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Job", Width: 8},
			{Title: "Chat", Width: 14},
			{Title: "Status", Width: 12},
			{Title: "Time", Width: 18},
			{Title: "Error", Width: errWidth},
		}),
		table.WithRows(rows),
		table.WithHeight(len(rows)+1),
		table.WithFocused(false),
	)
	styles := table.DefaultStyles()
	styles.Selected = lipgloss.NewStyle()
	t.SetStyles(styles)

	content := lipgloss.JoinVertical(lipgloss.Left, theme.Title.Render("JOBS"), t.View())
	return theme.Border.Width(innerWidth).Render(content)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
