package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/claudegram/internal/events"
)

const shownEvents = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	lines := make([]string, 0, shownEvents)
	for i, e := range eventLog {
		if i >= shownEvents {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left, theme.Title.Render("EVENT STREAM"), eventsText)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.JobCompleted:
		typeStyle = theme.StatusOK
	case events.JobFailed, events.JobTimedOut, events.JobCanceled, events.QueueCleared:
		typeStyle = theme.StatusFailed
	case events.JobStarted:
		typeStyle = theme.StatusRunning
	case events.JobHeartbeat:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-16s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, extractEventDesc(e))
}

func extractEventDesc(e events.Event) string {
	if e.Type == events.QueueCleared {
		var q events.QueueData
		if err := json.Unmarshal(e.Data, &q); err == nil {
			return fmt.Sprintf("%d removed (%s)", q.Cleared, q.Reason)
		}
	}

	var data events.JobData
	if err := json.Unmarshal(e.Data, &data); err != nil || data.JobID == "" {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	parts := []string{fmt.Sprintf("[%s]", shortID(data.JobID)), fmt.Sprintf("chat %d", data.ChatID)}
	switch {
	case data.Position > 0:
		parts = append(parts, fmt.Sprintf("position #%d", data.Position))
	case data.Beat > 0:
		parts = append(parts, fmt.Sprintf("beat %d", data.Beat))
	}
	if data.ExitCode != nil {
		parts = append(parts, fmt.Sprintf("exit %d", *data.ExitCode))
	}
	if data.Error != "" {
		parts = append(parts, data.Error)
	}
	return strings.Join(parts, " ")
}
