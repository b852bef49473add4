package queue

import "time"

// Request is a pending chat prompt waiting for the worker.
type Request struct {
	ID         string    `json:"id"`
	ChatID     int64     `json:"chat_id"`
	SenderID   int64     `json:"sender_id"`
	Prompt     string    `json:"prompt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Preview returns the prompt cut to n runes, with "..." appended when cut.
func (r Request) Preview(n int) string {
	runes := []rune(r.Prompt)
	if len(runes) <= n {
		return r.Prompt
	}
	return string(runes[:n]) + "..."
}
