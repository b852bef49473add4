// Package conversation keeps per-chat turn history used to build tool prompts.
package conversation

import (
	"strings"
	"sync"
)

// NewConversation is returned by Context when a chat has no history.
const NewConversation = "New conversation"

// DefaultWindow is how many trailing turns go into a prompt.
const DefaultWindow = 10

// Role labels who produced a turn.
type Role string

const (
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
)

// Turn is one entry of a chat's history.
type Turn struct {
	Role Role
	Text string
}

func (t Turn) String() string {
	return string(t.Role) + ": " + t.Text
}

// Store holds append-only history per chat. History is never trimmed; only
// the prompt window is bounded. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	chats  map[int64][]Turn
	window int
}

// NewStore creates a Store whose Context returns at most window turns.
func NewStore(window int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{
		chats:  make(map[int64][]Turn),
		window: window,
	}
}

// Append records a turn for the chat, creating its history on first use.
func (s *Store) Append(chatID int64, role Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chatID] = append(s.chats[chatID], Turn{Role: role, Text: text})
}

// Context renders the last window turns in order, one per line, or
// NewConversation if the chat has none.
func (s *Store) Context(chatID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.chats[chatID]
	if len(turns) == 0 {
		return NewConversation
	}
	if len(turns) > s.window {
		turns = turns[len(turns)-s.window:]
	}

	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.String()
	}
	return strings.Join(lines, "\n")
}

// Turns returns a copy of the full history of a chat.
func (s *Store) Turns(chatID int64) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.chats[chatID]...)
}

// Len is the number of stored turns for the chat.
func (s *Store) Len(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats[chatID])
}

// Reset clears the history of one chat. Other chats are untouched.
func (s *Store) Reset(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, chatID)
}
