package conversation

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_NewConversation(t *testing.T) {
	s := NewStore(DefaultWindow)
	assert.Equal(t, NewConversation, s.Context(42))
}

func TestContext_JoinsInOrder(t *testing.T) {
	s := NewStore(DefaultWindow)
	s.Append(42, RoleUser, "add a login page")
	s.Append(42, RoleAssistant, "done")

	assert.Equal(t, "User: add a login page\nAssistant: done", s.Context(42))
}

func TestContext_LastTenTurnsOnly(t *testing.T) {
	s := NewStore(DefaultWindow)
	for i := 1; i <= 15; i++ {
		s.Append(7, RoleUser, fmt.Sprintf("msg %d", i))
	}

	lines := strings.Split(s.Context(7), "\n")
	assert.Len(t, lines, 10)
	assert.Equal(t, "User: msg 6", lines[0])
	assert.Equal(t, "User: msg 15", lines[9])
	// Storage itself is unbounded.
	assert.Equal(t, 15, s.Len(7))
}

func TestReset_OnlyThatChat(t *testing.T) {
	s := NewStore(DefaultWindow)
	s.Append(1, RoleUser, "a")
	s.Append(2, RoleUser, "b")

	s.Reset(1)

	assert.Equal(t, NewConversation, s.Context(1))
	assert.Equal(t, "User: b", s.Context(2))
}

func TestAppend_Concurrent(t *testing.T) {
	s := NewStore(DefaultWindow)
	var wg sync.WaitGroup
	for c := int64(0); c < 4; c++ {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Append(c, RoleUser, "x")
			}()
		}
	}
	wg.Wait()

	for c := int64(0); c < 4; c++ {
		assert.Equal(t, 50, s.Len(c))
	}
}

func TestTurns_ReturnsCopy(t *testing.T) {
	s := NewStore(DefaultWindow)
	s.Append(1, RoleUser, "a")

	turns := s.Turns(1)
	turns[0].Text = "mutated"

	assert.Equal(t, "User: a", s.Context(1))
}
