package watch

import (
	"strings"
	"time"
)

const spinnerDots = 5

// Ticker rotates on every UI tick. A frozen ticker means the UI is stuck,
// not the bot.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"⟲", "⟳"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Spinner lights up on events and fades over ten seconds. Heartbeats only
// light part of it so a long-running job looks different from a busy queue.
type Spinner struct {
	dots      int
	lastEvent time.Time
}

func (s *Spinner) OnEvent(eventType string) {
	s.lastEvent = time.Now()
	if eventType == heartbeatType {
		s.dots = max(s.dots, 2)
		return
	}
	s.dots = spinnerDots
}

// Decay drops one dot per two seconds of silence.
func (s *Spinner) Decay() {
	if s.dots == 0 {
		return
	}
	left := spinnerDots - int(time.Since(s.lastEvent)/(2*time.Second))
	s.dots = max(0, min(s.dots, left))
}

func (s Spinner) Render(theme Theme) string {
	var b strings.Builder
	for i := range spinnerDots {
		if i < s.dots {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}

func (s Spinner) LastEvent() time.Time {
	return s.lastEvent
}
