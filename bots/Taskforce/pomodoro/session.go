package pomodoro

import (
	"context"
	"sync"
	"time"

	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/domain"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/notify"
)

// Status is a snapshot of a live session.
type Status struct {
	Phase                   Phase
	Remaining               time.Duration
	Completed               int
	SessionsBeforeLongBreak int
	Next                    Phase
	Progress                float64 // share of the current phase already elapsed
	Settings                domain.PomodoroSettings
	Started                 time.Time
}

// transition is a phase change caused by expiry.
type transition struct {
	from, to  Phase
	completed int
}

// session keeps the deadline of the current phase. Remaining time is always
// derived from the clock, so late wake-ups never slow the countdown down.
type session struct {
	owner    int64
	settings domain.PomodoroSettings
	cycle    Cycle
	started  time.Time
	second   time.Duration // length of one countdown second

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	phase     Phase
	deadline  time.Time
	completed int
	shown     int            // refresh slot of the last status message, -1 for none
	handle    *notify.Handle // last status message
}

func newSession(owner int64, s domain.PomodoroSettings, c Cycle, started time.Time, second time.Duration) *session {
	if second <= 0 {
		second = time.Second
	}
	return &session{
		owner:    owner,
		settings: s,
		cycle:    c,
		started:  started,
		second:   second,
		done:     make(chan struct{}),
		phase:    Working,
		deadline: started.Add(time.Duration(seconds(s, Working)) * second),
		shown:    -1,
	}
}

// remainingAt returns the whole seconds left at now, rounded up. Must be
// called with mu held.
func (s *session) remainingAt(now time.Time) int {
	left := s.deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + s.second - 1) / s.second)
}

// expired reports whether the current phase is over at now.
func (s *session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !now.Before(s.deadline)
}

// advance moves an expired phase to the next one. The next phase starts at
// the old deadline, not at the moment the expiry was noticed.
func (s *session) advance() transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := transition{from: s.phase}
	if s.phase == Working {
		s.completed++
		s.phase = s.cycle.breakAfter(s.completed, s.settings.SessionsBeforeLongBreak)
	} else {
		s.phase = Working
	}
	s.deadline = s.deadline.Add(time.Duration(seconds(s.settings, s.phase)) * s.second)
	s.shown = -1

	t.to = s.phase
	t.completed = s.completed
	return t
}

// untilNextSecond is how long to sleep until the countdown shows a new value.
func (s *session) untilNextSecond(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.deadline.Sub(now) % s.second
	if d <= 0 {
		d += s.second
	}
	return d
}

// dueRefresh reports whether the status message is behind by a refresh
// period at now, and marks it as shown if so. Slots are counted down from the
// deadline, so a refresh still happens when some seconds were never observed.
func (s *session) dueRefresh(now time.Time, every int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if every < 1 {
		every = 1
	}
	slot := (s.remainingAt(now) + every - 1) / every
	if slot == s.shown {
		return false
	}
	s.shown = slot
	return true
}

func (s *session) status(now time.Time) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Working
	if s.phase == Working {
		next = s.cycle.breakAfter(s.completed+1, s.settings.SessionsBeforeLongBreak)
	}

	remaining := s.remainingAt(now)
	var progress float64
	if total := seconds(s.settings, s.phase); total > 0 {
		progress = 1 - float64(remaining)/float64(total)
	}

	return Status{
		Phase:                   s.phase,
		Remaining:               time.Duration(remaining) * time.Second,
		Completed:               s.completed,
		SessionsBeforeLongBreak: s.settings.SessionsBeforeLongBreak,
		Next:                    next,
		Progress:                progress,
		Settings:                s.settings,
		Started:                 s.started,
	}
}

func (s *session) lastHandle() *notify.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *session) setHandle(h notify.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = &h
}
