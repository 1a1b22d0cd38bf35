package pomodoro

import (
	"fmt"
	"time"

	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/domain"
)

// Phase is the state of a session.
type Phase int

const (
	Idle Phase = iota
	Working
	ShortBreak
	LongBreak
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case Working:
		return "Work Session"
	case ShortBreak:
		return "Short Break"
	case LongBreak:
		return "Long Break"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Title heads the live status message.
func (p Phase) Title() string {
	switch p {
	case Working:
		return "🍅 Pomodoro Session"
	case ShortBreak:
		return "☕ Short Break"
	case LongBreak:
		return "🌴 Long Break"
	}
	return "Pomodoro"
}

func (p Phase) Emoji() string {
	if p == Working {
		return "🔴"
	}
	return "🟢"
}

// Duration is how long a phase lasts under the given settings. Idle has no
// duration.
func Duration(s domain.PomodoroSettings, p Phase) time.Duration {
	var minutes int
	switch p {
	case Working:
		minutes = s.WorkMinutes
	case ShortBreak:
		minutes = s.ShortBreakMinutes
	case LongBreak:
		minutes = s.LongBreakMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func seconds(s domain.PomodoroSettings, p Phase) int {
	return int(Duration(s, p) / time.Second)
}

// Cycle decides which break follows a finished work phase.
type Cycle int

const (
	// CycleLiteral takes a long break once N work phases are done, and after
	// every work phase from then on.
	CycleLiteral Cycle = iota
	// CycleRepeat takes a long break after every N-th work phase.
	CycleRepeat
)

// ParseCycle accepts "literal" and "repeat"; empty means literal.
func ParseCycle(s string) (Cycle, error) {
	switch s {
	case "", "literal":
		return CycleLiteral, nil
	case "repeat":
		return CycleRepeat, nil
	}
	return CycleLiteral, fmt.Errorf("unknown pomodoro cycle %q", s)
}

func (c Cycle) String() string {
	if c == CycleRepeat {
		return "repeat"
	}
	return "literal"
}

// breakAfter returns the break that follows the completed-th work phase.
func (c Cycle) breakAfter(completed, sessionsBeforeLong int) Phase {
	if sessionsBeforeLong < 1 {
		sessionsBeforeLong = 1
	}

	long := completed%sessionsBeforeLong == 0
	if c == CycleLiteral {
		long = completed >= sessionsBeforeLong
	}

	if long {
		return LongBreak
	}
	return ShortBreak
}
