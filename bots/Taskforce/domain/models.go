package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTextLen = 200

	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3

	MinUTCOffset = -12
	MaxUTCOffset = 14

	MaxPhaseMinutes    = 999
	MaxSessionsInCycle = 99
)

// Task is a user's to-do item. It never changes after creation.
type Task struct {
	ID        string    `json:"id"`
	OwnerID   int64     `json:"user_id"`
	Text      string    `json:"task"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// Reminder fires once at RemindAt, an absolute UTC instant.
type Reminder struct {
	ID        string    `json:"id"`
	OwnerID   int64     `json:"user_id"`
	Message   string    `json:"message"`
	RemindAt  time.Time `json:"remind_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TimezoneOffset is a whole-hour UTC offset, one per owner.
type TimezoneOffset struct {
	OwnerID   int64 `json:"user_id"`
	UTCOffset int   `json:"utc_offset"`
}

// PomodoroSettings are the per-owner durations copied into every new session.
type PomodoroSettings struct {
	OwnerID                 int64 `json:"user_id"`
	WorkMinutes             int   `json:"work_duration"`
	ShortBreakMinutes       int   `json:"break_duration"`
	LongBreakMinutes        int   `json:"long_break_duration"`
	SessionsBeforeLongBreak int   `json:"sessions_before_long_break"`
}

// DefaultPomodoroSettings returns the classic 25/5/15 cycle of four.
func DefaultPomodoroSettings(owner int64) PomodoroSettings {
	return PomodoroSettings{
		OwnerID:                 owner,
		WorkMinutes:             25,
		ShortBreakMinutes:       5,
		LongBreakMinutes:        15,
		SessionsBeforeLongBreak: 4,
	}
}

// Validate makes sure every value is a positive integer within bounds.
func (s PomodoroSettings) Validate() error {
	if s.WorkMinutes < 1 || s.ShortBreakMinutes < 1 || s.LongBreakMinutes < 1 || s.SessionsBeforeLongBreak < 1 {
		return Validationf("all values must be at least 1")
	}
	if s.WorkMinutes > MaxPhaseMinutes || s.ShortBreakMinutes > MaxPhaseMinutes || s.LongBreakMinutes > MaxPhaseMinutes {
		return Validationf("durations must be at most %d minutes", MaxPhaseMinutes)
	}
	if s.SessionsBeforeLongBreak > MaxSessionsInCycle {
		return Validationf("sessions before a long break must be at most %d", MaxSessionsInCycle)
	}
	return nil
}

// ValidateText checks a task or reminder text.
func ValidateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", Validationf("text can't be empty")
	}
	if utf8.RuneCountInString(text) > MaxTextLen {
		return "", Validationf("text is longer than %d characters", MaxTextLen)
	}
	return text, nil
}

// ValidatePriority accepts 1 (high), 2 (medium) or 3 (low).
func ValidatePriority(p int) error {
	if p < PriorityHigh || p > PriorityLow {
		return Validationf("priority must be 1, 2, or 3")
	}
	return nil
}

// ValidateOffset accepts whole-hour offsets in [-12, +14].
func ValidateOffset(offset int) error {
	if offset < MinUTCOffset || offset > MaxUTCOffset {
		return Validationf("offset must be between %d and +%d", MinUTCOffset, MaxUTCOffset)
	}
	return nil
}
