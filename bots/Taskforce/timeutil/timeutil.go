package timeutil

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
	LocalLayout = DateLayout + " " + ClockLayout

	DefaultBarWidth = 10
	barFilled       = "█"
	barEmpty        = "░"
)

var (
	dateShape  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clockShape = regexp.MustCompile(`^\d{2}:\d{2}$`)

	ErrDateFormat  = errors.New("date must look like YYYY-MM-DD")
	ErrClockFormat = errors.New("time must look like HH:MM")
	ErrNoSuchTime  = errors.New("no such date or time")
)

// Window is a polling span. It excludes Start and includes End, so adjacent
// windows never share an instant.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowEnding returns the window of the given length that ends at end.
func WindowEnding(end time.Time, length time.Duration) Window {
	end = end.UTC()
	return Window{Start: end.Add(-length), End: end}
}

// WindowBetween returns (start, end] in UTC.
func WindowBetween(start, end time.Time) Window {
	return Window{Start: start.UTC(), End: end.UTC()}
}

// Contains reports whether t falls into (Start, End].
func (w Window) Contains(t time.Time) bool {
	return t.After(w.Start) && !t.After(w.End)
}

// Length is End minus Start.
func (w Window) Length() time.Duration {
	return w.End.Sub(w.Start)
}

func (w Window) String() string {
	return fmt.Sprintf("(%s, %s]", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// FormatRemaining renders seconds as MM:SS. Minutes aren't wrapped into hours.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// ProgressBar renders progress in [0, 1] as width filled and empty cells.
func ProgressBar(progress float64, width int) string {
	if width <= 0 {
		width = DefaultBarWidth
	}
	switch {
	case progress < 0 || math.IsNaN(progress):
		progress = 0
	case progress > 1:
		progress = 1
	}

	filled := int(float64(width) * progress)
	return strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, width-filled)
}

// ValidateDate checks the YYYY-MM-DD shape only.
func ValidateDate(s string) bool {
	return dateShape.MatchString(s)
}

// ValidateClock checks the HH:MM shape only.
func ValidateClock(s string) bool {
	return clockShape.MatchString(s)
}

// ParseLocal turns a wall-clock date and time at the given UTC offset into an
// absolute UTC instant. Shape errors and calendar errors are reported apart.
func ParseLocal(date, clock string, offsetHours int) (time.Time, error) {
	if !ValidateDate(date) {
		return time.Time{}, ErrDateFormat
	}
	if !ValidateClock(clock) {
		return time.Time{}, ErrClockFormat
	}

	t, err := time.ParseInLocation(LocalLayout, date+" "+clock, Zone(offsetHours))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %s", ErrNoSuchTime, date, clock)
	}
	return t.UTC(), nil
}

// FormatLocal renders an instant as wall-clock time at the given offset.
func FormatLocal(t time.Time, offsetHours int) string {
	return t.In(Zone(offsetHours)).Format(LocalLayout)
}

// Zone returns a fixed zone for a whole-hour offset.
func Zone(offsetHours int) *time.Location {
	if offsetHours == 0 {
		return time.UTC
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600)
}
