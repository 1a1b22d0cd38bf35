package domain

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOffsetBounds(t *testing.T) {
	for _, offset := range []int{-12, 0, 14} {
		assert.NoError(t, ValidateOffset(offset), "offset %d", offset)
	}
	for _, offset := range []int{-13, 15} {
		err := ValidateOffset(offset)
		require.Error(t, err, "offset %d", offset)
		assert.True(t, IsCode(err, ErrCodeValidation))
	}
}

func TestValidateText(t *testing.T) {
	txt, err := ValidateText("  buy milk  ")
	require.NoError(t, err)
	assert.Equal(t, "buy milk", txt)

	_, err = ValidateText("   ")
	assert.True(t, IsCode(err, ErrCodeValidation))

	// 200 multi-byte runes are still within the limit
	_, err = ValidateText(strings.Repeat("ж", MaxTextLen))
	assert.NoError(t, err)

	_, err = ValidateText(strings.Repeat("a", MaxTextLen+1))
	assert.True(t, IsCode(err, ErrCodeValidation))
}

func TestValidatePriority(t *testing.T) {
	for p := 1; p <= 3; p++ {
		assert.NoError(t, ValidatePriority(p))
	}
	assert.Error(t, ValidatePriority(0))
	assert.Error(t, ValidatePriority(4))
}

func TestPomodoroSettingsValidate(t *testing.T) {
	s := DefaultPomodoroSettings(7)
	require.NoError(t, s.Validate())
	assert.Equal(t, int64(7), s.OwnerID)

	s.SessionsBeforeLongBreak = 0
	assert.True(t, IsCode(s.Validate(), ErrCodeValidation))

	s = DefaultPomodoroSettings(7)
	s.LongBreakMinutes = MaxPhaseMinutes + 1
	assert.EqualError(t, s.Validate(), "durations must be at most 999 minutes")

	s = DefaultPomodoroSettings(7)
	s.SessionsBeforeLongBreak = MaxSessionsInCycle
	assert.NoError(t, s.Validate())
}

func TestSentinelSurvivesWrapping(t *testing.T) {
	err := errors.Wrap(ErrNoSession, "failed stopping session")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.True(t, IsCode(err, ErrCodeConflict))
	assert.False(t, IsCode(err, ErrCodePersistence))

	pf := PersistenceFailure(errors.New("connection refused"))
	assert.Equal(t, "persistence failure: connection refused", pf.Error())
	assert.True(t, IsCode(pf, ErrCodePersistence))
}
