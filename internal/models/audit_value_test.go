package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStageFieldName(t *testing.T) {
	id, ok := ParseStageFieldName("stage:42")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = ParseStageFieldName("client_email")
	assert.False(t, ok)

	_, ok = ParseStageFieldName("stage:abc")
	assert.False(t, ok)

	_, ok = ParseStageFieldName("stage:")
	assert.False(t, ok)
}

func TestStageChangeRoundTrip(t *testing.T) {
	completedAt := time.Date(2026, 4, 7, 9, 30, 0, 0, time.UTC)
	change := StageChange{
		StageID:     5,
		IsCompleted: true,
		CompletedAt: &completedAt,
		Notes:       "confirmed by phone",
	}

	assert.Equal(t, "stage:5", change.LogField())

	decoded, err := DecodeLoggedValue(change.LogField(), change.LogValue())
	require.NoError(t, err)

	roundTripped, ok := decoded.(StageChange)
	require.True(t, ok)
	assert.Equal(t, change.StageID, roundTripped.StageID)
	assert.True(t, roundTripped.IsCompleted)
	require.NotNil(t, roundTripped.CompletedAt)
	assert.True(t, completedAt.Equal(*roundTripped.CompletedAt))
	assert.Equal(t, change.Notes, roundTripped.Notes)
}

func TestStageChangeNotesWithSeparator(t *testing.T) {
	// Notes may contain the serialization separator; only the first two
	// fields are positional.
	change := StageChange{StageID: 2, IsCompleted: false, Notes: "a|b|c"}

	decoded, err := DecodeLoggedValue(change.LogField(), change.LogValue())
	require.NoError(t, err)

	roundTripped, ok := decoded.(StageChange)
	require.True(t, ok)
	assert.Equal(t, "a|b|c", roundTripped.Notes)
	assert.Nil(t, roundTripped.CompletedAt)
}

func TestDecodeLoggedValuePlainField(t *testing.T) {
	decoded, err := DecodeLoggedValue("client_email", "someone@example.com")
	require.NoError(t, err)

	field, ok := decoded.(FieldChange)
	require.True(t, ok)
	assert.Equal(t, "client_email", field.LogField())
	assert.Equal(t, "someone@example.com", field.LogValue())
}

func TestDecodeLoggedValueMalformed(t *testing.T) {
	_, err := DecodeLoggedValue("stage:3", "not-a-snapshot")
	assert.Error(t, err)

	_, err = DecodeLoggedValue("stage:3", "yes|2026-04-07T09:30:00Z|")
	assert.Error(t, err)

	_, err = DecodeLoggedValue("stage:3", "true|not-a-time|")
	assert.Error(t, err)
}

func TestStageSnapshotOf(t *testing.T) {
	notes := "left voicemail"
	st := &RecordStageStatus{StageID: 9, IsCompleted: true, Notes: &notes}

	change := StageSnapshotOf(st)
	assert.Equal(t, int64(9), change.StageID)
	assert.True(t, change.IsCompleted)
	assert.Equal(t, notes, change.Notes)

	st.Notes = nil
	assert.Equal(t, "", StageSnapshotOf(st).Notes)
}
