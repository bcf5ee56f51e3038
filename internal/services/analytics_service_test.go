package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cibics/tracking-backend/internal/models"
)

func TestDeriveEventKey(t *testing.T) {
	t.Run("Email Captured", func(t *testing.T) {
		key, ok := deriveEventKey("client_email", "", "new@example.com")
		require.True(t, ok)
		assert.Equal(t, progressKeyEmailCaptured, key)

		// Whitespace-only old values count as empty.
		key, ok = deriveEventKey("client_email", "   ", "new@example.com")
		require.True(t, ok)
		assert.Equal(t, progressKeyEmailCaptured, key)
	})

	t.Run("Email Updated", func(t *testing.T) {
		key, ok := deriveEventKey("client_email", "old@example.com", "new@example.com")
		require.True(t, ok)
		assert.Equal(t, progressKeyEmailUpdated, key)
	})

	t.Run("Case Only Change Is Not An Update", func(t *testing.T) {
		_, ok := deriveEventKey("client_email", "a@example.com", "A@Example.com")
		assert.False(t, ok)
	})

	t.Run("Cleared Email Is No Event", func(t *testing.T) {
		_, ok := deriveEventKey("client_email", "old@example.com", "")
		assert.False(t, ok)
	})

	t.Run("Other Fields Ignored", func(t *testing.T) {
		_, ok := deriveEventKey("customer_name", "", "John")
		assert.False(t, ok)
	})

	t.Run("Stage Completion", func(t *testing.T) {
		completedAt := time.Date(2026, 4, 7, 9, 0, 0, 0, time.UTC)
		snapshot := models.StageChange{StageID: 4, IsCompleted: true, CompletedAt: &completedAt}

		key, ok := deriveEventKey(snapshot.LogField(), "", snapshot.LogValue())
		require.True(t, ok)
		assert.Equal(t, "stage:4", key)
	})

	t.Run("Stage Uncompletion Is No Event", func(t *testing.T) {
		snapshot := models.StageChange{StageID: 4, IsCompleted: false}
		_, ok := deriveEventKey(snapshot.LogField(), "", snapshot.LogValue())
		assert.False(t, ok)
	})

	t.Run("Malformed Stage Snapshot Is No Event", func(t *testing.T) {
		_, ok := deriveEventKey("stage:4", "", "garbage")
		assert.False(t, ok)
	})
}

func TestMostRecentMonday(t *testing.T) {
	tests := []struct {
		input    time.Time
		expected string
	}{
		// A Monday maps to itself.
		{time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC), "2026-08-24"},
		// Mid-week falls back to the week's Monday.
		{time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC), "2026-08-24"},
		// Sunday falls back six days.
		{time.Date(2026, 8, 30, 23, 59, 59, 0, time.UTC), "2026-08-24"},
	}

	for _, tt := range tests {
		monday := mostRecentMonday(tt.input)
		assert.Equal(t, tt.expected, monday.Format("2006-01-02"), "input %s", tt.input)
		assert.Equal(t, time.Monday, monday.Weekday())
	}
}

func TestProgressRowOrder(t *testing.T) {
	stages := []models.StageDefinition{
		{ID: 1, Code: "EMAIL_SENT_TO_CUSTOMER", Name: "Email Sent To Customer", DisplayOrder: 10},
		{ID: 6, Code: "PO_RECEIVED", Name: "PO Received", DisplayOrder: 60},
	}

	rows := progressRowOrder(stages)
	require.Len(t, rows, 4)
	assert.Equal(t, progressKeyEmailCaptured, rows[0].key)
	assert.Equal(t, progressKeyEmailUpdated, rows[1].key)
	assert.Equal(t, "stage:1", rows[2].key)
	assert.Equal(t, "stage:6", rows[3].key)
	assert.Equal(t, "PO Received", rows[3].label)

	label, ok := progressKeyLabel("stage:6", stages)
	require.True(t, ok)
	assert.Equal(t, "PO Received", label)

	_, ok = progressKeyLabel("stage:99", stages)
	assert.False(t, ok)
}

func TestResolveWindowValidation(t *testing.T) {
	svc := NewAnalyticsService(nil, nil)

	t.Run("Defaults To Current Week", func(t *testing.T) {
		start, days, err := svc.ResolveWindow("", 0)
		require.NoError(t, err)
		assert.Equal(t, 7, days)
		assert.Equal(t, time.Monday, start.Weekday())
	})

	t.Run("Explicit Window", func(t *testing.T) {
		start, days, err := svc.ResolveWindow("2026-08-01", 30)
		require.NoError(t, err)
		assert.Equal(t, 30, days)
		assert.Equal(t, "2026-08-01", start.Format("2006-01-02"))
	})

	t.Run("Days Out Of Range", func(t *testing.T) {
		_, _, err := svc.ResolveWindow("2026-08-01", 93)
		assert.Error(t, err)

		_, _, err = svc.ResolveWindow("2026-08-01", -1)
		assert.Error(t, err)
	})

	t.Run("Bad Date", func(t *testing.T) {
		_, _, err := svc.ResolveWindow("08/01/2026", 7)
		assert.Error(t, err)
	})
}
