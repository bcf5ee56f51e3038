package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cibics/tracking-backend/internal/apperrors"
)

func strPtr(s string) *string { return &s }

func TestValidateColumns(t *testing.T) {
	t.Run("All Present", func(t *testing.T) {
		columns := append([]string{}, requiredColumns...)
		assert.NoError(t, validateColumns(columns))
	})

	t.Run("Extra Columns Allowed", func(t *testing.T) {
		columns := append([]string{"city", "remarks"}, requiredColumns...)
		assert.NoError(t, validateColumns(columns))
	})

	t.Run("Whitespace Trimmed", func(t *testing.T) {
		columns := make([]string, len(requiredColumns))
		for i, col := range requiredColumns {
			columns[i] = "  " + col + " "
		}
		assert.NoError(t, validateColumns(columns))
	})

	t.Run("Missing Columns Sorted", func(t *testing.T) {
		var columns []string
		for _, col := range requiredColumns {
			if col == "state" || col == "client_email" {
				continue
			}
			columns = append(columns, col)
		}

		err := validateColumns(columns)
		require.Error(t, err)

		var validationErr *apperrors.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, []string{"client_email", "state"}, validationErr.Fields)
	})
}

func TestDedupKey(t *testing.T) {
	t.Run("Case And Whitespace Insensitive", func(t *testing.T) {
		a, okA := dedupKey(strPtr(" ABC "), strPtr("xyz"))
		b, okB := dedupKey(strPtr("abc"), strPtr(" XYZ"))
		assert.True(t, okA)
		assert.True(t, okB)
		assert.Equal(t, a, b)
	})

	t.Run("Field Positions Matter", func(t *testing.T) {
		a, _ := dedupKey(strPtr("abc"), nil)
		b, _ := dedupKey(nil, strPtr("abc"))
		assert.NotEqual(t, a, b)
	})

	t.Run("All Empty Never Collides", func(t *testing.T) {
		_, ok := dedupKey(nil, strPtr("  "), nil)
		assert.False(t, ok)
	})
}

func TestClassifyRows(t *testing.T) {
	makeRow := func(sourceRow int, slNo string) ImportRow {
		return ImportRow{
			SourceRow:     sourceRow,
			SlNo:          strPtr(slNo),
			CustodianCode: strPtr("CC1"),
			ShortName:     strPtr("Site A"),
		}
	}

	t.Run("Clean Batch", func(t *testing.T) {
		rows := []ImportRow{makeRow(1, "001"), makeRow(2, "002")}
		analysis := classifyRows(rows, map[int]struct{}{}, map[string]struct{}{})

		assert.Equal(t, 2, analysis.TotalRows)
		assert.Equal(t, 0, analysis.DuplicateRows)
		assert.Equal(t, 2, analysis.InsertableRows)
		for _, rc := range analysis.Rows {
			assert.False(t, rc.Duplicate)
			assert.Empty(t, rc.DuplicateReasons)
		}
	})

	t.Run("Existing Source Row", func(t *testing.T) {
		rows := []ImportRow{makeRow(7, "001")}
		analysis := classifyRows(rows, map[int]struct{}{7: {}}, map[string]struct{}{})

		require.Len(t, analysis.Rows, 1)
		assert.True(t, analysis.Rows[0].Duplicate)
		assert.Equal(t, []string{ReasonExistingSourceRow}, analysis.Rows[0].DuplicateReasons)
	})

	t.Run("Existing Business Key", func(t *testing.T) {
		row := makeRow(1, "001")
		key, ok := rowDedupKey(&row)
		require.True(t, ok)

		analysis := classifyRows([]ImportRow{row}, map[int]struct{}{}, map[string]struct{}{key: {}})
		require.Len(t, analysis.Rows, 1)
		assert.Equal(t, []string{ReasonExistingData}, analysis.Rows[0].DuplicateReasons)
	})

	t.Run("Duplicate Within File", func(t *testing.T) {
		rows := []ImportRow{makeRow(1, "001"), makeRow(2, "001")}
		analysis := classifyRows(rows, map[int]struct{}{}, map[string]struct{}{})

		require.Len(t, analysis.Rows, 2)
		assert.False(t, analysis.Rows[0].Duplicate)
		assert.True(t, analysis.Rows[1].Duplicate)
		assert.Equal(t, []string{ReasonDuplicateInFile}, analysis.Rows[1].DuplicateReasons)
		assert.Equal(t, 1, analysis.InsertableRows)
	})

	t.Run("Reasons Accumulate", func(t *testing.T) {
		row := makeRow(7, "001")
		key, _ := rowDedupKey(&row)
		rows := []ImportRow{row, makeRow(7, "001")}

		analysis := classifyRows(rows, map[int]struct{}{7: {}}, map[string]struct{}{key: {}})
		require.Len(t, analysis.Rows, 2)
		assert.Equal(t, []string{ReasonExistingSourceRow, ReasonExistingData}, analysis.Rows[0].DuplicateReasons)
		assert.Equal(t,
			[]string{ReasonExistingSourceRow, ReasonExistingData, ReasonDuplicateInFile},
			analysis.Rows[1].DuplicateReasons)
	})

	t.Run("All Empty Key Rows Never Collide", func(t *testing.T) {
		rows := []ImportRow{
			{SourceRow: 1, ClientEmail: strPtr("a@x.lk")},
			{SourceRow: 2, ClientEmail: strPtr("b@x.lk")},
		}
		analysis := classifyRows(rows, map[int]struct{}{}, map[string]struct{}{})

		assert.Equal(t, 0, analysis.DuplicateRows)
		assert.Equal(t, 2, analysis.InsertableRows)
	})

	t.Run("Blank Rows Skipped Entirely", func(t *testing.T) {
		rows := []ImportRow{
			{SourceRow: 42},
			{SourceRow: 43, SlNo: strPtr("  "), StageFlags: map[string]bool{"PO_RECEIVED": false}},
			makeRow(44, "001"),
		}
		analysis := classifyRows(rows, map[int]struct{}{42: {}}, map[string]struct{}{})

		assert.Equal(t, 1, analysis.TotalRows)
		assert.Equal(t, 0, analysis.DuplicateRows)
		assert.Equal(t, 1, analysis.InsertableRows)
		require.Len(t, analysis.Rows, 1)
		assert.Equal(t, 44, analysis.Rows[0].Row.SourceRow)
	})
}

func TestIsBlankRow(t *testing.T) {
	assert.True(t, isBlankRow(&ImportRow{SourceRow: 7}))
	assert.True(t, isBlankRow(&ImportRow{City: strPtr("   ")}))
	assert.True(t, isBlankRow(&ImportRow{StageFlags: map[string]bool{"PROPOSAL_SENT": false}}))

	assert.False(t, isBlankRow(&ImportRow{MobileNo: strPtr("0771234567")}))
	assert.False(t, isBlankRow(&ImportRow{StageFlags: map[string]bool{"PROPOSAL_SENT": true}}))
}

func TestAssigneeHint(t *testing.T) {
	t.Run("Explicit Hint Wins", func(t *testing.T) {
		row := ImportRow{
			AssigneeNameHint: strPtr("  John   Perera "),
			POStatusRaw:      strPtr("Jane Silva"),
		}
		assert.Equal(t, "John Perera", assigneeHint(&row))
	})

	t.Run("Raw Status Used As Owner Name", func(t *testing.T) {
		row := ImportRow{POStatusRaw: strPtr("Jane Silva")}
		assert.Equal(t, "Jane Silva", assigneeHint(&row))
	})

	t.Run("Pending Sentinels Yield No Hint", func(t *testing.T) {
		assert.Equal(t, "", assigneeHint(&ImportRow{POStatusRaw: strPtr("PO Received")}))
		assert.Equal(t, "", assigneeHint(&ImportRow{POStatusRaw: strPtr("  ")}))
		assert.Equal(t, "", assigneeHint(&ImportRow{}))
	})
}
