package lightcurve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCols = ColumnMapping{
	Mag:    "psMag",
	MagErr: "psMagErr",
	Time:   "mjd",
	Band:   "filterName",
}

var testFilters = FilterMapping{"BP": 0, "G": 1}

func TestNormalize(t *testing.T) {
	t.Run("translates a complete row", func(t *testing.T) {
		row := RawRow{"psMag": 19.5, "psMagErr": 0.02, "mjd": 58000.5, "filterName": "G"}
		s, err := Normalize(row, testCols, testFilters)
		require.NoError(t, err)
		assert.Equal(t, 19.5, s.Mag)
		assert.Equal(t, 0.02, s.MagErr)
		assert.True(t, s.HasErr)
		assert.Equal(t, 58000.5, s.Time)
		assert.Equal(t, Band(1), s.Band)
	})

	t.Run("coerces numeric strings and integers", func(t *testing.T) {
		row := RawRow{"psMag": "19.5", "psMagErr": float32(0.5), "mjd": 58000, "filterName": "BP"}
		s, err := Normalize(row, testCols, testFilters)
		require.NoError(t, err)
		assert.Equal(t, 19.5, s.Mag)
		assert.Equal(t, 58000.0, s.Time)
		assert.Equal(t, Band(0), s.Band)
	})

	t.Run("works without an error column", func(t *testing.T) {
		cols := testCols
		cols.MagErr = ""
		row := RawRow{"psMag": 19.5, "mjd": 58000.5, "filterName": "G"}
		s, err := Normalize(row, cols, testFilters)
		require.NoError(t, err)
		assert.False(t, s.HasErr)
	})

	t.Run("fails on a missing mapped column", func(t *testing.T) {
		row := RawRow{"psMag": 19.5, "psMagErr": 0.02, "filterName": "G"}
		_, err := Normalize(row, testCols, testFilters)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSchema)
		assert.Contains(t, err.Error(), "mjd")
	})

	t.Run("fails on an unmapped filter label", func(t *testing.T) {
		row := RawRow{"psMag": 19.5, "psMagErr": 0.02, "mjd": 58000.5, "filterName": "RP"}
		_, err := Normalize(row, testCols, testFilters)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSchema)
		assert.Contains(t, err.Error(), "RP")
	})

	t.Run("fails on a non-numeric value", func(t *testing.T) {
		row := RawRow{"psMag": "bright", "psMagErr": 0.02, "mjd": 58000.5, "filterName": "G"}
		_, err := Normalize(row, testCols, testFilters)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSchema)
	})
}

func TestColumnMappingValidate(t *testing.T) {
	assert.NoError(t, testCols.Validate())

	missing := testCols
	missing.Time = ""
	assert.ErrorIs(t, missing.Validate(), ErrSchema)

	// MagErr is the only optional field.
	noErrs := testCols
	noErrs.MagErr = ""
	assert.NoError(t, noErrs.Validate())
}
