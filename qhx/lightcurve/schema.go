package lightcurve

import (
	"fmt"
	"strconv"
)

// RawRow is a single row of a survey table keyed by that survey's own column
// names. The loader hands rows to the schema mapper untouched.
type RawRow map[string]any

// ColumnMapping names the raw columns holding each normalized field.
// MagErr may be empty when the survey publishes no per-point uncertainties.
type ColumnMapping struct {
	Mag    string
	MagErr string
	Time   string
	Band   string
}

// Validate checks that every required field has a mapped source column.
func (cm ColumnMapping) Validate() error {
	if cm.Mag == "" {
		return fmt.Errorf("%w: no source column mapped for magnitude", ErrSchema)
	}
	if cm.Time == "" {
		return fmt.Errorf("%w: no source column mapped for time", ErrSchema)
	}
	if cm.Band == "" {
		return fmt.Errorf("%w: no source column mapped for band", ErrSchema)
	}
	return nil
}

// Sample is one normalized measurement produced from a raw row.
type Sample struct {
	Time   float64
	Mag    float64
	MagErr float64
	HasErr bool
	Band   Band
}

// Normalize translates one survey-specific row into normalized sample fields
// using the configured column and filter mappings. It is a pure function with
// no side effects; every failure wraps ErrSchema.
func Normalize(row RawRow, cols ColumnMapping, filters FilterMapping) (Sample, error) {
	var s Sample

	t, err := floatField(row, cols.Time)
	if err != nil {
		return s, err
	}
	mag, err := floatField(row, cols.Mag)
	if err != nil {
		return s, err
	}
	s.Time = t
	s.Mag = mag

	if cols.MagErr != "" {
		magErr, err := floatField(row, cols.MagErr)
		if err != nil {
			return s, err
		}
		s.MagErr = magErr
		s.HasErr = true
	}

	raw, ok := row[cols.Band]
	if !ok {
		return s, fmt.Errorf("%w: missing band column %q", ErrSchema, cols.Band)
	}
	label := fmt.Sprintf("%v", raw)
	band, ok := filters[label]
	if !ok {
		return s, fmt.Errorf("%w: filter label %q absent from filter mapping", ErrSchema, label)
	}
	s.Band = band

	return s, nil
}

// floatField extracts a numeric column value, coercing the scalar types that
// show up in survey tables.
func floatField(row RawRow, column string) (float64, error) {
	raw, ok := row[column]
	if !ok {
		return 0, fmt.Errorf("%w: missing column %q", ErrSchema, column)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: column %q holds non-numeric value %q", ErrSchema, column, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: column %q holds unsupported type %T", ErrSchema, column, raw)
	}
}
