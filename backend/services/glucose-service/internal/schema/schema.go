// Package schema validates raw device export rows and turns them into glucose records.
//
// Every accepted column is described by one entry of the fields table: its canonical
// name, the alternate headers it is known by, whether it is required, and how its
// text is parsed. Blank values of optional columns become nil.
package schema

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"glucoseapi/backend/services/glucose-service/internal/models"
)

// TimestampLayout is the device timestamp format of the export (DD-MM-YYYY HH:MM).
const TimestampLayout = "2-1-2006 15:04"

var (
	// ErrRequired reports a required column that is absent or blank.
	ErrRequired = errors.New("field required")
	// ErrInvalidInteger reports non-integer content in an integer column.
	ErrInvalidInteger = errors.New("value is not a valid integer")
	// ErrInvalidNumber reports non-numeric content in a numeric column.
	ErrInvalidNumber = errors.New("value is not a valid number")
	// ErrInvalidTimestamp reports a timestamp not in TimestampLayout.
	ErrInvalidTimestamp = errors.New("timestamp must match DD-MM-YYYY HH:MM")
)

// ValidationError names the column that failed and the offending value.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v (got %q)", e.Field, e.Err, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type parseFunc func(raw string, rec *models.GlucoseRecord) error

type field struct {
	name     string
	aliases  []string
	required bool
	parse    parseFunc
}

var fields = []field{
	{name: "Gerät", required: true, parse: requiredText(func(r *models.GlucoseRecord) *string { return &r.Device })},
	{name: "Seriennummer", required: true, parse: requiredText(func(r *models.GlucoseRecord) *string { return &r.SerialNumber })},
	{name: "Gerätezeitstempel", required: true, parse: timestamp(func(r *models.GlucoseRecord) *time.Time { return &r.DeviceTimestamp })},
	{name: "Aufzeichnungstyp", required: true, parse: requiredInt(func(r *models.GlucoseRecord) *int { return &r.RecordType })},
	{
		name:    "Glukosewert_Verlauf_mg_dL",
		aliases: []string{"Glukosewert-Verlauf mg/dL"},
		parse:   optionalInt(func(r *models.GlucoseRecord) **int { return &r.GlucoseValueHistory }),
	},
	{
		name:    "Glukose_Scan_mg_dL",
		aliases: []string{"Glukose-Scan mg/dL"},
		parse:   optionalIntAsFloat(func(r *models.GlucoseRecord) **float64 { return &r.GlucoseScan }),
	},
	{
		name:    "Nicht_numerisches_schnellwirkendes_Insulin",
		aliases: []string{"Nicht-numerisches schnellwirkendes Insulin"},
		parse:   optionalText(func(r *models.GlucoseRecord) **string { return &r.NonNumericFastInsulin }),
	},
	{
		name:    "Schnellwirkendes_Insulin_Einheiten",
		aliases: []string{"Schnellwirkendes Insulin (Einheiten)"},
		parse:   optionalFloat(func(r *models.GlucoseRecord) **float64 { return &r.FastInsulinUnits }),
	},
	{
		name:    "Nicht_numerische_Nahrungsdaten",
		aliases: []string{"Nicht-numerische Nahrungsdaten"},
		parse:   optionalText(func(r *models.GlucoseRecord) **string { return &r.NonNumericFood }),
	},
	{
		name:    "Kohlenhydrate_Gramm",
		aliases: []string{"Kohlenhydrate (Gramm)"},
		parse:   optionalFloat(func(r *models.GlucoseRecord) **float64 { return &r.CarbsGrams }),
	},
	{
		name:    "Kohlenhydrate_Portionen",
		aliases: []string{"Kohlenhydrate (Portionen)"},
		parse:   optionalFloat(func(r *models.GlucoseRecord) **float64 { return &r.CarbsPortions }),
	},
	{
		name:    "Nicht_numerisches_Depotinsulin",
		aliases: []string{"Nicht-numerisches Depotinsulin"},
		parse:   optionalText(func(r *models.GlucoseRecord) **string { return &r.NonNumericLongInsulin }),
	},
	{
		name:    "Depotinsulin_Einheiten",
		aliases: []string{"Depotinsulin (Einheiten)"},
		parse:   optionalFloat(func(r *models.GlucoseRecord) **float64 { return &r.LongInsulinUnits }),
	},
	{
		name:  "Notizen",
		parse: optionalText(func(r *models.GlucoseRecord) **string { return &r.Notes }),
	},
	{
		name:    "Glukose_Teststreifen_mg_dL",
		aliases: []string{"Glukose-Teststreifen mg/dL"},
		parse:   optionalIntAsFloat(func(r *models.GlucoseRecord) **float64 { return &r.GlucoseTeststrip }),
	},
	{
		name:    "Keton_mmol_L",
		aliases: []string{"Keton mmol/L"},
		parse:   optionalFloat(func(r *models.GlucoseRecord) **float64 { return &r.Ketone }),
	},
	{
		name:    "Mahlzeiteninsulin_Einheiten",
		aliases: []string{"Mahlzeiteninsulin (Einheiten)"},
		parse:   optionalFloat(func(r *models.GlucoseRecord) **float64 { return &r.MealInsulin }),
	},
	{
		name:    "Korrekturinsulin_Einheiten",
		aliases: []string{"Korrekturinsulin (Einheiten)"},
		parse:   optionalFloat(func(r *models.GlucoseRecord) **float64 { return &r.CorrectionInsulin }),
	},
	{
		name:    "Insulin_Änderung_durch_Anwender_Einheiten",
		aliases: []string{"Insulin-Änderung durch Anwender (Einheiten)"},
		parse:   optionalFloat(func(r *models.GlucoseRecord) **float64 { return &r.InsulinChangeByUser }),
	},
}

// Columns returns the canonical column names in table order.
func Columns() []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

// Validate converts one raw row (header -> cell) into a record. Unknown columns are
// ignored. The first failing column is reported as a *ValidationError.
func Validate(row map[string]string) (*models.GlucoseRecord, error) {
	record := &models.GlucoseRecord{}
	for _, f := range fields {
		raw, ok := f.lookup(row)
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			if f.required {
				return nil, &ValidationError{Field: f.name, Err: ErrRequired}
			}
			continue
		}
		if err := f.parse(raw, record); err != nil {
			return nil, &ValidationError{Field: f.name, Value: raw, Err: err}
		}
	}
	return record, nil
}

func (f field) lookup(row map[string]string) (string, bool) {
	if v, ok := row[f.name]; ok {
		return v, true
	}
	for _, alias := range f.aliases {
		if v, ok := row[alias]; ok {
			return v, true
		}
	}
	return "", false
}

func requiredText(target func(*models.GlucoseRecord) *string) parseFunc {
	return func(raw string, rec *models.GlucoseRecord) error {
		*target(rec) = raw
		return nil
	}
}

func optionalText(target func(*models.GlucoseRecord) **string) parseFunc {
	return func(raw string, rec *models.GlucoseRecord) error {
		v := raw
		*target(rec) = &v
		return nil
	}
}

func requiredInt(target func(*models.GlucoseRecord) *int) parseFunc {
	return func(raw string, rec *models.GlucoseRecord) error {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return ErrInvalidInteger
		}
		*target(rec) = v
		return nil
	}
}

func optionalInt(target func(*models.GlucoseRecord) **int) parseFunc {
	return func(raw string, rec *models.GlucoseRecord) error {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return ErrInvalidInteger
		}
		*target(rec) = &v
		return nil
	}
}

// optionalIntAsFloat validates integer readings that are stored in float columns.
func optionalIntAsFloat(target func(*models.GlucoseRecord) **float64) parseFunc {
	return func(raw string, rec *models.GlucoseRecord) error {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return ErrInvalidInteger
		}
		f := float64(v)
		*target(rec) = &f
		return nil
	}
}

func optionalFloat(target func(*models.GlucoseRecord) **float64) parseFunc {
	return func(raw string, rec *models.GlucoseRecord) error {
		v, err := parseDecimal(raw)
		if err != nil {
			return ErrInvalidNumber
		}
		*target(rec) = &v
		return nil
	}
}

func timestamp(target func(*models.GlucoseRecord) *time.Time) parseFunc {
	return func(raw string, rec *models.GlucoseRecord) error {
		ts, err := time.Parse(TimestampLayout, raw)
		if err != nil {
			return ErrInvalidTimestamp
		}
		*target(rec) = ts
		return nil
	}
}

// parseDecimal accepts both "1.5" and the German "1,5".
func parseDecimal(raw string) (float64, error) {
	if !strings.Contains(raw, ".") {
		raw = strings.Replace(raw, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidNumber
	}
	return v, nil
}
