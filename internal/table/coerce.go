package table

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const DefaultCoercionThreshold = 0.7

var (
	temporalHintPattern = regexp.MustCompile(`(?i)(date|time|month|year|day|week|quarter|timestamp)`)
	thousandsSeparators = regexp.MustCompile(`[, ]+`)
	bareYearPattern     = regexp.MustCompile(`^(19|20)\d{2}$`)
	compactDatePattern  = regexp.MustCompile(`^(19|20)\d{6}$`)
)

var temporalLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"2006/01/02",
	"2006/1/2",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"2006-01",
	"Jan 2006",
	"January 2006",
}

type CoerceOptions struct {
	// Threshold is the fraction of rows that must parse before a column is
	// converted. The comparison is strict.
	Threshold float64
}

func (o CoerceOptions) withDefaults() CoerceOptions {
	if o.Threshold <= 0 || o.Threshold >= 1 {
		o.Threshold = DefaultCoercionThreshold
	}
	return o
}

// Coerce infers temporal and numeric columns. It never fails: columns that do
// not meet the threshold keep their current kind. The input is not modified.
func Coerce(t Table, opts CoerceOptions) Table {
	opts = opts.withDefaults()
	out := Table{Columns: make([]Column, len(t.Columns))}
	for i, column := range t.Columns {
		column = column.clone()
		if converted, ok := coerceTemporal(column, opts.Threshold); ok {
			column = converted
		} else if converted, ok := coerceNumeric(column, opts.Threshold); ok {
			column = converted
		}
		out.Columns[i] = column
	}
	return out
}

// HasTemporalHint reports whether a column name suggests date or time content.
func HasTemporalHint(name string) bool {
	return temporalHintPattern.MatchString(name)
}

func coerceTemporal(column Column, threshold float64) (Column, bool) {
	hinted := HasTemporalHint(column.Name)
	switch column.Kind {
	case KindTemporal:
		return column, false
	case KindNumeric:
		if !hinted {
			return column, false
		}
	}

	parsed := make([]Value, len(column.Values))
	ok := 0
	for i, value := range column.Values {
		ts, parsedOK := temporalValue(value, hinted)
		if !parsedOK {
			parsed[i] = Null()
			continue
		}
		parsed[i] = Temporal(ts)
		ok++
	}
	if !passes(ok, len(column.Values), threshold) {
		return column, false
	}
	return Column{Name: column.Name, Kind: KindTemporal, Values: parsed}, true
}

func coerceNumeric(column Column, threshold float64) (Column, bool) {
	if column.Kind != KindText {
		return column, false
	}
	parsed := make([]Value, len(column.Values))
	ok := 0
	for i, value := range column.Values {
		if value.Kind != ValueText {
			parsed[i] = Null()
			continue
		}
		number, parsedOK := ParseNumber(value.Text)
		if !parsedOK {
			parsed[i] = Null()
			continue
		}
		parsed[i] = Number(number)
		ok++
	}
	if !passes(ok, len(column.Values), threshold) {
		return column, false
	}
	return Column{Name: column.Name, Kind: KindNumeric, Values: parsed}, true
}

func passes(ok, total int, threshold float64) bool {
	if total == 0 {
		return false
	}
	return float64(ok)/float64(total) > threshold
}

func temporalValue(value Value, hinted bool) (time.Time, bool) {
	switch value.Kind {
	case ValueTemporal:
		return value.Time, true
	case ValueText:
		if ts, ok := ParseTime(value.Text); ok {
			return ts, true
		}
		if !hinted {
			// Year-shaped text still reads as a date; stored numbers do not.
			return yearLikeText(value.Text)
		}
		number, ok := ParseNumber(value.Text)
		if !ok {
			return time.Time{}, false
		}
		return yearLikeTime(number)
	case ValueNumeric:
		if !hinted {
			return time.Time{}, false
		}
		return yearLikeTime(value.Number)
	default:
		return time.Time{}, false
	}
}

// ParseTime parses s with the supported date and datetime layouts.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range temporalLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParseNumber strips thousands separators and parses a float.
func ParseNumber(s string) (float64, bool) {
	cleaned := thousandsSeparators.ReplaceAllString(strings.TrimSpace(s), "")
	if cleaned == "" {
		return 0, false
	}
	number, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, false
	}
	return number, true
}

func yearLikeText(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !bareYearPattern.MatchString(s) && !compactDatePattern.MatchString(s) {
		return time.Time{}, false
	}
	number, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, false
	}
	return yearLikeTime(number)
}

// yearLikeTime accepts whole numbers shaped like YYYY (1900-2099) or YYYYMMDD.
func yearLikeTime(number float64) (time.Time, bool) {
	if number != math.Trunc(number) || number < 0 {
		return time.Time{}, false
	}
	digits := strconv.FormatInt(int64(number), 10)
	switch {
	case bareYearPattern.MatchString(digits):
		year, _ := strconv.Atoi(digits)
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), true
	case compactDatePattern.MatchString(digits):
		ts, err := time.ParseInLocation("20060102", digits, time.UTC)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	default:
		return time.Time{}, false
	}
}
