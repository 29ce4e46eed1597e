package heuristic

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/tabsql/tabsql/internal/table"
)

const (
	DefaultLimit       = 25
	TopLimit           = 10
	FallbackLimit      = 20
	DefaultFuzzyCutoff = 0.6
)

type Aggregation string

const (
	AggregationSum   Aggregation = "sum"
	AggregationMean  Aggregation = "mean"
	AggregationCount Aggregation = "count"
	AggregationMin   Aggregation = "min"
	AggregationMax   Aggregation = "max"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Intent holds the signals extracted from a question. Empty strings mean the
// signal is absent.
type Intent struct {
	Limit         int           `json:"limit"`
	Aggregation   Aggregation   `json:"aggregation"`
	SortDirection SortDirection `json:"sort_direction"`
	MetricColumn  string        `json:"metric_column,omitempty"`
	GroupColumn   string        `json:"group_column,omitempty"`
	Year          string        `json:"year,omitempty"`
}

func (i Intent) HasMetric() bool { return i.MetricColumn != "" }
func (i Intent) HasGroup() bool  { return i.GroupColumn != "" }
func (i Intent) HasYear() bool   { return i.Year != "" }

type rule[T any] struct {
	pattern *regexp.Regexp
	outcome T
}

func firstMatch[T any](rules []rule[T], text string, fallback T) T {
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return r.outcome
		}
	}
	return fallback
}

var (
	rankingPhrase = regexp.MustCompile(`\b(top|first|limit|bottom|lowest|highest|largest|smallest)\s+(\d+)`)
	yearPattern   = regexp.MustCompile(`\b(20\d{2}|19\d{2})\b`)
	topWord       = regexp.MustCompile(`\btop\b`)
	moneyHint     = regexp.MustCompile(`(?i)(revenue|sales|amount|price|cost|total|profit)`)
	questionWord  = regexp.MustCompile(`[\pL\pN_]+`)
)

var aggregationRules = []rule[Aggregation]{
	{regexp.MustCompile(`\b(avg|average|mean)\b`), AggregationMean},
	{regexp.MustCompile(`\b(count|how many)\b|#`), AggregationCount},
	{regexp.MustCompile(`\b(min|minimum|lowest|smallest|least)\b`), AggregationMin},
	{regexp.MustCompile(`\b(max|maximum|highest|largest|most|peak)\b`), AggregationMax},
}

var sortRules = []rule[SortDirection]{
	{regexp.MustCompile(`\b(lowest|min|minimum|smallest|least|bottom)\b`), SortAsc},
	{regexp.MustCompile(`\b(highest|max|maximum|largest|most|top)\b|\bdescend`), SortDesc},
}

var metricPriority = []string{"revenue", "sales", "amount", "total", "value", "score", "qty", "quantity", "profit", "price", "count"}

func normalizeQuestion(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// ParseLimit returns the number following the first ranking phrase, or
// fallback when there is none.
func ParseLimit(q string, fallback int) int {
	m := rankingPhrase.FindStringSubmatch(normalizeQuestion(q))
	if m == nil {
		return fallback
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// ParseAggregation ignores ranking phrases so "lowest 5 scores" ranks rather
// than aggregates.
func ParseAggregation(q string) Aggregation {
	stripped := rankingPhrase.ReplaceAllString(normalizeQuestion(q), " ")
	return firstMatch(aggregationRules, stripped, AggregationSum)
}

func ParseSort(q string) SortDirection {
	return firstMatch(sortRules, normalizeQuestion(q), SortDesc)
}

func ParseYear(q string) (string, bool) {
	m := yearPattern.FindStringSubmatch(normalizeQuestion(q))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// HasTopKeyword reports whether the question asks for a ranking.
func HasTopKeyword(q string) bool {
	return topWord.MatchString(normalizeQuestion(q))
}

// ChooseMetric prefers a money-like column when the question talks about
// money, then the priority list, then the first numeric column.
func ChooseMetric(q string, numeric []string) (string, bool) {
	if len(numeric) == 0 {
		return "", false
	}
	if moneyHint.MatchString(q) {
		for _, column := range numeric {
			if moneyHint.MatchString(column) {
				return column, true
			}
		}
	}
	for _, hint := range metricPriority {
		for _, column := range numeric {
			if strings.Contains(strings.ToLower(column), hint) {
				return column, true
			}
		}
	}
	return numeric[0], true
}

// ChooseGroup picks the categorical column the question names, directly or
// by a close spelling, falling back to the first categorical column.
func ChooseGroup(q string, categorical []string, cutoff float64) (string, bool) {
	if len(categorical) == 0 {
		return "", false
	}
	text := normalizeQuestion(q)
	words := questionWord.FindAllString(text, -1)
	for _, column := range categorical {
		name := strings.ToLower(column)
		if strings.Contains(text, strings.ReplaceAll(name, "_", " ")) && len(name) > 2 {
			return column, true
		}
		for _, word := range words {
			if word == name || inflection.Singular(word) == name || inflection.Singular(name) == word {
				return column, true
			}
		}
	}
	for _, word := range words {
		if len(word) < 3 {
			continue
		}
		if column, ok := FuzzyColumn(word, categorical, cutoff); ok {
			return column, true
		}
	}
	return categorical[0], true
}

// ParseOptions tunes Parse. Zero values fall back to DefaultFuzzyCutoff and
// DefaultLimit.
type ParseOptions struct {
	FuzzyCutoff  float64
	DefaultLimit int
}

// Parse extracts every intent signal. It never fails; absent signals are
// left empty and defaults apply.
func Parse(q string, classification table.Classification, opts ParseOptions) Intent {
	cutoff := opts.FuzzyCutoff
	if cutoff <= 0 {
		cutoff = DefaultFuzzyCutoff
	}
	limit := opts.DefaultLimit
	if limit <= 0 {
		limit = DefaultLimit
	}
	intent := Intent{
		Limit:         ParseLimit(q, limit),
		Aggregation:   ParseAggregation(q),
		SortDirection: ParseSort(q),
	}
	if metric, ok := ChooseMetric(q, classification.Numeric); ok {
		intent.MetricColumn = metric
	}
	if group, ok := ChooseGroup(q, classification.Categorical, cutoff); ok {
		intent.GroupColumn = group
	}
	if year, ok := ParseYear(q); ok {
		intent.Year = year
	}
	return intent
}
