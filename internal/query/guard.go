package query

import (
	"errors"
	"strings"
)

var (
	ErrSQLRequired        = errors.New("sql is required")
	ErrNotReadOnly        = errors.New("only read-only SELECT/WITH queries are allowed")
	ErrMultipleStatements = errors.New("multiple SQL statements are not allowed")
)

// Guard normalizes sqlText and rejects anything that is not a single
// SELECT or WITH statement.
func Guard(sqlText string) (string, error) {
	normalized := stripTrailingSemicolons(sqlText)
	if normalized == "" {
		return "", ErrSQLRequired
	}
	if hasSemicolonOutsideStrings(normalized) {
		return "", ErrMultipleStatements
	}
	if !isAllowedSQL(normalized) {
		return "", ErrNotReadOnly
	}
	return normalized, nil
}

// IsGuardError reports whether err came from Guard and so is the caller's fault.
func IsGuardError(err error) bool {
	return errors.Is(err, ErrSQLRequired) || errors.Is(err, ErrNotReadOnly) || errors.Is(err, ErrMultipleStatements)
}

func isAllowedSQL(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimLeft(sqlText, " \t\r\n("))
	return hasKeywordPrefix(normalized, "select") || hasKeywordPrefix(normalized, "with")
}

func hasKeywordPrefix(text, keyword string) bool {
	if !strings.HasPrefix(text, keyword) {
		return false
	}
	if len(text) == len(keyword) {
		return true
	}
	next := text[len(keyword)]
	return !(next == '_' || next >= 'a' && next <= 'z' || next >= '0' && next <= '9')
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func hasSemicolonOutsideStrings(sqlText string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	for _, char := range sqlText {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			if char == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' {
				state = stateNormal
			}
		}
	}
	return false
}
