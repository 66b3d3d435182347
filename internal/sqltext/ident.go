package sqltext

import (
	"regexp"
	"strings"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
)

var barewordPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// QuoteIdentifier validates a catalog identifier for interpolation into
// generated SQL. Bareword identifiers pass through unchanged; anything else is
// wrapped in double quotes with embedded quotes doubled. Names that could
// terminate a statement or open a comment are rejected outright.
func QuoteIdentifier(name string) (string, error) {
	if name == "" {
		return "", apperrors.InvalidIdentifier(name, "empty name")
	}
	if strings.ContainsAny(name, ";\x00") {
		return "", apperrors.InvalidIdentifier(name, "contains a statement terminator")
	}
	if strings.Contains(name, "--") || strings.Contains(name, "/*") {
		return "", apperrors.InvalidIdentifier(name, "contains a comment sequence")
	}
	if barewordPattern.MatchString(name) {
		return name, nil
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`, nil
}

// EscapeStringLiteral escapes a value for use inside a single-quoted SQL
// string literal.
func EscapeStringLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
