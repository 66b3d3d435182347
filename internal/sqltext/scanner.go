package sqltext

import (
	"regexp"
	"strings"
)

// TableRef is a one-, two- or three-part dotted table reference found in SQL
// text. Database and Schema are empty when the reference was not qualified.
type TableRef struct {
	Database string `json:"database,omitempty"`
	Schema   string `json:"schema,omitempty"`
	Table    string `json:"table"`
}

// QualifiedName renders the reference with all known parts.
func (r TableRef) QualifiedName() string {
	parts := make([]string, 0, 3)
	if r.Database != "" {
		parts = append(parts, r.Database)
	}
	if r.Schema != "" {
		parts = append(parts, r.Schema)
	}
	parts = append(parts, r.Table)
	return strings.Join(parts, ".")
}

// Keywords that can follow FROM/JOIN syntax without naming a table. A bare
// single-part match equal to one of these is a false positive.
var reservedKeywords = map[string]bool{
	"select": true, "where": true, "values": true, "group": true,
	"order": true, "having": true, "limit": true, "on": true, "using": true,
	"join": true, "inner": true, "outer": true, "left": true, "right": true,
	"full": true, "cross": true, "natural": true, "lateral": true,
	"unnest": true, "table": true, "dual": true, "as": true, "set": true,
	"union": true, "all": true, "distinct": true, "case": true, "when": true,
	"and": true, "or": true, "not": true, "exists": true,
}

// SplitStatements splits SQL text into individual statements. Single-line and
// block comments are stripped, semicolons inside string literals do not split,
// and a trailing statement without a terminator is included. Empty statements
// are dropped.
func SplitStatements(sql string) []string {
	stripped := stripComments(sql)

	var statements []string
	var current strings.Builder
	var inString bool
	var stringChar byte

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(stripped); i++ {
		c := stripped[i]
		switch {
		case inString:
			current.WriteByte(c)
			if c == stringChar {
				// Doubled quote stays inside the literal.
				if i+1 < len(stripped) && stripped[i+1] == stringChar {
					current.WriteByte(stripped[i+1])
					i++
					continue
				}
				inString = false
			}
		case c == '\'' || c == '"':
			inString = true
			stringChar = c
			current.WriteByte(c)
		case c == ';':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()

	return statements
}

var identPart = `(?:[A-Za-z_][A-Za-z0-9_$]*|"(?:[^"]|"")+")`

var tableRefPattern = regexp.MustCompile(
	`(?i)\b(?:from|join)\s+(` + identPart + `(?:\s*\.\s*` + identPart + `){0,2})`,
)

// ExtractTableRefs scans SQL text for table references after FROM/JOIN
// keywords. String literals and comments are ignored. Bare single-part names
// matching a reserved keyword are skipped, and a fully-qualified reference
// takes precedence over a partial reference to the same table name.
func ExtractTableRefs(sql string) []TableRef {
	text := maskStrings(stripComments(sql))

	var refs []TableRef
	index := map[string]int{} // upper table name -> position in refs

	for _, match := range tableRefPattern.FindAllStringSubmatch(text, -1) {
		ref, ok := parseDottedName(match[1])
		if !ok {
			continue
		}

		key := strings.ToUpper(ref.Table)
		if at, seen := index[key]; seen {
			if qualifiedParts(ref) > qualifiedParts(refs[at]) {
				refs[at] = ref
			}
			continue
		}
		index[key] = len(refs)
		refs = append(refs, ref)
	}

	return refs
}

func qualifiedParts(r TableRef) int {
	n := 1
	if r.Schema != "" {
		n++
	}
	if r.Database != "" {
		n++
	}
	return n
}

func parseDottedName(name string) (TableRef, bool) {
	rawParts := splitDotted(name)
	parts := make([]string, 0, len(rawParts))
	for _, p := range rawParts {
		parts = append(parts, unquotePart(strings.TrimSpace(p)))
	}

	switch len(parts) {
	case 1:
		if reservedKeywords[strings.ToLower(parts[0])] {
			return TableRef{}, false
		}
		return TableRef{Table: parts[0]}, true
	case 2:
		return TableRef{Schema: parts[0], Table: parts[1]}, true
	case 3:
		return TableRef{Database: parts[0], Schema: parts[1], Table: parts[2]}, true
	}
	return TableRef{}, false
}

// splitDotted splits on dots outside quoted parts.
func splitDotted(name string) []string {
	var parts []string
	var current strings.Builder
	inQuote := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '"':
			inQuote = !inQuote
			current.WriteByte(c)
		case c == '.' && !inQuote:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	parts = append(parts, current.String())
	return parts
}

func unquotePart(p string) string {
	if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
		return strings.ReplaceAll(p[1:len(p)-1], `""`, `"`)
	}
	return p
}

// stripComments removes -- and /* */ comments while preserving string
// literals, so that commented-out SQL never splits or matches.
func stripComments(sql string) string {
	var out strings.Builder
	out.Grow(len(sql))

	var inString bool
	var stringChar byte

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case inString:
			out.WriteByte(c)
			if c == stringChar {
				if i+1 < len(sql) && sql[i+1] == stringChar {
					out.WriteByte(sql[i+1])
					i++
					continue
				}
				inString = false
			}
		case c == '\'' || c == '"':
			inString = true
			stringChar = c
			out.WriteByte(c)
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			if i < len(sql) {
				out.WriteByte('\n')
			}
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			i += 2
			for i+1 < len(sql) && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i++ // past the closing slash
			out.WriteByte(' ')
		default:
			out.WriteByte(c)
		}
	}

	return out.String()
}

// maskStrings blanks the contents of string literals so keyword scanning
// cannot match inside them.
func maskStrings(sql string) string {
	out := []byte(sql)
	var inString bool
	var stringChar byte

	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case inString:
			if c == stringChar {
				if i+1 < len(out) && out[i+1] == stringChar {
					out[i] = ' '
					out[i+1] = ' '
					i++
					continue
				}
				inString = false
				continue
			}
			out[i] = ' '
		case c == '\'':
			inString = true
			stringChar = c
		}
	}

	return string(out)
}
