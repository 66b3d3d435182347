package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mdlh/query-server-go/internal/config"
	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/session"
	"github.com/mdlh/query-server-go/internal/sqltext"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

// Suggestion is one candidate replacement for a missing or empty table.
type Suggestion struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	RowCount *int64  `json:"row_count,omitempty"`
}

// TableCheck is the verdict for one referenced table.
type TableCheck struct {
	Database    string       `json:"database,omitempty"`
	Schema      string       `json:"schema,omitempty"`
	Table       string       `json:"table"`
	Exists      bool         `json:"exists"`
	Empty       bool         `json:"empty"`
	RowCount    *int64       `json:"row_count,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// PreflightReport is the advisory outcome of validating a query before
// execution. Valid is true only when every referenced table exists and has
// rows; Issues spells out each problem in plain words. RewrittenSQL is only
// set when a confident substitution exists; the caller decides whether to
// use it.
type PreflightReport struct {
	Valid        bool         `json:"valid"`
	Checks       []TableCheck `json:"checks"`
	Issues       []string     `json:"issues"`
	RewrittenSQL string       `json:"rewritten_sql,omitempty"`
}

// PreflightService checks the tables a query references against the live
// catalog and proposes close-named alternatives for ones that are missing or
// empty. Everything it returns is advisory.
type PreflightService struct{}

func NewPreflightService() *PreflightService {
	return &PreflightService{}
}

const (
	maxSuggestions        = 5
	rewriteMissingCutoff  = 0.6
	rewriteEmptyCutoff    = 0.5
	sharedPrefixMinLength = 4
)

// Conventional table name suffixes. Stripping one before comparison lets
// ORDERS match ORDERS_V without penalty.
var nameSuffixes = []string{"_VIEW", "_VW", "_V", "_TBL", "_T", "_RAW", "_STG", "_TMP", "_BAK", "_HIST"}

// Validate scans the query for table references, verifies each against
// INFORMATION_SCHEMA and builds the advisory report. Unqualified references
// resolve against defaultDB and defaultSchema when given, else the session
// context.
func (s *PreflightService) Validate(ctx context.Context, sess *session.Session, sqlText, defaultDB, defaultSchema string) (PreflightReport, error) {
	sqlText = strings.TrimSpace(sqlText)
	if sqlText == "" {
		return PreflightReport{}, apperrors.EmptyQuery()
	}
	refs := sqltext.ExtractTableRefs(sqlText)
	report := PreflightReport{Valid: true, Checks: []TableCheck{}, Issues: []string{}}
	if len(refs) == 0 {
		return report, nil
	}

	identity := sess.Identity()
	if defaultDB == "" {
		defaultDB = identity.Database
	}
	if defaultSchema == "" {
		defaultSchema = identity.Schema
	}
	catalogs := map[string][]catalogTable{}
	rewritten := sqlText
	changed := false

	for _, ref := range refs {
		db := ref.Database
		if db == "" {
			db = defaultDB
		}
		schema := ref.Schema
		if schema == "" {
			schema = defaultSchema
		}
		check := TableCheck{Database: ref.Database, Schema: ref.Schema, Table: ref.Table}
		if db == "" || schema == "" {
			// No context to resolve against; nothing to verify.
			check.Exists = true
			report.Checks = append(report.Checks, check)
			continue
		}

		key := strings.ToUpper(db + "." + schema)
		catalog, ok := catalogs[key]
		if !ok {
			var err error
			catalog, err = s.listCatalog(ctx, sess, db, schema)
			if err != nil {
				return PreflightReport{}, err
			}
			catalogs[key] = catalog
		}

		target := strings.ToUpper(ref.Table)
		for _, ct := range catalog {
			if strings.ToUpper(ct.name) == target {
				check.Exists = true
				check.RowCount = ct.rowCount
				check.Empty = ct.rowCount != nil && *ct.rowCount == 0
				break
			}
		}

		cutoff := 0.0
		switch {
		case !check.Exists:
			report.Valid = false
			report.Issues = append(report.Issues,
				fmt.Sprintf("table %s.%s.%s does not exist", db, schema, ref.Table))
			check.Suggestions = suggest(ref.Table, catalog)
			cutoff = rewriteMissingCutoff
		case check.Empty:
			report.Valid = false
			report.Issues = append(report.Issues,
				fmt.Sprintf("table %s.%s.%s exists but is empty", db, schema, ref.Table))
			check.Suggestions = suggest(ref.Table, catalog)
			cutoff = rewriteEmptyCutoff
		}
		if len(check.Suggestions) > 0 && check.Suggestions[0].Score >= cutoff && cutoff > 0 {
			rewritten = substituteTable(rewritten, ref.Table, check.Suggestions[0].Name)
			changed = true
		}
		report.Checks = append(report.Checks, check)
	}

	if changed {
		report.RewrittenSQL = rewritten
	}
	return report, nil
}

type catalogTable struct {
	name     string
	rowCount *int64
}

func (s *PreflightService) listCatalog(ctx context.Context, sess *session.Session, db, schema string) ([]catalogTable, error) {
	quotedDB, err := sqltext.QuoteIdentifier(db)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT table_name, row_count
		FROM %s.INFORMATION_SCHEMA.TABLES
		WHERE table_schema = '%s'
	`, quotedDB, sqltext.EscapeStringLiteral(schema))
	cctx, cancel := context.WithTimeout(ctx, config.MetadataQueryTimeout)
	defer cancel()
	rs, err := sess.Conn().Query(cctx, query, 10000)
	if err != nil {
		if warehouse.IsAccessDenied(err) {
			return nil, nil
		}
		if warehouse.IsUnavailable(err) {
			return nil, apperrors.WarehouseUnavailable(err)
		}
		return nil, err
	}
	nameIdx := colIndex(rs, "table_name")
	rowsIdx := colIndex(rs, "row_count")
	catalog := make([]catalogTable, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		catalog = append(catalog, catalogTable{
			name:     cellString(row, nameIdx),
			rowCount: cellInt64Ptr(row, rowsIdx),
		})
	}
	return catalog, nil
}

// suggest ranks catalog tables by name similarity to the target, best first,
// row count breaking ties.
func suggest(target string, catalog []catalogTable) []Suggestion {
	suggestions := make([]Suggestion, 0, len(catalog))
	for _, ct := range catalog {
		if strings.EqualFold(ct.name, target) {
			continue
		}
		score := similarity(target, ct.name, ct.rowCount)
		if score > 0 {
			suggestions = append(suggestions, Suggestion{Name: ct.name, Score: score, RowCount: ct.rowCount})
		}
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return rowsOf(suggestions[i].RowCount) > rowsOf(suggestions[j].RowCount)
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions
}

func rowsOf(p *int64) int64 {
	if p == nil {
		return -1
	}
	return *p
}

func similarity(target, candidate string, candidateRows *int64) float64 {
	t := strings.ToUpper(target)
	c := strings.ToUpper(candidate)
	if normalizeName(t) == normalizeName(c) {
		return 1.0
	}
	if strings.Contains(c, t) || strings.Contains(t, c) {
		return 0.8
	}
	if sharedPrefix(t, c) >= sharedPrefixMinLength {
		return 0.6
	}
	if st, sc := nameSuffix(t), nameSuffix(c); st != "" && st == sc && rowsOf(candidateRows) > 0 {
		return 0.3
	}
	return 0
}

// normalizeName strips one conventional suffix and all underscores so
// ORDERS_V and ORDERS compare equal.
func normalizeName(name string) string {
	for _, suffix := range nameSuffixes {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return strings.ReplaceAll(name, "_", "")
}

func nameSuffix(name string) string {
	for _, suffix := range nameSuffixes {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return suffix
		}
	}
	return ""
}

func sharedPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// substituteTable replaces whole-word occurrences of the old table name in
// the query text.
func substituteTable(sqlText, oldName, newName string) string {
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(oldName) + `\b`)
	if err != nil {
		return sqlText
	}
	return re.ReplaceAllString(sqlText, newName)
}
