package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mdlh/query-server-go/internal/cache"
	"github.com/mdlh/query-server-go/internal/config"
	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/model"
	"github.com/mdlh/query-server-go/internal/session"
	"github.com/mdlh/query-server-go/internal/sqltext"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

// MetadataService serves catalog listings through the scoped caches. Reads
// that the warehouse rejects for lack of privileges come back as empty lists
// so the catalog browser can keep walking the tree.
type MetadataService struct {
	caches *cache.Metadata
}

func NewMetadataService(caches *cache.Metadata) *MetadataService {
	return &MetadataService{caches: caches}
}

// ListDatabases returns the databases visible to the session. The second
// return reports whether the answer came from cache.
func (s *MetadataService) ListDatabases(ctx context.Context, sess *session.Session, refresh bool) ([]model.Database, bool, error) {
	scope := sess.Scope()
	if !refresh {
		if dbs, ok := s.caches.Databases.Get(scope, "databases"); ok {
			return dbs, true, nil
		}
	}
	rs, err := s.run(ctx, sess, "SHOW DATABASES")
	if err != nil {
		if warehouse.IsAccessDenied(err) {
			return []model.Database{}, false, nil
		}
		return nil, false, err
	}
	nameIdx := colIndex(rs, "name")
	ownerIdx := colIndex(rs, "owner")
	createdIdx := colIndex(rs, "created_on")
	commentIdx := colIndex(rs, "comment")
	dbs := make([]model.Database, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		dbs = append(dbs, model.Database{
			Name:    cellString(row, nameIdx),
			Owner:   cellString(row, ownerIdx),
			Created: cellString(row, createdIdx),
			Comment: cellString(row, commentIdx),
		})
	}
	s.caches.Databases.Set(scope, "databases", dbs)
	return dbs, false, nil
}

// ListSchemas returns the schemas of one database.
func (s *MetadataService) ListSchemas(ctx context.Context, sess *session.Session, database string, refresh bool) ([]model.Schema, bool, error) {
	quoted, err := sqltext.QuoteIdentifier(database)
	if err != nil {
		return nil, false, err
	}
	scope := sess.Scope()
	key := strings.ToUpper(database)
	if !refresh {
		if schemas, ok := s.caches.Schemas.Get(scope, key); ok {
			return schemas, true, nil
		}
	}
	rs, err := s.run(ctx, sess, "SHOW SCHEMAS IN DATABASE "+quoted)
	if err != nil {
		if warehouse.IsAccessDenied(err) {
			return []model.Schema{}, false, nil
		}
		return nil, false, err
	}
	nameIdx := colIndex(rs, "name")
	ownerIdx := colIndex(rs, "owner")
	commentIdx := colIndex(rs, "comment")
	schemas := make([]model.Schema, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		schemas = append(schemas, model.Schema{
			Name:     cellString(row, nameIdx),
			Database: database,
			Owner:    cellString(row, ownerIdx),
			Comment:  cellString(row, commentIdx),
		})
	}
	s.caches.Schemas.Set(scope, key, schemas)
	return schemas, false, nil
}

// ListTables returns the tables and views of one schema, largest first so
// the interesting tables surface at the top of a catalog browser.
func (s *MetadataService) ListTables(ctx context.Context, sess *session.Session, database, schema string, refresh bool) ([]model.Table, bool, error) {
	quotedDB, err := sqltext.QuoteIdentifier(database)
	if err != nil {
		return nil, false, err
	}
	if _, err := sqltext.QuoteIdentifier(schema); err != nil {
		return nil, false, err
	}
	scope := sess.Scope()
	key := strings.ToUpper(database) + "." + strings.ToUpper(schema)
	if !refresh {
		if tables, ok := s.caches.Tables.Get(scope, key); ok {
			return tables, true, nil
		}
	}
	query := fmt.Sprintf(`
		SELECT table_name, table_type, row_count, bytes, comment
		FROM %s.INFORMATION_SCHEMA.TABLES
		WHERE table_schema = '%s'
		ORDER BY row_count DESC NULLS LAST, table_name
	`, quotedDB, sqltext.EscapeStringLiteral(schema))
	rs, err := s.run(ctx, sess, query)
	if err != nil {
		if warehouse.IsAccessDenied(err) {
			return []model.Table{}, false, nil
		}
		return nil, false, err
	}
	nameIdx := colIndex(rs, "table_name")
	typeIdx := colIndex(rs, "table_type")
	rowsIdx := colIndex(rs, "row_count")
	bytesIdx := colIndex(rs, "bytes")
	commentIdx := colIndex(rs, "comment")
	tables := make([]model.Table, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		kind := "TABLE"
		if strings.Contains(strings.ToUpper(cellString(row, typeIdx)), "VIEW") {
			kind = "VIEW"
		}
		tables = append(tables, model.Table{
			Name:     cellString(row, nameIdx),
			Database: database,
			Schema:   schema,
			Kind:     kind,
			RowCount: cellInt64Ptr(row, rowsIdx),
			Bytes:    cellInt64Ptr(row, bytesIdx),
			Comment:  cellString(row, commentIdx),
		})
	}
	s.caches.Tables.Set(scope, key, tables)
	return tables, false, nil
}

// ListColumns returns the column definitions of one table.
func (s *MetadataService) ListColumns(ctx context.Context, sess *session.Session, database, schema, table string, refresh bool) ([]model.Column, bool, error) {
	parts := make([]string, 0, 3)
	for _, name := range []string{database, schema, table} {
		quoted, err := sqltext.QuoteIdentifier(name)
		if err != nil {
			return nil, false, err
		}
		parts = append(parts, quoted)
	}
	scope := sess.Scope()
	key := strings.ToUpper(database + "." + schema + "." + table)
	if !refresh {
		if cols, ok := s.caches.Columns.Get(scope, key); ok {
			return cols, true, nil
		}
	}
	rs, err := s.run(ctx, sess, "DESCRIBE TABLE "+strings.Join(parts, "."))
	if err != nil {
		if warehouse.IsAccessDenied(err) {
			return []model.Column{}, false, nil
		}
		return nil, false, err
	}
	nameIdx := colIndex(rs, "name")
	typeIdx := colIndex(rs, "type")
	nullIdx := colIndex(rs, "null?")
	defaultIdx := colIndex(rs, "default")
	pkIdx := colIndex(rs, "primary key")
	ukIdx := colIndex(rs, "unique key")
	commentIdx := colIndex(rs, "comment")
	cols := make([]model.Column, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		cols = append(cols, model.Column{
			Name:       cellString(row, nameIdx),
			Type:       cellString(row, typeIdx),
			Nullable:   cellBool(row, nullIdx),
			Default:    cellString(row, defaultIdx),
			PrimaryKey: cellBool(row, pkIdx),
			UniqueKey:  cellBool(row, ukIdx),
			Comment:    cellString(row, commentIdx),
		})
	}
	s.caches.Columns.Set(scope, key, cols)
	return cols, false, nil
}

// Capabilities returns warehouse endpoint facts. These barely ever change,
// so they live under the longest TTL.
func (s *MetadataService) Capabilities(ctx context.Context, sess *session.Session, refresh bool) (model.Capabilities, bool, error) {
	scope := sess.Scope()
	if !refresh {
		if caps, ok := s.caches.Capabilities.Get(scope, "capabilities"); ok {
			return caps, true, nil
		}
	}
	rs, err := s.run(ctx, sess, "SELECT CURRENT_VERSION() AS version, CURRENT_REGION() AS region, CURRENT_ACCOUNT() AS account")
	if err != nil {
		return model.Capabilities{}, false, err
	}
	caps := model.Capabilities{}
	if len(rs.Rows) > 0 {
		row := rs.Rows[0]
		caps.Version = cellString(row, colIndex(rs, "version"))
		caps.Region = cellString(row, colIndex(rs, "region"))
		caps.Account = cellString(row, colIndex(rs, "account"))
	}
	s.caches.Capabilities.Set(scope, "capabilities", caps)
	return caps, false, nil
}

// Refresh invalidates cached catalog state for the session's scope. An empty
// category drops everything; otherwise only the narrowest matching entry
// goes. Returns the number of entries removed.
func (s *MetadataService) Refresh(sess *session.Session, category, database, schema, table string) (int, error) {
	scope := sess.Scope()
	switch category {
	case "":
		n := s.caches.InvalidateScope(scope)
		log.Debug().Str("scope", scope).Int("removed", n).Msg("metadata cache cleared")
		return n, nil
	case "databases":
		return s.caches.Databases.Invalidate(scope, "databases"), nil
	case "schemas":
		return s.caches.Schemas.Invalidate(scope, strings.ToUpper(database)), nil
	case "tables":
		key := ""
		if database != "" && schema != "" {
			key = strings.ToUpper(database) + "." + strings.ToUpper(schema)
		}
		return s.caches.Tables.Invalidate(scope, key), nil
	case "columns":
		key := ""
		if database != "" && schema != "" && table != "" {
			key = strings.ToUpper(database + "." + schema + "." + table)
		}
		return s.caches.Columns.Invalidate(scope, key), nil
	case "capabilities":
		return s.caches.Capabilities.Invalidate(scope, "capabilities"), nil
	default:
		return 0, apperrors.InvalidInput("category", "must be one of databases, schemas, tables, columns, capabilities")
	}
}

// Stats reports per-category cache counters.
func (s *MetadataService) Stats() map[string]cache.Stats {
	return s.caches.StatsByCategory()
}

// run executes one catalog statement under the metadata timeout and maps
// connectivity failures to WAREHOUSE_UNAVAILABLE.
func (s *MetadataService) run(ctx context.Context, sess *session.Session, query string) (*warehouse.Resultset, error) {
	ctx, cancel := context.WithTimeout(ctx, config.MetadataQueryTimeout)
	defer cancel()
	rs, err := sess.Conn().Query(ctx, query, 10000)
	if err != nil && warehouse.IsUnavailable(err) {
		return nil, apperrors.WarehouseUnavailable(err)
	}
	return rs, err
}
