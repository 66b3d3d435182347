package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mdlh/query-server-go/internal/cache"
	"github.com/mdlh/query-server-go/internal/config"
	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/model"
	"github.com/mdlh/query-server-go/internal/repository"
	"github.com/mdlh/query-server-go/internal/session"
	"github.com/mdlh/query-server-go/internal/sqltext"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

// QueryService runs SQL on a session's warehouse connection, tracks the
// lifecycle of every submitted query, and memoizes repeated reads.
type QueryService struct {
	history    repository.QueryHistoryRepository
	queryCache *cache.QueryCache

	defaultRowLimit int
	maxRowLimit     int
	resultCap       int
	resultTTL       time.Duration
}

func NewQueryService(
	history repository.QueryHistoryRepository,
	queryCache *cache.QueryCache,
	cfg *config.Config,
) *QueryService {
	return &QueryService{
		history:         history,
		queryCache:      queryCache,
		defaultRowLimit: cfg.DefaultRowLimit,
		maxRowLimit:     cfg.MaxRowLimit,
		resultCap:       cfg.ResultCapPerSession,
		resultTTL:       cfg.ResultTTL(),
	}
}

// ExecuteParams is one execution request. Warehouse, Database and Schema
// switch the connection context before the statements run; TimeoutSeconds is
// enforced warehouse-side.
type ExecuteParams struct {
	SQL            string
	Database       string
	Schema         string
	Warehouse      string
	RowLimit       int
	TimeoutSeconds int
	UseCache       bool
}

var useStmt = regexp.MustCompile(`(?i)^use\s+(warehouse|database|schema)\s+(.+?)\s*$`)

// Execute runs one or more semicolon-separated statements in order on the
// session's connection. The result of the last statement that produced rows
// is retained; USE statements additionally update the session context. The
// stored result is visible as RUNNING for the whole duration of the call.
//
// A statement the warehouse rejects is a terminal outcome, not an error: the
// returned snapshot carries FAILED with the warehouse message and a code
// classifying the failure. The error return is reserved for requests that
// never reach the warehouse, such as empty SQL or a bad context identifier.
func (s *QueryService) Execute(ctx context.Context, sess *session.Session, params ExecuteParams) (model.QueryResult, error) {
	sqlText := strings.TrimSpace(params.SQL)
	if sqlText == "" {
		return model.QueryResult{}, apperrors.EmptyQuery()
	}
	stmts := sqltext.SplitStatements(sqlText)
	if len(stmts) == 0 {
		return model.QueryResult{}, apperrors.EmptyQuery()
	}

	rowLimit := params.RowLimit
	if rowLimit <= 0 {
		rowLimit = s.defaultRowLimit
	}
	if rowLimit > s.maxRowLimit {
		rowLimit = s.maxRowLimit
	}

	prelude, err := contextPrelude(params)
	if err != nil {
		return model.QueryResult{}, err
	}

	result := &model.QueryResult{
		QueryID:   uuid.NewString(),
		SQL:       sqlText,
		Status:    model.QueryStatusRunning,
		StartedAt: time.Now(),
	}
	sess.StoreResult(result)
	sess.IncQueries()
	defer sess.EvictResults(s.resultCap, s.resultTTL)

	var last *warehouse.Resultset
	var execErr error
	for _, stmt := range prelude {
		if execErr = sess.Conn().Exec(ctx, stmt); execErr != nil {
			break
		}
		if m := useStmt.FindStringSubmatch(stmt); m != nil {
			applyContextSwitch(sess, strings.ToLower(m[1]), m[2])
		}
	}

	// UseCache gates only the lookup; a successful read statement is written
	// through regardless, so a bypass acts as a refresh.
	scope := sess.Scope()
	identity := sess.Identity()
	cacheable := len(stmts) == 1 && isReadStatement(stmts[0])
	var cacheKey string
	if cacheable {
		cacheKey = s.queryCache.Key(scope, stmts[0], identity.Database, identity.Schema)
	}
	if execErr == nil && cacheable && params.UseCache {
		if entry, ok := s.queryCache.Get(scope, cacheKey); ok {
			sess.UpdateResult(result.QueryID, func(r *model.QueryResult) {
				now := time.Now()
				r.Status = model.QueryStatusSuccess
				r.Columns = entry.Columns
				r.Rows = entry.Rows
				r.RowCount = entry.RowCount
				r.Truncated = entry.Truncated
				r.FromCache = true
				r.CompletedAt = &now
			})
			snap, _ := sess.Result(result.QueryID)
			s.appendHistory(ctx, sess, &snap)
			return snap, nil
		}
	}

	if execErr == nil {
		for _, stmt := range stmts {
			if m := useStmt.FindStringSubmatch(stmt); m != nil {
				if execErr = sess.Conn().Exec(ctx, stmt); execErr != nil {
					break
				}
				applyContextSwitch(sess, strings.ToLower(m[1]), m[2])
				continue
			}
			rs, err := sess.Conn().Query(ctx, stmt, rowLimit)
			if err != nil {
				execErr = err
				break
			}
			if len(rs.Columns) > 0 || len(rs.Rows) > 0 {
				last = rs
			}
		}
	}
	nativeID := sess.Conn().LastQueryID()
	now := time.Now()

	if execErr != nil {
		code := apperrors.ErrCodeQueryFailed
		if warehouse.IsUnavailable(execErr) {
			code = apperrors.ErrCodeWarehouseUnavailable
		}
		// A locally cancelled query keeps its CANCELLED status even when the
		// aborted statement comes back as an error.
		sess.UpdateResult(result.QueryID, func(r *model.QueryResult) {
			if r.Status.Terminal() {
				return
			}
			r.Status = model.QueryStatusFailed
			r.ErrorMessage = execErr.Error()
			r.ErrorCode = string(code)
			r.NativeQueryID = nativeID
			r.CompletedAt = &now
		})
		snap, _ := sess.Result(result.QueryID)
		s.appendHistory(ctx, sess, &snap)
		return snap, nil
	}

	sess.UpdateResult(result.QueryID, func(r *model.QueryResult) {
		if r.Status.Terminal() {
			return
		}
		r.Status = model.QueryStatusSuccess
		r.NativeQueryID = nativeID
		r.CompletedAt = &now
		if last != nil {
			r.Columns = last.Columns
			r.Rows = last.Rows
			r.RowCount = len(last.Rows)
			r.Truncated = last.Truncated
		}
	})
	snap, _ := sess.Result(result.QueryID)

	if cacheable && snap.Status == model.QueryStatusSuccess && last != nil {
		stored := s.queryCache.Put(scope, cacheKey, cache.QueryEntry{
			Columns:   snap.Columns,
			Rows:      snap.Rows,
			RowCount:  snap.RowCount,
			Truncated: snap.Truncated,
		})
		if !stored {
			log.Debug().Str("queryId", snap.QueryID).Msg("result too large for query cache")
		}
	}
	s.appendHistory(ctx, sess, &snap)
	return snap, nil
}

// Status returns the current state of a stored query.
func (s *QueryService) Status(sess *session.Session, queryID string) (model.QueryResult, error) {
	r, ok := sess.Result(queryID)
	if !ok {
		return model.QueryResult{}, apperrors.QueryNotFound(queryID)
	}
	return r, nil
}

// Results returns one page of a completed query's rows. The page is a view
// into the stored matrix, never a copy.
func (s *QueryService) Results(sess *session.Session, queryID string, page, pageSize int) (model.ResultPage, error) {
	r, ok := sess.Result(queryID)
	if !ok {
		return model.ResultPage{}, apperrors.QueryNotFound(queryID)
	}
	switch r.Status {
	case model.QueryStatusPending, model.QueryStatusRunning:
		return model.ResultPage{}, apperrors.QueryStillRunning(queryID)
	case model.QueryStatusFailed:
		return model.ResultPage{}, apperrors.QueryFailed(r.ErrorMessage)
	case model.QueryStatusCancelled:
		return model.ResultPage{}, apperrors.QueryFailed("query was cancelled")
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	total := len(r.Rows)
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return model.ResultPage{
		QueryID:   queryID,
		Columns:   r.Columns,
		Rows:      r.Rows[start:end],
		TotalRows: total,
		Page:      page,
		PageSize:  pageSize,
		HasMore:   end < total,
	}, nil
}

// Cancel marks a running query cancelled and asks the warehouse to abort the
// underlying statement. The local transition always wins; the remote abort
// is best effort.
func (s *QueryService) Cancel(ctx context.Context, sess *session.Session, queryID string) (model.QueryResult, error) {
	r, ok := sess.Result(queryID)
	if !ok {
		return model.QueryResult{}, apperrors.QueryNotFound(queryID)
	}
	if r.Status != model.QueryStatusRunning {
		return model.QueryResult{}, apperrors.QueryNotCancellable(string(r.Status))
	}

	now := time.Now()
	sess.UpdateResult(queryID, func(r *model.QueryResult) {
		if r.Status.Terminal() {
			return
		}
		r.Status = model.QueryStatusCancelled
		r.CompletedAt = &now
	})

	nativeID := r.NativeQueryID
	if nativeID == "" {
		nativeID = sess.Conn().LastQueryID()
	}
	if nativeID != "" {
		cctx, cancel := context.WithTimeout(ctx, config.CancelTimeout)
		defer cancel()
		if err := sess.Conn().CancelQuery(cctx, nativeID); err != nil {
			log.Warn().Err(err).Str("queryId", queryID).Msg("warehouse-side cancel failed")
		}
	}

	snap, _ := sess.Result(queryID)
	return snap, nil
}

// CacheStats reports query cache counters.
func (s *QueryService) CacheStats() cache.Stats {
	return s.queryCache.Stats()
}

// InvalidateCache drops cached results for the session's identity scope.
func (s *QueryService) InvalidateCache(sess *session.Session) int {
	return s.queryCache.InvalidateScope(sess.Scope())
}

// appendHistory records an execution outcome. History is advisory; a write
// failure never fails the query that produced it.
func (s *QueryService) appendHistory(ctx context.Context, sess *session.Session, r *model.QueryResult) {
	if s.history == nil {
		return
	}
	identity := sess.Identity()
	rowCount := int64(r.RowCount)
	rec := model.QueryHistoryRecord{
		QueryID:      r.QueryID,
		SQL:          r.SQL,
		Database:     identity.Database,
		Schema:       identity.Schema,
		Warehouse:    identity.Warehouse,
		Status:       r.Status,
		RowCount:     &rowCount,
		ErrorMessage: r.ErrorMessage,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
	}
	if r.CompletedAt != nil {
		d := r.CompletedAt.Sub(r.StartedAt).Milliseconds()
		rec.DurationMS = &d
	}
	if err := s.history.Add(ctx, rec); err != nil {
		log.Warn().Err(err).Str("queryId", r.QueryID).Msg("failed to append query history")
	}
}

// contextPrelude builds the statements that put the connection into the
// requested context before the submitted SQL runs. Identifier problems are
// reported here, before anything reaches the warehouse.
func contextPrelude(params ExecuteParams) ([]string, error) {
	var stmts []string
	for _, c := range []struct{ kind, name string }{
		{"WAREHOUSE", params.Warehouse},
		{"DATABASE", params.Database},
		{"SCHEMA", params.Schema},
	} {
		if c.name == "" {
			continue
		}
		quoted, err := sqltext.QuoteIdentifier(c.name)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, "USE "+c.kind+" "+quoted)
	}
	if params.TimeoutSeconds > 0 {
		stmts = append(stmts, fmt.Sprintf("ALTER SESSION SET STATEMENT_TIMEOUT_IN_SECONDS = %d", params.TimeoutSeconds))
	}
	return stmts, nil
}

// isReadStatement reports whether a statement can safely be served from the
// result cache.
func isReadStatement(stmt string) bool {
	fields := strings.Fields(strings.ToLower(stmt))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "select", "with", "show", "describe", "desc", "explain":
		return true
	}
	return false
}

// applyContextSwitch records a successful USE on the session. The target may
// be quoted; a quoted name keeps its exact case.
func applyContextSwitch(sess *session.Session, kind, target string) {
	name := strings.TrimSpace(target)
	if strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) && len(name) >= 2 {
		name = strings.ReplaceAll(name[1:len(name)-1], `""`, `"`)
	} else {
		name = strings.ToUpper(name)
	}
	switch kind {
	case "warehouse":
		sess.SetContext(name, "", "")
	case "database":
		sess.SetContext("", name, "")
	case "schema":
		sess.SetContext("", "", name)
	}
}
