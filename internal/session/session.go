package session

import (
	"sort"
	"sync"
	"time"

	"github.com/mdlh/query-server-go/internal/model"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

// Session is one authenticated warehouse connection plus the state that
// belongs to it: execution context, stored results, activity timestamps.
// All mutable state is guarded by mu; the embedded Conn is released exactly
// once regardless of how many paths try to close it.
type Session struct {
	Handle    string
	CreatedAt time.Time

	mu       sync.Mutex
	conn     warehouse.Conn
	identity warehouse.Identity
	lastUsed time.Time
	accesses int
	queries  int
	results  map[string]*storedResult
	closed   bool
	release  sync.Once
}

type storedResult struct {
	result   *model.QueryResult
	storedAt time.Time
}

func newSession(handle string, conn warehouse.Conn, identity warehouse.Identity) *Session {
	now := time.Now()
	return &Session{
		Handle:    handle,
		CreatedAt: now,
		conn:      conn,
		identity:  identity,
		lastUsed:  now,
		results:   make(map[string]*storedResult),
	}
}

// Conn returns the warehouse connection. Callers serialize statement
// execution themselves; the connection is single-flight by construction.
func (s *Session) Conn() warehouse.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Identity returns a copy of the session's current identity, including any
// context switches applied since connect.
func (s *Session) Identity() warehouse.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Scope returns the cache-isolation key for this session's identity.
func (s *Session) Scope() string {
	return s.Identity().Scope()
}

// SetContext records a successful USE switch. Empty arguments leave the
// corresponding field untouched.
func (s *Session) SetContext(warehouseName, database, schema string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if warehouseName != "" {
		s.identity.Warehouse = warehouseName
	}
	if database != "" {
		s.identity.Database = database
		if schema == "" {
			s.identity.Schema = ""
		}
	}
	if schema != "" {
		s.identity.Schema = schema
	}
}

// Touch marks the session as active now and counts the access.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.accesses++
	s.mu.Unlock()
}

// Accesses returns how many successful lookups this handle has served.
func (s *Session) Accesses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accesses
}

// IncQueries counts one executed query against the session.
func (s *Session) IncQueries() {
	s.mu.Lock()
	s.queries++
	s.mu.Unlock()
}

// Queries returns how many queries this session has executed.
func (s *Session) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

// LastUsed returns the time of the most recent activity.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Expired reports whether the session has outlived its idle or absolute
// lifetime at the given instant.
func (s *Session) Expired(now time.Time, idleTTL, maxAge time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idleTTL > 0 && now.Sub(s.lastUsed) > idleTTL {
		return true
	}
	if maxAge > 0 && now.Sub(s.CreatedAt) > maxAge {
		return true
	}
	return false
}

// StoreResult registers a result under its query id.
func (s *Session) StoreResult(r *model.QueryResult) {
	s.mu.Lock()
	s.results[r.QueryID] = &storedResult{result: r, storedAt: time.Now()}
	s.mu.Unlock()
}

// UpdateResult applies fn to the stored result under the session lock.
// Returns false when the query id is unknown.
func (s *Session) UpdateResult(queryID string, fn func(*model.QueryResult)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.results[queryID]
	if !ok {
		return false
	}
	fn(sr.result)
	return true
}

// Result returns a copy of the stored result. The row matrix is shared and
// must be treated as read-only.
func (s *Session) Result(queryID string) (model.QueryResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.results[queryID]
	if !ok {
		return model.QueryResult{}, false
	}
	return *sr.result, true
}

// ResultCount returns the number of stored results.
func (s *Session) ResultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// EvictResults drops stored results that are past ttl or beyond the maxKept
// newest, oldest first. Results that have not reached a terminal status are
// never evicted. Returns the number removed.
func (s *Session) EvictResults(maxKept int, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, sr := range s.results {
		if ttl > 0 && now.Sub(sr.storedAt) > ttl && sr.result.Status.Terminal() {
			delete(s.results, id)
			removed++
		}
	}
	if maxKept <= 0 || len(s.results) <= maxKept {
		return removed
	}
	type aged struct {
		id string
		at time.Time
	}
	evictable := make([]aged, 0, len(s.results))
	for id, sr := range s.results {
		if sr.result.Status.Terminal() {
			evictable = append(evictable, aged{id, sr.storedAt})
		}
	}
	sort.Slice(evictable, func(i, j int) bool { return evictable[i].at.Before(evictable[j].at) })
	for _, e := range evictable {
		if len(s.results) <= maxKept {
			break
		}
		delete(s.results, e.id)
		removed++
	}
	return removed
}

// Close releases the warehouse connection. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.release.Do(func() {
		s.mu.Lock()
		conn := s.conn
		s.closed = true
		s.mu.Unlock()
		if conn != nil {
			err = conn.Close()
		}
	})
	return err
}
