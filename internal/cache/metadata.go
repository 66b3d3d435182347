package cache

import (
	"time"

	"github.com/mdlh/query-server-go/internal/model"
)

// Metadata bundles the per-category catalog caches. Each category carries its
// own TTL because catalog objects churn at different rates: table listings go
// stale fast, column definitions barely move.
type Metadata struct {
	Databases    *Scoped[[]model.Database]
	Schemas      *Scoped[[]model.Schema]
	Tables       *Scoped[[]model.Table]
	Columns      *Scoped[[]model.Column]
	Capabilities *Scoped[model.Capabilities]
}

// MetadataTTLs configures the per-category lifetimes.
type MetadataTTLs struct {
	Databases    time.Duration
	Schemas      time.Duration
	Tables       time.Duration
	Columns      time.Duration
	Capabilities time.Duration
}

const metadataCategorySize = 512

// NewMetadata builds the catalog cache bundle.
func NewMetadata(ttls MetadataTTLs) *Metadata {
	return &Metadata{
		Databases:    NewScoped[[]model.Database](metadataCategorySize, ttls.Databases),
		Schemas:      NewScoped[[]model.Schema](metadataCategorySize, ttls.Schemas),
		Tables:       NewScoped[[]model.Table](metadataCategorySize, ttls.Tables),
		Columns:      NewScoped[[]model.Column](metadataCategorySize, ttls.Columns),
		Capabilities: NewScoped[model.Capabilities](metadataCategorySize, ttls.Capabilities),
	}
}

// InvalidateScope drops every cached category for one identity scope and
// returns the number of entries removed.
func (m *Metadata) InvalidateScope(scope string) int {
	n := m.Databases.Invalidate(scope, "")
	n += m.Schemas.Invalidate(scope, "")
	n += m.Tables.Invalidate(scope, "")
	n += m.Columns.Invalidate(scope, "")
	n += m.Capabilities.Invalidate(scope, "")
	return n
}

// StatsByCategory reports counters for every category keyed by name.
func (m *Metadata) StatsByCategory() map[string]Stats {
	return map[string]Stats{
		"databases":    m.Databases.Stats(),
		"schemas":      m.Schemas.Stats(),
		"tables":       m.Tables.Stats(),
		"columns":      m.Columns.Stats(),
		"capabilities": m.Capabilities.Stats(),
	}
}
