package services

import (
	"context"

	"github.com/insightloop/catalog-engine/pkg/analytics"
)

// EngineSyncSource is the built-in sync source: it reads the current table
// inventory straight from the analytical engine, without the statistical
// profiling extraction performs.
type EngineSyncSource struct {
	inspector *analytics.Inspector
}

var _ SyncSource = (*EngineSyncSource)(nil)

// NewEngineSyncSource creates a sync source over the analytical engine.
func NewEngineSyncSource(inspector *analytics.Inspector) *EngineSyncSource {
	return &EngineSyncSource{inspector: inspector}
}

// Pull implements SyncSource. The source id is ignored: the engine holds one
// dataset per connection.
func (s *EngineSyncSource) Pull(ctx context.Context, sourceID string) ([]SyncTable, error) {
	names, err := s.inspector.TableNames(ctx)
	if err != nil {
		return nil, err
	}

	var tables []SyncTable
	for _, name := range names {
		if isInternalName(name) {
			continue
		}
		schema, err := s.inspector.Schema(ctx, name)
		if err != nil {
			return nil, err
		}

		table := SyncTable{Name: schema.Name, RowCount: schema.RowCount}
		for _, col := range schema.Columns {
			table.Columns = append(table.Columns, SyncColumn{
				Name:     col.Name,
				DataType: col.DataType,
			})
		}
		tables = append(tables, table)
	}
	return tables, nil
}
