package analytics

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// TableProfile is the extracted schema and statistics for one dataset table.
type TableProfile struct {
	Name     string
	RowCount int64
	Columns  []ColumnProfile
}

// ColumnProfile is the extracted statistics for one column.
type ColumnProfile struct {
	Name         string
	DataType     string
	NullRate     float64
	DistinctRate float64
	ValuePattern *string
}

// Inspector reads schema and per-column statistics from the analytical engine.
type Inspector struct {
	db DB
}

// NewInspector creates a schema inspector over the given engine connection.
func NewInspector(db DB) *Inspector {
	return &Inspector{db: db}
}

// TableNames lists the dataset's tables, excluding the engine's own
// bookkeeping tables.
func (i *Inspector) TableNames(ctx context.Context) ([]string, error) {
	rows, err := i.db.Query(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}
	return names, nil
}

// Profile gathers row count and per-column statistics for one table.
func (i *Inspector) Profile(ctx context.Context, table string) (*TableProfile, error) {
	profile := &TableProfile{Name: table}

	quoted := quoteIdent(table)
	if err := i.db.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", quoted)).Scan(&profile.RowCount); err != nil {
		return nil, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}

	columns, err := i.columnInfo(ctx, table)
	if err != nil {
		return nil, err
	}

	for _, col := range columns {
		stats, err := i.columnStats(ctx, table, col.name, profile.RowCount)
		if err != nil {
			return nil, err
		}
		stats.DataType = col.dataType
		profile.Columns = append(profile.Columns, *stats)
	}

	return profile, nil
}

// Schema gathers table shape without per-column statistics. Sync uses this
// cheaper path; extraction pays for the full Profile.
func (i *Inspector) Schema(ctx context.Context, table string) (*TableProfile, error) {
	profile := &TableProfile{Name: table}

	if err := i.db.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))).Scan(&profile.RowCount); err != nil {
		return nil, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}

	columns, err := i.columnInfo(ctx, table)
	if err != nil {
		return nil, err
	}
	for _, col := range columns {
		profile.Columns = append(profile.Columns, ColumnProfile{
			Name:     col.name,
			DataType: col.dataType,
		})
	}
	return profile, nil
}

type columnInfo struct {
	name     string
	dataType string
}

func (i *Inspector) columnInfo(ctx context.Context, table string) ([]columnInfo, error) {
	rows, err := i.db.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []columnInfo
	for rows.Next() {
		var (
			cid       int
			name      string
			dataType  string
			notNull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		if dataType == "" {
			dataType = "TEXT"
		}
		columns = append(columns, columnInfo{name: name, dataType: strings.ToUpper(dataType)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate column info: %w", err)
	}
	return columns, nil
}

func (i *Inspector) columnStats(ctx context.Context, table, column string, rowCount int64) (*ColumnProfile, error) {
	stats := &ColumnProfile{Name: column}
	if rowCount == 0 {
		return stats, nil
	}

	qt, qc := quoteIdent(table), quoteIdent(column)

	var nonNull, distinct int64
	query := fmt.Sprintf("SELECT COUNT(%s), COUNT(DISTINCT %s) FROM %s", qc, qc, qt)
	if err := i.db.QueryRow(ctx, query).Scan(&nonNull, &distinct); err != nil {
		return nil, fmt.Errorf("failed to profile %s.%s: %w", table, column, err)
	}

	stats.NullRate = float64(rowCount-nonNull) / float64(rowCount)
	stats.DistinctRate = float64(distinct) / float64(rowCount)

	pattern, err := i.detectPattern(ctx, qt, qc)
	if err != nil {
		return nil, fmt.Errorf("failed to detect pattern for %s.%s: %w", table, column, err)
	}
	stats.ValuePattern = pattern

	return stats, nil
}

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	uuidPattern  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	urlPattern   = regexp.MustCompile(`^https?://`)
)

// detectPattern samples up to 20 non-null values and reports a pattern label
// when every sampled value matches it.
func (i *Inspector) detectPattern(ctx context.Context, quotedTable, quotedColumn string) (*string, error) {
	query := fmt.Sprintf(
		"SELECT CAST(%s AS TEXT) FROM %s WHERE %s IS NOT NULL LIMIT 20",
		quotedColumn, quotedTable, quotedColumn)

	rows, err := i.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		samples = append(samples, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}

	checks := []struct {
		label string
		re    *regexp.Regexp
	}{
		{"uuid", uuidPattern},
		{"email", emailPattern},
		{"url", urlPattern},
		{"date", datePattern},
	}
	for _, check := range checks {
		if allMatch(samples, check.re) {
			l := check.label
			return &l, nil
		}
	}
	return nil, nil
}

func allMatch(samples []string, re *regexp.Regexp) bool {
	for _, s := range samples {
		if !re.MatchString(s) {
			return false
		}
	}
	return true
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
