package metricsource

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	warehouse "adwatch-backend"
	"adwatch-backend/internal/detection"
)

// Mapping tells WarehouseSource where metrics live. EntityColumns keys are
// entity field names (id, product, market, campaign, ad_group, keyword, url).
//
// Rows sharing a date are collapsed per metric kind: Metrics columns are
// summed, Averages columns are averaged, and Ratios divide two sums so a
// campaign CPC is total cost over total clicks.
type Mapping struct {
	Table         string            `yaml:"table"`
	DateColumn    string            `yaml:"date_column"`
	Metrics       map[string]string `yaml:"metrics"`
	Averages      map[string]string `yaml:"averages"`
	Ratios        map[string]Ratio  `yaml:"ratios"`
	EntityColumns map[string]string `yaml:"entity_columns"`
}

type Ratio struct {
	Numerator   string `yaml:"numerator"`
	Denominator string `yaml:"denominator"`
}

// Columns lists every warehouse column the mapping reads, sorted.
func (m Mapping) Columns() []string {
	seen := map[string]bool{}
	add := func(col string) {
		if col != "" {
			seen[col] = true
		}
	}
	add(m.DateColumn)
	for _, col := range m.Metrics {
		add(col)
	}
	for _, col := range m.Averages {
		add(col)
	}
	for _, r := range m.Ratios {
		add(r.Numerator)
		add(r.Denominator)
	}
	for _, col := range m.EntityColumns {
		add(col)
	}
	out := make([]string, 0, len(seen))
	for col := range seen {
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}

// MetricNames lists the metrics the mapping can serve, with the name of
// every metric defined more than once returned in dupes.
func (m Mapping) MetricNames() (names []string, dupes []string) {
	count := map[string]int{}
	for name := range m.Metrics {
		count[name]++
	}
	for name := range m.Averages {
		count[name]++
	}
	for name := range m.Ratios {
		count[name]++
	}
	for name, n := range count {
		names = append(names, name)
		if n > 1 {
			dupes = append(dupes, name)
		}
	}
	sort.Strings(names)
	sort.Strings(dupes)
	return names, dupes
}

func (m Mapping) series(metric string) (warehouse.SeriesQuery, bool) {
	if r, ok := m.Ratios[metric]; ok {
		return warehouse.SeriesQuery{ValueColumn: r.Numerator, DenominatorColumn: r.Denominator, Aggregate: warehouse.AggregateRatio}, true
	}
	if col, ok := m.Averages[metric]; ok {
		return warehouse.SeriesQuery{ValueColumn: col, Aggregate: warehouse.AggregateAvg}, true
	}
	if col, ok := m.Metrics[metric]; ok {
		return warehouse.SeriesQuery{ValueColumn: col, Aggregate: warehouse.AggregateSum}, true
	}
	return warehouse.SeriesQuery{}, false
}

type WarehouseSource struct {
	conn    warehouse.Connector
	mapping Mapping
}

func NewWarehouseSource(conn warehouse.Connector, mapping Mapping) *WarehouseSource {
	return &WarehouseSource{conn: conn, mapping: mapping}
}

// Connect pings the warehouse before handing out a source over it. Mapping
// problems are left to Validate so callers can decide whether they are fatal.
func Connect(ctx context.Context, conn warehouse.Connector, mapping Mapping) (*WarehouseSource, error) {
	if err := conn.TestConnection(ctx); err != nil {
		return nil, fmt.Errorf("warehouse unreachable: %w", err)
	}
	return NewWarehouseSource(conn, mapping), nil
}

func (s *WarehouseSource) FetchMetrics(ctx context.Context, entity detection.Entity, metric string, start, end time.Time) ([]float64, error) {
	q, err := s.query(entity, metric, start, end)
	if err != nil {
		return nil, err
	}
	return s.conn.FetchSeries(ctx, q)
}

func (s *WarehouseSource) query(entity detection.Entity, metric string, start, end time.Time) (warehouse.SeriesQuery, error) {
	q, ok := s.mapping.series(metric)
	if !ok {
		return warehouse.SeriesQuery{}, fmt.Errorf("metric %q is not mapped", metric)
	}
	values := entityFields(entity)
	fields := make([]string, 0, len(s.mapping.EntityColumns))
	for field := range s.mapping.EntityColumns {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	var filters []warehouse.Filter
	for _, field := range fields {
		v := values[field]
		if v == "" {
			continue
		}
		filters = append(filters, warehouse.Filter{Column: s.mapping.EntityColumns[field], Value: v})
	}
	q.Table = s.mapping.Table
	q.DateColumn = s.mapping.DateColumn
	q.Filters = filters
	q.Start = start
	q.End = end
	return q, nil
}

// Validate checks that the mapped table is visible to the connection and
// that every mapped column exists in it.
func (s *WarehouseSource) Validate(ctx context.Context) error {
	tables, err := s.conn.ListTables(ctx)
	if err != nil {
		return err
	}
	if !containsTable(tables, s.mapping.Table) {
		return fmt.Errorf("table %s not found", s.mapping.Table)
	}
	schema, err := s.conn.DescribeTable(ctx, s.mapping.Table)
	if err != nil {
		return err
	}
	var missing []string
	for _, col := range s.mapping.Columns() {
		if !schema.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s is missing columns %v", s.mapping.Table, missing)
	}
	return nil
}

// containsTable matches case-insensitively. Listings may or may not carry
// the schema; when either side is unqualified only the bare names compare.
func containsTable(tables []string, table string) bool {
	schema, name := splitTable(table)
	for _, t := range tables {
		ts, tn := splitTable(t)
		if !strings.EqualFold(tn, name) {
			continue
		}
		if ts == "" || schema == "" || strings.EqualFold(ts, schema) {
			return true
		}
	}
	return false
}

func splitTable(table string) (schema, name string) {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}

func entityFields(e detection.Entity) map[string]string {
	return map[string]string{
		"id":       e.ID,
		"type":     string(e.Type),
		"product":  e.Product,
		"market":   e.Market,
		"campaign": e.Campaign,
		"ad_group": e.AdGroup,
		"keyword":  e.Keyword,
		"url":      e.URL,
	}
}
