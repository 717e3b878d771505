// file: connector.go
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Connector interface {
	TestConnection(ctx context.Context) error

	ListTables(ctx context.Context) ([]string, error)

	DescribeTable(ctx context.Context, table string) (*TableSchema, error)

	FetchSeries(ctx context.Context, q SeriesQuery) ([]float64, error)

	Close() error
}

type ConnectionConfig struct {
	Type     string // mysql | postgres | mssql
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type ColumnInfo struct {
	Name     string
	Type     string
	Nullable bool
	IsPK     bool
}

type TableSchema struct {
	Columns []ColumnInfo
}

func (s TableSchema) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

type Filter struct {
	Column string
	Value  string
}

// Aggregate names how rows sharing a date collapse into one value. Tables
// are usually finer-grained than the entity being watched, so a campaign
// series is built from many keyword rows per day.
type Aggregate string

const (
	// AggregateSum adds additive counters such as clicks or cost.
	AggregateSum Aggregate = "sum"
	// AggregateAvg averages scores that are not additive, such as quality score.
	AggregateAvg Aggregate = "avg"
	// AggregateRatio divides the summed ValueColumn by the summed
	// DenominatorColumn. Days whose denominator sums to zero are dropped.
	AggregateRatio Aggregate = "ratio"
)

// SeriesQuery selects one value per day for the inclusive day range
// [Start, End]. Rows with a NULL value are skipped. An empty Aggregate
// means AggregateSum.
type SeriesQuery struct {
	Table             string
	DateColumn        string
	ValueColumn       string
	DenominatorColumn string
	Aggregate         Aggregate
	Filters           []Filter
	Start             time.Time
	End               time.Time
}

type baseConnector struct {
	cfg ConnectionConfig
	db  *sql.DB
}

func (b *baseConnector) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

type dialect struct {
	name        string
	maxSegments int
	quote       func(string) string
	placeholder func(n int) string
}

func (b *baseConnector) fetchSeries(ctx context.Context, d dialect, q SeriesQuery) ([]float64, error) {
	query, args, err := buildSeriesQuery(d, q)
	if err != nil {
		return nil, fmt.Errorf("invalid %s series query: %w", d.name, err)
	}
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s series: %w", d.name, err)
	}
	defer rows.Close()
	values := []float64{}
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s series value: %w", d.name, err)
		}
		f, ok := toFloat(raw)
		if !ok {
			return nil, fmt.Errorf("%s column %s returned non-numeric value %v", d.name, q.ValueColumn, raw)
		}
		values = append(values, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s series: %w", d.name, err)
	}
	return values, nil
}

func buildSeriesQuery(d dialect, q SeriesQuery) (string, []any, error) {
	table, _, err := quoteQualified(q.Table, d.maxSegments, d.quote)
	if err != nil {
		return "", nil, err
	}
	value, err := quoteList([]string{q.ValueColumn}, d.quote)
	if err != nil {
		return "", nil, err
	}
	date, err := quoteList([]string{q.DateColumn}, d.quote)
	if err != nil {
		return "", nil, err
	}
	if q.End.Before(q.Start) {
		return "", nil, errors.New("end is before start")
	}

	var selectExpr, having string
	notNull := value + " IS NOT NULL"
	switch q.Aggregate {
	case "", AggregateSum:
		selectExpr = "SUM(" + value + ")"
	case AggregateAvg:
		// the multiplier keeps integer columns from averaging to an integer
		selectExpr = "AVG(" + value + " * 1.0)"
	case AggregateRatio:
		den, err := quoteList([]string{q.DenominatorColumn}, d.quote)
		if err != nil {
			return "", nil, fmt.Errorf("ratio denominator: %w", err)
		}
		selectExpr = "SUM(" + value + ") * 1.0 / SUM(" + den + ")"
		notNull += " AND " + den + " IS NOT NULL"
		having = " HAVING SUM(" + den + ") > 0"
	default:
		return "", nil, fmt.Errorf("unsupported aggregate %q", q.Aggregate)
	}

	args := []any{q.Start, q.End.AddDate(0, 0, 1)}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE %s >= %s AND %s < %s AND %s",
		selectExpr, table, date, d.placeholder(1), date, d.placeholder(2), notNull)
	for _, f := range q.Filters {
		col, err := quoteList([]string{f.Column}, d.quote)
		if err != nil {
			return "", nil, err
		}
		args = append(args, f.Value)
		fmt.Fprintf(&b, " AND %s = %s", col, d.placeholder(len(args)))
	}
	fmt.Fprintf(&b, " GROUP BY %s%s ORDER BY %s", date, having, date)
	return b.String(), args, nil
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

func splitIdentifier(ident string) ([]string, error) {
	trimmed := strings.TrimSpace(ident)
	if trimmed == "" {
		return nil, errors.New("identifier is empty")
	}
	parts := strings.Split(trimmed, ".")
	for _, part := range parts {
		if part == "" {
			return nil, errors.New("identifier contains empty segment")
		}
		if !identPattern.MatchString(part) {
			return nil, fmt.Errorf("identifier segment %q is invalid", part)
		}
	}
	return parts, nil
}

func quoteQualified(ident string, maxSegments int, quote func(string) string) (string, []string, error) {
	parts, err := splitIdentifier(ident)
	if err != nil {
		return "", nil, err
	}
	if maxSegments > 0 && len(parts) > maxSegments {
		return "", nil, fmt.Errorf("identifier %q has too many segments", ident)
	}
	quoted := make([]string, len(parts))
	for i, part := range parts {
		quoted[i] = quote(part)
	}
	return strings.Join(quoted, "."), parts, nil
}

func quoteList(names []string, quote func(string) string) (string, error) {
	if len(names) == 0 {
		return "", errors.New("no columns provided")
	}
	quoted := make([]string, len(names))
	for i, name := range names {
		if name == "" {
			return "", errors.New("column name is empty")
		}
		parts, err := splitIdentifier(name)
		if err != nil || len(parts) != 1 {
			return "", fmt.Errorf("invalid column name %q", name)
		}
		quoted[i] = quote(name)
	}
	return strings.Join(quoted, ", "), nil
}

// toFloat converts a scanned driver value. database/sql drivers hand back
// int64, float64, or the raw text of DECIMAL and NUMERIC columns.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case []byte:
		return parseNumeric(string(t))
	case string:
		return parseNumeric(t)
	default:
		return 0, false
	}
}

func parseNumeric(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

func scanColumns(rows *sql.Rows, dialectName string, withKey bool) ([]ColumnInfo, error) {
	columns := []ColumnInfo{}
	for rows.Next() {
		var name, dataType, isNullable, key string
		dest := []any{&name, &dataType, &isNullable}
		if withKey {
			dest = append(dest, &key)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s column: %w", dialectName, err)
		}
		columns = append(columns, ColumnInfo{
			Name:     name,
			Type:     dataType,
			Nullable: strings.EqualFold(isNullable, "YES"),
			IsPK:     strings.EqualFold(key, "PRI"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s columns: %w", dialectName, err)
	}
	return columns, nil
}

func listNames(ctx context.Context, db *sql.DB, dialectName, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s tables: %w", dialectName, err)
	}
	defer rows.Close()
	results := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan %s table name: %w", dialectName, err)
		}
		results = append(results, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s tables: %w", dialectName, err)
	}
	return results, nil
}
