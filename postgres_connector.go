// file: postgres_connector.go
package warehouse

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

var postgresDialect = dialect{
	name:        "postgres",
	maxSegments: 2,
	quote:       func(s string) string { return "\"" + s + "\"" },
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

type PostgresConnector struct {
	baseConnector
}

func newPostgresConnector(cfg ConnectionConfig) (*PostgresConnector, error) {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)
	db, err := openDatabase("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	return &PostgresConnector{baseConnector{cfg: cfg, db: db}}, nil
}

func (c *PostgresConnector) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (c *PostgresConnector) ListTables(ctx context.Context) ([]string, error) {
	return listNames(ctx, c.db, "postgres", "SELECT table_schema || '.' || table_name FROM information_schema.tables WHERE table_schema NOT IN ('pg_catalog', 'information_schema') AND table_type IN ('BASE TABLE', 'VIEW')")
}

func (c *PostgresConnector) DescribeTable(ctx context.Context, table string) (*TableSchema, error) {
	_, parts, err := quoteQualified(table, postgresDialect.maxSegments, postgresDialect.quote)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres table: %w", err)
	}
	schema := "current_schema()"
	args := []any{parts[len(parts)-1]}
	if len(parts) == 2 {
		schema = "$2"
		args = append(args, parts[0])
	}
	rows, err := c.db.QueryContext(ctx, "SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_name = $1 AND table_schema = "+schema+" ORDER BY ordinal_position", args...)
	if err != nil {
		return nil, fmt.Errorf("query postgres columns: %w", err)
	}
	defer rows.Close()
	columns, err := scanColumns(rows, "postgres", false)
	if err != nil {
		return nil, err
	}
	return &TableSchema{Columns: columns}, nil
}

func (c *PostgresConnector) FetchSeries(ctx context.Context, q SeriesQuery) ([]float64, error) {
	return c.fetchSeries(ctx, postgresDialect, q)
}
