// file: mssql_connector.go
package warehouse

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
)

var mssqlDialect = dialect{
	name:        "mssql",
	maxSegments: 2,
	quote:       func(s string) string { return "[" + s + "]" },
	placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
}

type MSSQLConnector struct {
	baseConnector
}

func newMSSQLConnector(cfg ConnectionConfig) (*MSSQLConnector, error) {
	if cfg.Port == 0 {
		cfg.Port = 1433
	}
	user := url.QueryEscape(cfg.User)
	pass := url.QueryEscape(cfg.Password)
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	encrypt := "true"
	if sslMode == "disable" {
		encrypt = "disable"
	}
	dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s&encrypt=%s", user, pass, cfg.Host, cfg.Port, cfg.Database, encrypt)
	db, err := openDatabase("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mssql connection: %w", err)
	}
	return &MSSQLConnector{baseConnector{cfg: cfg, db: db}}, nil
}

func (c *MSSQLConnector) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mssql: %w", err)
	}
	return nil
}

func (c *MSSQLConnector) ListTables(ctx context.Context) ([]string, error) {
	return listNames(ctx, c.db, "mssql", "SELECT TABLE_SCHEMA + '.' + TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_CATALOG = DB_NAME()")
}

func (c *MSSQLConnector) DescribeTable(ctx context.Context, table string) (*TableSchema, error) {
	schema, name, err := parseMSSQLTable(table)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, "SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_CATALOG = DB_NAME() AND TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 ORDER BY ORDINAL_POSITION", schema, name)
	if err != nil {
		return nil, fmt.Errorf("query mssql columns: %w", err)
	}
	defer rows.Close()
	columns, err := scanColumns(rows, "mssql", false)
	if err != nil {
		return nil, err
	}
	return &TableSchema{Columns: columns}, nil
}

func (c *MSSQLConnector) FetchSeries(ctx context.Context, q SeriesQuery) ([]float64, error) {
	if _, _, err := parseMSSQLTable(q.Table); err != nil {
		return nil, err
	}
	return c.fetchSeries(ctx, mssqlDialect, q)
}

func parseMSSQLTable(table string) (string, string, error) {
	_, parts, err := quoteQualified(table, 2, mssqlDialect.quote)
	if err != nil {
		return "", "", fmt.Errorf("invalid mssql table: %w", err)
	}
	if len(parts) == 1 {
		return "dbo", parts[0], nil
	}
	return parts[0], parts[1], nil
}
