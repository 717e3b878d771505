// file: mysql_connector.go
package warehouse

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	name:        "mysql",
	maxSegments: 1,
	quote:       func(s string) string { return "`" + s + "`" },
	placeholder: func(int) string { return "?" },
}

type MySQLConnector struct {
	baseConnector
}

func newMySQLConnector(cfg ConnectionConfig) (*MySQLConnector, error) {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "disable" {
		dsn += "&tls=false"
	} else if sslMode != "" {
		dsn += "&tls=true"
	}
	db, err := openDatabase("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	return &MySQLConnector{baseConnector{cfg: cfg, db: db}}, nil
}

func (c *MySQLConnector) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	return nil
}

func (c *MySQLConnector) ListTables(ctx context.Context) ([]string, error) {
	return listNames(ctx, c.db, "mysql", "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type IN ('BASE TABLE', 'VIEW')")
}

func (c *MySQLConnector) DescribeTable(ctx context.Context, table string) (*TableSchema, error) {
	if _, _, err := quoteQualified(table, mysqlDialect.maxSegments, mysqlDialect.quote); err != nil {
		return nil, fmt.Errorf("invalid mysql table: %w", err)
	}
	rows, err := c.db.QueryContext(ctx, "SELECT column_name, data_type, is_nullable, column_key FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position", table)
	if err != nil {
		return nil, fmt.Errorf("query mysql columns: %w", err)
	}
	defer rows.Close()
	columns, err := scanColumns(rows, "mysql", true)
	if err != nil {
		return nil, err
	}
	return &TableSchema{Columns: columns}, nil
}

func (c *MySQLConnector) FetchSeries(ctx context.Context, q SeriesQuery) ([]float64, error) {
	return c.fetchSeries(ctx, mysqlDialect, q)
}
