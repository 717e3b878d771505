package warehouse

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrUnsupportedWarehouse = errors.New("unsupported warehouse type")

type openFunc func(ConnectionConfig) (Connector, error)

func opener[T Connector](open func(ConnectionConfig) (T, error)) openFunc {
	return func(cfg ConnectionConfig) (Connector, error) {
		c, err := open(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

var warehouses = map[string]openFunc{
	"postgres": opener(newPostgresConnector),
	"mysql":    opener(newMySQLConnector),
	"mssql":    opener(newMSSQLConnector),
}

var warehouseAliases = map[string]string{
	"postgresql": "postgres",
	"pg":         "postgres",
	"mariadb":    "mysql",
	"sqlserver":  "mssql",
}

// SupportedTypes lists the canonical WAREHOUSE_TYPE values.
func SupportedTypes() []string {
	out := make([]string, 0, len(warehouses))
	for name := range warehouses {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewConnector opens a connector for cfg.Type, accepting common aliases.
// No connection is made until the connector is first used.
func NewConnector(cfg ConnectionConfig) (Connector, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Type))
	if kind == "" {
		return nil, fmt.Errorf("%w: type is required (one of %s)", ErrUnsupportedWarehouse, strings.Join(SupportedTypes(), ", "))
	}
	if canonical, ok := warehouseAliases[kind]; ok {
		kind = canonical
	}
	open, ok := warehouses[kind]
	if !ok {
		return nil, fmt.Errorf("%w %q (one of %s)", ErrUnsupportedWarehouse, cfg.Type, strings.Join(SupportedTypes(), ", "))
	}
	cfg.Type = kind
	return open(cfg)
}

// Detection fans out across workers, so each pool stays small and drops
// idle connections between hourly runs.
const (
	maxOpenConns    = 8
	maxIdleConns    = 2
	connMaxIdleTime = 5 * time.Minute
)

func openDatabase(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	return db, nil
}
