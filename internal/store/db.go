package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// DB wraps sql.DB for Postgres (pgx) or SQLite.
type DB struct {
	Client *sql.DB
	Driver string
}

// NewDB opens a connection with sane defaults and pings it.
func NewDB(driver, connString string) (*DB, error) {
	if driver == "" {
		driver = DriverPostgres
	}
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	db, err := sql.Open(driver, connString)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// a single connection keeps in-memory databases shared across queries
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}
	return &DB{Client: db, Driver: driver}, db.PingContext(context.Background())
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// Rebind rewrites $N placeholders into the form the driver expects.
// Postgres queries pass through; SQLite gets ?N.
func (d *DB) Rebind(query string) string {
	if d == nil || d.Driver != DriverSQLite {
		return query
	}
	return Rebind(DriverSQLite, query)
}

// Rebind rewrites $N placeholders for driver.
func Rebind(driver, query string) string {
	if driver != DriverSQLite {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			inQuote = !inQuote
		}
		if ch == '$' && !inQuote && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
