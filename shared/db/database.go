// Package db holds the database contract and the context-carried
// transaction plumbing shared by every repository.
package db

import (
	"database/sql"
)

// Database is a connectable database backend exposing its *sql.DB.
type Database interface {
	Connect() error
	Close() error
	DB() *sql.DB
}
