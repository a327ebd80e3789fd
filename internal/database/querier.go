package database

import "database/sql"

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Repository methods that must run inside a caller-owned transaction accept a
// Querier so the same code serves both transactional and standalone use.
type Querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)
