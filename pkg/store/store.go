// Package store provides the Postgres persistence layer for mesh topology
// data.
package store

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// querier is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx, so the
// same store code runs inside and outside a transaction.
type querier interface {
	sqlx.Queryer
	sqlx.Execer
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	NamedExec(query string, arg interface{}) (sql.Result, error)
}

// Stores bundles the per-entity repositories over one connection or
// transaction.
type Stores struct {
	Nodes NodeStore
	Links LinkStore
	Runs  RunStore
}

func newStores(q querier) *Stores {
	return &Stores{
		Nodes: &postgresNodeStore{q: q},
		Links: &postgresLinkStore{q: q},
		Runs:  &postgresRunStore{q: q},
	}
}

// DB owns the database connection and hands out transactional store scopes.
type DB struct {
	conn *sqlx.DB
	*Stores
}

// Connect opens the Postgres database and verifies the connection.
func Connect(user, password, host, dbname string) (*DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", user, password, host, dbname)
	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &DB{conn: conn, Stores: newStores(conn)}, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// WithTransaction runs fn with stores bound to a single transaction. The
// transaction commits only if fn returns nil; any error rolls back every
// mutation made inside it.
func (d *DB) WithTransaction(fn func(*Stores) error) error {
	tx, err := d.conn.Beginx()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(newStores(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
