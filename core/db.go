package core

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	}
)

// RunInTx runs fn inside a transaction when db is set; fn gets a nil executor otherwise
// (in-memory repositories ignore it).
func RunInTx(ctx context.Context, db DB, fn func(exec DBExecutor) error) error {
	if db == nil {
		return fn(nil)
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Pagination bounds a listing.
type Pagination struct {
	Page    int `query:"page"`
	PerPage int `query:"per_page"`
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func (p *Pagination) Clean() {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PerPage <= 0:
		p.PerPage = defaultPerPage
	case p.PerPage > maxPerPage:
		p.PerPage = maxPerPage
	}
}

func (p Pagination) Limit() int  { return p.PerPage }
func (p Pagination) Offset() int { return (p.Page - 1) * p.PerPage }
