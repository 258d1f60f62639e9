// Package sqlxrepos implements the repositories on Postgres.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/nexscholar/nexscholar/core"
)

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

type base struct {
	db *sqlx.DB
}

// conn returns the transaction the caller runs in, if any, or the pool.
func (b base) conn(exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 && exec[0] != nil {
		return exec[0]
	}
	return b.db
}

func newID() string {
	return uuid.NewString()
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// notFound maps sql.ErrNoRows and uuid cast failures to the domain's not found error.
func notFound(err, nf error) error {
	if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
		return nf
	}
	return err
}

func isInvalidText(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == uniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}

// mustAffect returns `nf` when the statement touched no row.
func mustAffect(res sql.Result, err, nf error) error {
	if err != nil {
		if isInvalidText(err) {
			return nf
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return nf
	}
	return nil
}

// where accumulates AND-ed conditions with positional args.
type where struct {
	conds []string
	args  []interface{}
}

// add appends `cond` where every `?` stands for the next arg.
func (w *where) add(cond string, args ...interface{}) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", "$"+strconv.Itoa(len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// addID compares the uuid column `col` with `id`. A malformed id matches no row.
func (w *where) addID(col, id string) {
	if id, ok := parseID(id); ok {
		w.add(col+" = ?", id)
		return
	}
	w.add("FALSE")
}

// arg adds a positional arg outside of the conditions (LIMIT, OFFSET) and returns its placeholder.
func (w *where) arg(v interface{}) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

// like builds a case-insensitive "contains" pattern.
func like(s string) string {
	return "%" + strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s) + "%"
}

// orderBy renders the orderings whose field is allowed; `fallback` applies when none is.
func orderBy(ordering []core.DBOrdering, allowed map[string]string, fallback string) string {
	var terms []string
	for _, o := range ordering {
		if col, ok := allowed[o.Field]; ok {
			terms = append(terms, core.DBOrdering{Field: col, Ascending: o.Ascending}.String())
		}
	}
	if len(terms) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

// parseID returns the canonical form of a uuid.
func parseID(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

// parseIDs drops the malformed IDs of a list compared against a uuid column.
func parseIDs(ids []string) pq.StringArray {
	out := make(pq.StringArray, 0, len(ids))
	for _, id := range ids {
		if id, ok := parseID(id); ok {
			out = append(out, id)
		}
	}
	return out
}

// uuidOrNotFound keeps malformed IDs from reaching postgres, which would fail on the cast.
func uuidOrNotFound(id string, nf error) (string, error) {
	id, ok := parseID(id)
	if !ok {
		return "", nf
	}
	return id, nil
}

func splitColumns(columns string) []string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = strings.TrimSpace(c)
	}
	return cols
}

// namedValues renders ":a, :b" for a column list.
func namedValues(columns string) string {
	cols := splitColumns(columns)
	for i, c := range cols {
		cols[i] = ":" + c
	}
	return strings.Join(cols, ", ")
}

// namedSet renders "a = :a, b = :b" for every column but id.
func namedSet(columns string) string {
	var set []string
	for _, c := range splitColumns(columns) {
		if c != "id" {
			set = append(set, c+" = :"+c)
		}
	}
	return strings.Join(set, ", ")
}

// insert runs a named INSERT of every column of `row` into `table`.
func (b base) insert(ctx context.Context, exec []core.DBExecutor, table, columns string, row interface{}) error {
	_, err := b.conn(exec).NamedExecContext(ctx, "INSERT INTO "+table+" ("+columns+") VALUES ("+namedValues(columns)+")", row)
	return errors.Wrapf(err, "inserting into %s", table)
}

// update runs a named UPDATE of every column of `row` but its ID.
func (b base) update(ctx context.Context, exec []core.DBExecutor, table, columns string, row interface{}, nf error) error {
	res, err := b.conn(exec).NamedExecContext(ctx, "UPDATE "+table+" SET "+namedSet(columns)+" WHERE id = :id", row)
	return mustAffect(res, err, nf)
}

// getByID scans the row `id` of `table` into `dest`.
func (b base) getByID(ctx context.Context, exec []core.DBExecutor, dest interface{}, table, columns, id string, nf error) error {
	if _, err := uuidOrNotFound(id, nf); err != nil {
		return err
	}
	err := b.conn(exec).GetContext(ctx, dest, "SELECT "+columns+" FROM "+table+" WHERE id = $1", id)
	return notFound(err, nf)
}
