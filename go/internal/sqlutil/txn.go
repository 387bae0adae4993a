// Package sqlutil holds small database/sql helpers shared by the SQL
// repositories.
package sqlutil

import (
	"context"
	"database/sql"
)

// Run executes fn against a query wrapper bound to a single transaction.
// An error from fn rolls the transaction back; nil commits it.
func Run[T any](
	ctx context.Context,
	db *sql.DB,
	newQueries func(*sql.Tx) *T,
	fn func(q *T) error,
) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(newQueries(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
