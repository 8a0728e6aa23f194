package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// readSnapshot gives multi-statement reads one consistent view.
var readSnapshot = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// readTx runs fn in a read-only snapshot transaction. Nothing is written, so
// the transaction is always rolled back.
func readTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, readSnapshot)
	if err != nil {
		return fmt.Errorf("tx begin: %w", err)
	}

	fnErr := fn(tx)
	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		if fnErr != nil {
			return fmt.Errorf("tx rollback: %v (original err: %w)", rbErr, fnErr)
		}
		return fmt.Errorf("tx rollback: %w", rbErr)
	}
	return fnErr
}
