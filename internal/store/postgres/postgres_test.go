package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/gavelio/gavel/internal/store"
)

func TestTxErrorMapsConcurrentAborts(t *testing.T) {
	serialization := &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}

	// Serialization failures and deadlocks become the retryable conflict
	// sentinel, even when wrapped by a primitive's error context.
	assert.ErrorIs(t, txError(serialization), store.ErrTxConflict)
	assert.ErrorIs(t, txError(fmt.Errorf("update lot bid: %w", serialization)), store.ErrTxConflict)
	assert.ErrorIs(t, txError(deadlock), store.ErrTxConflict)
}

func TestTxErrorPassesOtherErrorsThrough(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	assert.NotErrorIs(t, txError(unique), store.ErrTxConflict)
	assert.Equal(t, unique, txError(unique))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, txError(plain))

	assert.NoError(t, txError(nil))
}
