// Package storage is the PostgreSQL persistence for availability records, busy sources and
// calendar accounts.
package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrSyncDisabled rejects a sync request for an account with sync turned off.
	ErrSyncDisabled = errors.New("calendar sync is disabled for this account")
	// ErrTokensUnreadable means the sealed provider tokens no longer open; the account must be reconnected.
	ErrTokensUnreadable = errors.New("calendar account tokens cannot be opened")
)

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsConflict reports a unique violation, e.g. registering the same calendar account twice.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
