package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// isUniqueViolation reports whether err is a duplicate key error, which the
// stores translate into their own AlreadyExists sentinels.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// mapPostgresError adds context to PostgreSQL errors.
// Returns the original error if it's not a PostgreSQL error.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	// Check if it's a PostgreSQL error
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	// Map error codes to descriptive wrappers
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		// Duplicate ids are normally caught first via isUniqueViolation
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.CheckViolation:
		// e.g. a status or tier outside the allowed set
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		// Retryable transaction errors
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		// Connection errors
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		// Server unavailable
		return fmt.Errorf("database server unavailable: %w", err)

	case pgerrcode.QueryCanceled:
		// Context cancellation or the per-store query timeout
		return fmt.Errorf("query canceled: %w", err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		// Resource errors (throttling-like)
		return fmt.Errorf("database resource limit: %w", err)

	default:
		// Unknown error - wrap with PostgreSQL error details
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}
