package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// TransientError marks an error as safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// transientSQLStates lists Postgres error codes worth retrying. Codes
// ending in "*" match a whole class.
var transientSQLStates = []string{
	"08*",   // connection exception
	"53*",   // insufficient resources
	"57P03", // cannot connect now
	"40001", // serialization failure
	"40P01", // deadlock detected
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, a retryable Postgres error, a network timeout or
// connection failure, or a busy SQLite database.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return IsTransientSQLState(pgErr.Code)
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"i/o timeout",
		"database is locked",
		"sqlite_busy",
		"the database system is starting up",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientSQLState reports whether a Postgres SQLSTATE code is retryable.
func IsTransientSQLState(code string) bool {
	for _, s := range transientSQLStates {
		if prefix, ok := strings.CutSuffix(s, "*"); ok {
			if strings.HasPrefix(code, prefix) {
				return true
			}
			continue
		}
		if code == s {
			return true
		}
	}
	return false
}
