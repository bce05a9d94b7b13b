package sql

import (
	"context"
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/plaenen/iamcore/pkg/domain"
)

const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a duplicate-key error of either
// backend.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	// modernc.org/sqlite reports constraint failures in the message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// refersTo reports whether a duplicate-key error involves the given table.
func refersTo(err error, table string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(pqErr.Constraint, table) || pqErr.Table == table
	}
	return strings.Contains(err.Error(), table+".")
}

// translateError maps driver errors onto the error taxonomy. A duplicate key
// on the events table means two writers raced the same aggregate version; a
// duplicate on unique_constraints is a uniqueness claim conflict.
func translateError(err error, id string) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		if refersTo(err, "unique_constraints") {
			return domain.NewAlreadyExists(err, id, "unique constraint already taken")
		}
		if refersTo(err, "events") {
			return domain.NewFailedPrecondition(err, id, "concurrency conflict: aggregate changed concurrently")
		}
		return domain.NewAlreadyExists(err, id, "duplicate key")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewUnavailable(err, id, "operation aborted")
	}
	return domain.NewUnavailable(err, id, "storage error")
}
