// Package projection drains the event log into read-side tables. Each
// projection runs its own worker: claim the lease, pull a batch of events
// after the checkpoint, apply the reduced statements and the checkpoint
// update in one transaction, repeat. Reducers are idempotent so a replayed
// event never corrupts a table.
package projection

import (
	"context"
	"database/sql"

	"github.com/plaenen/iamcore/pkg/domain"
)

// Statement is one effect produced by reducing an event: either a SQL
// mutation applied inside the batch transaction, or an Exec side effect
// (e.g. publishing a message). Side effects run before the checkpoint
// advances, so a crash replays them; consumers get at-least-once delivery.
type Statement struct {
	SQL  string
	Args []any

	Exec func(ctx context.Context) error
}

func (s Statement) exec(ctx context.Context, tx *sql.Tx, rebind func(string) string) error {
	if s.Exec != nil {
		return s.Exec(ctx)
	}
	if _, err := tx.ExecContext(ctx, rebind(s.SQL), s.Args...); err != nil {
		return domain.NewUnavailable(err, "PROJ-stEx", "unable to apply projection statement")
	}
	return nil
}

// Handler turns events into read-model table mutations.
type Handler interface {
	// Name is the projection's unique identifier; it keys the checkpoint.
	Name() string

	// Schema returns the DDL of the projection's tables, run at startup.
	Schema() []string

	// AggregateTypes narrows the drain to the aggregates the handler cares
	// about. Empty means all.
	AggregateTypes() []string

	// Reduce maps one event onto statements. Returning no statements means
	// the event is irrelevant; the checkpoint still advances past it.
	Reduce(event *domain.Event) ([]Statement, error)
}
