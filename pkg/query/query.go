// Package query is the read side: it answers everything from the projection
// tables and never touches the event log. Results may trail the log by the
// projection lag; callers needing read-your-writes catch the projections up
// first.
package query

import (
	"log/slog"

	"github.com/plaenen/iamcore/pkg/database"
)

// Queries is the read-side entry point handed to API handlers.
type Queries struct {
	db     *database.DB
	logger *slog.Logger
}

// NewQueries wires the read side on the projections database.
func NewQueries(db *database.DB, logger *slog.Logger) *Queries {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queries{db: db, logger: logger}
}
