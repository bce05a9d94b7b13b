package sql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/eventstore"
)

const selectEventColumns = `SELECT id, instance_id, aggregate_type, aggregate_id,
	aggregate_version, event_type, revision, payload, creator, owner,
	created_at, position_pos, position_in_tx FROM events`

// defaultDrainLimit bounds EventsAfterPosition when no limit is given.
const defaultDrainLimit = 100

// Filter returns the events matching the query in position order.
func (s *Storage) Filter(ctx context.Context, query *eventstore.SearchQuery) ([]*domain.Event, error) {
	var sb strings.Builder
	sb.WriteString(selectEventColumns)
	sb.WriteString(" WHERE instance_id = ?")
	args := []any{query.InstanceID}

	if query.Owner != "" {
		sb.WriteString(" AND owner = ?")
		args = append(args, query.Owner)
	}
	writeInClause(&sb, &args, "aggregate_type", query.AggregateTypes)
	writeInClause(&sb, &args, "aggregate_id", query.AggregateIDs)
	writeInClause(&sb, &args, "event_type", query.EventTypes)

	if !query.PositionAfter.IsZero() {
		sb.WriteString(" AND (position_pos > ? OR (position_pos = ? AND position_in_tx > ?))")
		args = append(args, query.PositionAfter.Pos, query.PositionAfter.Pos, query.PositionAfter.InTxOrder)
	}
	if query.PositionAtMost != nil {
		sb.WriteString(" AND (position_pos < ? OR (position_pos = ? AND position_in_tx <= ?))")
		args = append(args, query.PositionAtMost.Pos, query.PositionAtMost.Pos, query.PositionAtMost.InTxOrder)
	}

	if query.Desc {
		sb.WriteString(" ORDER BY position_pos DESC, position_in_tx DESC")
	} else {
		sb.WriteString(" ORDER BY position_pos ASC, position_in_tx ASC")
	}
	if query.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, query.Limit)
	}

	return s.queryEvents(ctx, sb.String(), args)
}

// EventsAfterPosition drains the log across instances in ascending position
// order, strictly after pos.
func (s *Storage) EventsAfterPosition(ctx context.Context, pos domain.Position, aggregateTypes, eventTypes []string, limit uint32) ([]*domain.Event, error) {
	var sb strings.Builder
	sb.WriteString(selectEventColumns)
	sb.WriteString(" WHERE (position_pos > ? OR (position_pos = ? AND position_in_tx > ?))")
	args := []any{pos.Pos, pos.Pos, pos.InTxOrder}

	writeInClause(&sb, &args, "aggregate_type", aggregateTypes)
	writeInClause(&sb, &args, "event_type", eventTypes)

	if limit == 0 {
		limit = defaultDrainLimit
	}
	sb.WriteString(" ORDER BY position_pos ASC, position_in_tx ASC LIMIT ?")
	args = append(args, limit)

	return s.queryEvents(ctx, sb.String(), args)
}

// LatestPosition returns the newest committed position, zero when the log is
// empty. An empty instanceID queries the global tip.
func (s *Storage) LatestPosition(ctx context.Context, instanceID string) (domain.Position, error) {
	query := "SELECT position_pos, position_in_tx FROM events"
	args := []any{}
	if instanceID != "" {
		query += " WHERE instance_id = ?"
		args = append(args, instanceID)
	}
	query += " ORDER BY position_pos DESC, position_in_tx DESC LIMIT 1"

	var pos domain.Position
	err := s.db.QueryRowContext(ctx, s.db.Rebind(query), args...).Scan(&pos.Pos, &pos.InTxOrder)
	if err == sql.ErrNoRows {
		return domain.Position{}, nil
	}
	if err != nil {
		return domain.Position{}, domain.NewUnavailable(err, "SQL-lP3st", "unable to read latest position")
	}
	return pos, nil
}

func writeInClause(sb *strings.Builder, args *[]any, column string, values []string) {
	if len(values) == 0 {
		return
	}
	sb.WriteString(" AND ")
	sb.WriteString(column)
	if len(values) == 1 {
		sb.WriteString(" = ?")
		*args = append(*args, values[0])
		return
	}
	sb.WriteString(" IN (")
	for i, v := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
		*args = append(*args, v)
	}
	sb.WriteString(")")
}

func (s *Storage) queryEvents(ctx context.Context, query string, args []any) ([]*domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, domain.NewUnavailable(err, "SQL-qEv7r", "unable to query events")
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewUnavailable(err, "SQL-rEv2x", "unable to iterate events")
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (*domain.Event, error) {
	var (
		event     domain.Event
		payload   sql.NullString
		createdAt int64
	)
	err := rows.Scan(
		&event.ID, &event.InstanceID, &event.AggregateType, &event.AggregateID,
		&event.AggregateVersion, &event.EventType, &event.Revision, &payload,
		&event.Creator, &event.Owner, &createdAt,
		&event.Position.Pos, &event.Position.InTxOrder,
	)
	if err != nil {
		return nil, domain.NewUnavailable(err, "SQL-sEv1c", "unable to scan event")
	}
	if payload.Valid {
		event.Payload = []byte(payload.String)
	}
	event.CreatedAt = time.UnixMicro(createdAt).UTC()
	return &event, nil
}
