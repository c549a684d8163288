package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventStorePG persists audit events in PostgreSQL. The audit_event table
// carries no updated_at column and the store issues only INSERT and SELECT.
type EventStorePG struct {
	pool *pgxpool.Pool
}

// NewEventStorePG creates a store backed by the given connection pool.
func NewEventStorePG(pool *pgxpool.Pool) *EventStorePG {
	return &EventStorePG{pool: pool}
}

const eventCols = `id, recorded, principal_id, principal_role, action,
	resource_type, resource_id, result, risk_level, correlation_id`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(
		&e.ID, &e.Timestamp, &e.PrincipalID, &e.PrincipalRole, &e.Action,
		&e.ResourceType, &e.ResourceID, &e.Result, &e.RiskLevel, &e.CorrelationID,
	)
	return &e, err
}

func (s *EventStorePG) Insert(ctx context.Context, event *Event) error {
	const q = `
		INSERT INTO audit_event (
			id, recorded, principal_id, principal_role, action,
			resource_type, resource_id, result, risk_level, correlation_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err := s.pool.Exec(ctx, q,
		event.ID, event.Timestamp, event.PrincipalID, event.PrincipalRole, event.Action,
		event.ResourceType, event.ResourceID, event.Result, event.RiskLevel, event.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *EventStorePG) Query(ctx context.Context, query Query) ([]*Event, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	if !query.From.IsZero() {
		where = append(where, fmt.Sprintf("recorded >= $%d", idx))
		args = append(args, query.From)
		idx++
	}
	if !query.To.IsZero() {
		where = append(where, fmt.Sprintf("recorded <= $%d", idx))
		args = append(args, query.To)
		idx++
	}
	if query.PrincipalID != "" {
		where = append(where, fmt.Sprintf("principal_id = $%d", idx))
		args = append(args, query.PrincipalID)
		idx++
	}
	if query.Action != "" {
		where = append(where, fmt.Sprintf("action = $%d", idx))
		args = append(args, query.Action)
		idx++
	}
	if query.ResourceType != "" {
		where = append(where, fmt.Sprintf("resource_type = $%d", idx))
		args = append(args, query.ResourceType)
		idx++
	}
	if query.Result != "" {
		where = append(where, fmt.Sprintf("result = $%d", idx))
		args = append(args, string(query.Result))
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	q := fmt.Sprintf("SELECT %s FROM audit_event %s ORDER BY recorded ASC", eventCols, whereClause)
	if query.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, query.Limit)
		idx++
	}
	if query.Offset > 0 {
		q += fmt.Sprintf(" OFFSET $%d", idx)
		args = append(args, query.Offset)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
