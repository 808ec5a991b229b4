package db

import (
	"context"
	"encoding/json"

	"github.com/shandysiswandi/stepguard/internal/audit/entity"
)

// Empty filter values match every row.
const eventFilter = `WHERE ($1 = '' OR address = $1) AND ($2 = '' OR type = $2)`

func (s *DB) CreateEvent(ctx context.Context, e entity.Event) (err error) {
	ctx, span := s.startSpan(ctx, "CreateEvent")
	defer func() { s.endSpan(span, err) }()

	detail := e.Detail
	if detail == nil {
		detail = map[string]string{}
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return err
	}

	_, err = s.conn.Exec(ctx,
		`INSERT INTO audit_events (id, type, address, session_id, detail, correlation_id, occurred_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Type, e.Address, e.SessionID, raw, e.CorrelationID, e.OccurredAt, e.RecordedAt)
	return s.mapError(err)
}

func (s *DB) ListEvents(ctx context.Context, f entity.EventFilter) (_ []entity.Event, err error) {
	ctx, span := s.startSpan(ctx, "ListEvents")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx,
		`SELECT id, type, address, session_id, detail, correlation_id, occurred_at, recorded_at
		FROM audit_events `+eventFilter+`
		ORDER BY occurred_at DESC, id DESC
		LIMIT $3 OFFSET $4`, f.Address, f.Type, f.Limit, f.Offset)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	events := make([]entity.Event, 0)
	for rows.Next() {
		var (
			e   entity.Event
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Address, &e.SessionID, &raw,
			&e.CorrelationID, &e.OccurredAt, &e.RecordedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &e.Detail); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, s.mapError(rows.Err())
}

func (s *DB) CountEvents(ctx context.Context, f entity.EventFilter) (_ int64, err error) {
	ctx, span := s.startSpan(ctx, "CountEvents")
	defer func() { s.endSpan(span, err) }()

	var total int64
	err = s.conn.QueryRow(ctx, `SELECT COUNT(*) FROM audit_events `+eventFilter, f.Address, f.Type).Scan(&total)
	return total, s.mapError(err)
}
