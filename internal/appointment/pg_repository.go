package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgExecer is satisfied by *pgxpool.Pool and by pgxmock pools.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgEventSink mirrors booking events into Postgres so bookings can be
// audited without opening the spreadsheets.
type PgEventSink struct {
	pool pgExecer
}

func NewPgEventSink(pool pgExecer) *PgEventSink {
	return &PgEventSink{pool: pool}
}

// EnsureSchema creates the events table if it is missing.
func (r *PgEventSink) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS booking_events (
			id             BIGSERIAL PRIMARY KEY,
			event_type     TEXT        NOT NULL,
			appointment_id TEXT,
			payload        JSONB,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create booking_events: %w", err)
	}
	return nil
}

func (r *PgEventSink) InsertEvent(ctx context.Context, ev EventLog) error {
	var apptID *string
	if ev.AppointmentID != "" {
		apptID = &ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO booking_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, apptID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
