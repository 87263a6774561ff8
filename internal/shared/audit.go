package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent represents a record stored in audit_events.
type AuditEvent struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_events.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the event. A nil logger drops events silently so services
// stay usable in tests without a database.
func (l *AuditLogger) Record(ctx context.Context, ev AuditEvent) error {
	if l == nil || l.pool == nil {
		return nil
	}
	if ev.Action == "" || ev.Entity == "" {
		return errors.New("audit event requires action/entity")
	}
	metaJSON, err := json.Marshal(ev.Meta)
	if err != nil {
		return err
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_events (id, actor_id, action, entity, entity_id, meta, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), ev.ActorID, ev.Action, ev.Entity, ev.EntityID, metaJSON, at)
	return err
}
