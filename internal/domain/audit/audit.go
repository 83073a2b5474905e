// Package audit provides the append-only trail of financial decisions.
// Remit postings and clearance decisions record what was committed and
// by whom; the storage layer compresses payloads at rest.
package audit

import (
	"context"
	"time"

	"tindahan/internal/core/id"
)

// Action names one recorded operation.
type Action string

const (
	ActionClearanceDecided Action = "CLEARANCE_DECIDED"
	ActionRemitPosted      Action = "REMIT_POSTED"
	ActionRunDispatched    Action = "RUN_DISPATCHED"
	ActionRunCancelled     Action = "RUN_CANCELLED"
)

// Entry is one immutable audit record. Payload holds the full operation
// snapshot as JSON-serializable data.
type Entry struct {
	ID       id.ID          `db:"id" json:"id"`
	Action   Action         `db:"action" json:"action"`
	Entity   string         `db:"entity" json:"entity"`
	EntityID id.ID          `db:"entity_id" json:"entityId"`
	UserID   *id.ID         `db:"user_id" json:"userId,omitempty"`
	Payload  map[string]any `db:"-" json:"payload,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewEntry builds an entry stamped with the current time.
func NewEntry(action Action, entity string, entityID id.ID) *Entry {
	return &Entry{
		ID:        id.New(),
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Payload:   map[string]any{},
		CreatedAt: time.Now().UTC(),
	}
}

// With adds one payload field.
func (e *Entry) With(key string, value any) *Entry {
	e.Payload[key] = value
	return e
}

// By stamps the acting user.
func (e *Entry) By(userID id.ID) *Entry {
	e.UserID = &userID
	return e
}

// Recorder persists entries. Recording happens inside the same
// transaction as the operation it describes.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, entity string, entityID id.ID) ([]*Entry, error)
}

// NopRecorder discards entries. Used in tests and tools that do not
// carry an audit store.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, e *Entry) error { return nil }

func (NopRecorder) List(ctx context.Context, entity string, entityID id.ID) ([]*Entry, error) {
	return nil, nil
}
