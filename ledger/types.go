package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChangeType classifies a detected document transition.
type ChangeType string

const (
	// ChangeTimeUpdated means the modification timestamp moved but the
	// modifying user stayed the same.
	ChangeTimeUpdated ChangeType = "time_updated"
	// ChangeUserChanged means a different user made the latest edit.
	ChangeUserChanged ChangeType = "user_changed"
	// ChangeNewDocument marks the first-ever observation of a document.
	ChangeNewDocument ChangeType = "new_document"
)

// TrackedDocument is one row of the watch registry. At most one active row
// exists per (UserID, DocToken); unwatching deactivates rather than deletes
// so the audit trail keeps a valid anchor.
type TrackedDocument struct {
	ID                   uuid.UUID
	UserID               string
	DocToken             string
	DocType              string
	ChatID               string
	LastKnownUser        string
	LastKnownTime        int64 // epoch seconds
	LastNotificationTime time.Time
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// DocumentChange is one immutable row of the append-only audit trail.
// Every detected transition is recorded, debounced ones included.
type DocumentChange struct {
	ID                   uuid.UUID
	UserID               string
	DocToken             string
	PreviousModifiedUser *string
	PreviousModifiedTime *int64
	NewModifiedUser      string
	NewModifiedTime      int64
	ChangeType           ChangeType
	Debounced            bool
	NotificationSent     bool
	DetectedAt           time.Time
}

// Store is the narrow persistence contract the ledger service needs.
// database.Client is the production implementation; tests use an
// in-memory fake.
type Store interface {
	UpsertTracked(ctx context.Context, doc TrackedDocument) (TrackedDocument, error)
	GetTracked(ctx context.Context, userID, docToken string) (*TrackedDocument, error)
	ListActiveTracked(ctx context.Context) ([]TrackedDocument, error)
	DeactivateTracked(ctx context.Context, userID, docToken string) (bool, error)
	// UpdateTrackedState persists post-change observed state. It reports
	// false (and no error) when no active row exists, which callers treat
	// as a tolerated race with unwatch.
	UpdateTrackedState(ctx context.Context, userID, docToken, lastUser string, lastTime int64, notifiedAt time.Time) (bool, error)
	InsertChange(ctx context.Context, change DocumentChange) error
	ListChanges(ctx context.Context, userID, docToken string, limit int) ([]DocumentChange, error)
}
