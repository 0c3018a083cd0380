package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Service owns the tracked-document registry and the change audit trail.
// It layers the registry invariants (single active row per pair, soft
// deactivation, post-unwatch writes as no-ops) over a Store.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Activate registers a document for watching. If an inactive row already
// exists for (userID, docToken) it is reactivated in place, preserving
// audit continuity; a fresh watch starts with empty observed state.
func (s *Service) Activate(ctx context.Context, userID, docToken, docType, chatID string) (TrackedDocument, error) {
	doc := TrackedDocument{
		ID:       uuid.New(),
		UserID:   userID,
		DocToken: docToken,
		DocType:  docType,
		ChatID:   chatID,
		IsActive: true,
	}

	saved, err := s.store.UpsertTracked(ctx, doc)
	if err != nil {
		return TrackedDocument{}, fmt.Errorf("activate tracked document %s: %w", docToken, err)
	}
	return saved, nil
}

// Deactivate soft-deletes the registry row. Rows are never hard-deleted;
// the audit trail references them. Deactivating an unknown or already
// inactive document is not an error.
func (s *Service) Deactivate(ctx context.Context, userID, docToken string) error {
	updated, err := s.store.DeactivateTracked(ctx, userID, docToken)
	if err != nil {
		return fmt.Errorf("deactivate tracked document %s: %w", docToken, err)
	}
	if !updated {
		log.Printf("ledger: deactivate %s for user %s matched no active row", docToken, userID)
	}
	return nil
}

// GetTracked returns the registry row for (userID, docToken), active or
// not, or nil when the pair has never been watched.
func (s *Service) GetTracked(ctx context.Context, userID, docToken string) (*TrackedDocument, error) {
	doc, err := s.store.GetTracked(ctx, userID, docToken)
	if err != nil {
		return nil, fmt.Errorf("load tracked document %s: %w", docToken, err)
	}
	return doc, nil
}

// ListActive returns every active registry row across all users. The
// poller calls this once at startup to rebuild its in-memory set.
func (s *Service) ListActive(ctx context.Context) ([]TrackedDocument, error) {
	docs, err := s.store.ListActiveTracked(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tracked documents: %w", err)
	}
	return docs, nil
}

// RecordChange appends one immutable row to the audit trail and returns
// it with its generated ID and detection timestamp filled in.
func (s *Service) RecordChange(ctx context.Context, change DocumentChange) (DocumentChange, error) {
	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}
	if change.DetectedAt.IsZero() {
		change.DetectedAt = time.Now()
	}

	if err := s.store.InsertChange(ctx, change); err != nil {
		return DocumentChange{}, fmt.Errorf("record change for %s: %w", change.DocToken, err)
	}
	return change, nil
}

// UpdateObservedState persists the post-notification observed state for a
// document. When the document was unwatched while its poll was in flight,
// the write is skipped and logged rather than surfaced as an error.
func (s *Service) UpdateObservedState(ctx context.Context, userID, docToken, lastUser string, lastTime int64, notifiedAt time.Time) error {
	updated, err := s.store.UpdateTrackedState(ctx, userID, docToken, lastUser, lastTime, notifiedAt)
	if err != nil {
		return fmt.Errorf("update observed state for %s: %w", docToken, err)
	}
	if !updated {
		log.Printf("ledger: observed-state write for %s skipped, document no longer tracked", docToken)
	}
	return nil
}

// ListChanges returns the most recent audit rows for a document, newest
// first, capped at limit.
func (s *Service) ListChanges(ctx context.Context, userID, docToken string, limit int) ([]DocumentChange, error) {
	if limit <= 0 {
		limit = 50
	}
	changes, err := s.store.ListChanges(ctx, userID, docToken, limit)
	if err != nil {
		return nil, fmt.Errorf("list changes for %s: %w", docToken, err)
	}
	return changes, nil
}
