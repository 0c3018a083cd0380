package snapshot

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a point-in-time compressed capture of a document's content.
// Immutable once written; old snapshots are removed only by retention
// pruning.
type Snapshot struct {
	ID               uuid.UUID
	DocToken         string
	RevisionNumber   int64 // derived from the modification epoch
	ContentHash      string
	ContentSize      int64 // bytes before compression
	CompressedSize   int64
	CompressionRatio float64 // original / compressed
	DocType          string
	ModifiedBy       string
	Compressed       []byte // gzip payload; empty in listing results
	CreatedAt        time.Time
}

// Stats aggregates stored snapshots. AverageRatio is total original over
// total compressed bytes, zero when nothing is stored.
type Stats struct {
	SnapshotCount        int     `json:"snapshot_count"`
	TotalOriginalBytes   int64   `json:"total_original_bytes"`
	TotalCompressedBytes int64   `json:"total_compressed_bytes"`
	AverageRatio         float64 `json:"average_ratio"`
}

// Store is the persistence contract for snapshots. database.Client is the
// production implementation.
type Store interface {
	InsertSnapshot(ctx context.Context, snap Snapshot) error
	// GetSnapshot returns the snapshot with payload, or nil when absent.
	GetSnapshot(ctx context.Context, docToken string, revisionNumber int64) (*Snapshot, error)
	// GetLatestSnapshot returns the highest-revision snapshot with payload,
	// or nil when the document has none.
	GetLatestSnapshot(ctx context.Context, docToken string) (*Snapshot, error)
	// ListSnapshots returns snapshot metadata (no payload), newest first.
	ListSnapshots(ctx context.Context, docToken string, limit int) ([]Snapshot, error)
	// DeleteSnapshotsBefore removes snapshots created before cutoff,
	// scoped to docToken when non-empty, and reports how many went.
	DeleteSnapshotsBefore(ctx context.Context, docToken string, cutoff time.Time) (int64, error)
	// SnapshotStats aggregates stored sizes, scoped to docToken when
	// non-empty.
	SnapshotStats(ctx context.Context, docToken string) (Stats, error)
}
