// Package snapshot stores compressed document content revisions behind
// numeric eligibility gates: oversized or poorly compressible content is
// skipped silently rather than rejected with an error.
package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// Config carries the eligibility thresholds and retention policy.
type Config struct {
	AllowedDocTypes     []string
	MaxDocSizeBytes     int64
	MinCompressionRatio float64
	RetentionDays       int
}

// RevisionMeta describes the revision being captured.
type RevisionMeta struct {
	RevisionNumber int64
	ModifiedBy     string
	DocType        string
}

// Service creates, retrieves and prunes content snapshots.
type Service struct {
	store   Store
	cfg     Config
	allowed map[string]bool
}

func NewService(store Store, cfg Config) *Service {
	allowed := make(map[string]bool, len(cfg.AllowedDocTypes))
	for _, t := range cfg.AllowedDocTypes {
		allowed[t] = true
	}
	return &Service{store: store, cfg: cfg, allowed: allowed}
}

// CreateSnapshot compresses and persists one content revision. Ineligible
// content (disallowed doc type, oversized, or compressing below the
// minimum ratio) returns (nil, nil): skipping is policy, not failure.
func (s *Service) CreateSnapshot(ctx context.Context, docToken, content string, meta RevisionMeta) (*Snapshot, error) {
	if !s.allowed[meta.DocType] {
		log.Printf("snapshot: skipping %s, doc type %q not in allow-list", docToken, meta.DocType)
		return nil, nil
	}

	raw := []byte(content)
	originalSize := int64(len(raw))
	if originalSize > s.cfg.MaxDocSizeBytes {
		log.Printf("snapshot: skipping %s, content %d bytes exceeds limit %d", docToken, originalSize, s.cfg.MaxDocSizeBytes)
		return nil, nil
	}

	hash := sha256.Sum256(raw)

	compressed, err := compress(raw)
	if err != nil {
		return nil, fmt.Errorf("compress content for %s: %w", docToken, err)
	}

	compressedSize := int64(len(compressed))
	ratio := 0.0
	if compressedSize > 0 {
		ratio = float64(originalSize) / float64(compressedSize)
	}
	if ratio < s.cfg.MinCompressionRatio {
		log.Printf("snapshot: skipping %s, compression ratio %.2f below minimum %.2f", docToken, ratio, s.cfg.MinCompressionRatio)
		return nil, nil
	}

	snap := Snapshot{
		ID:               uuid.New(),
		DocToken:         docToken,
		RevisionNumber:   meta.RevisionNumber,
		ContentHash:      hex.EncodeToString(hash[:]),
		ContentSize:      originalSize,
		CompressedSize:   compressedSize,
		CompressionRatio: ratio,
		DocType:          meta.DocType,
		ModifiedBy:       meta.ModifiedBy,
		Compressed:       compressed,
		CreatedAt:        time.Now(),
	}

	if err := s.store.InsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot for %s: %w", docToken, err)
	}

	log.Printf("snapshot: stored %s revision %d (%d -> %d bytes, ratio %.2f)",
		docToken, snap.RevisionNumber, originalSize, compressedSize, ratio)
	return &snap, nil
}

// GetContent returns the decompressed content of one stored revision, or
// "" with found=false when the revision was never captured.
func (s *Service) GetContent(ctx context.Context, docToken string, revisionNumber int64) (string, bool, error) {
	snap, err := s.store.GetSnapshot(ctx, docToken, revisionNumber)
	if err != nil {
		return "", false, fmt.Errorf("load snapshot %s@%d: %w", docToken, revisionNumber, err)
	}
	if snap == nil {
		return "", false, nil
	}
	content, err := decompress(snap.Compressed)
	if err != nil {
		return "", false, fmt.Errorf("decompress snapshot %s@%d: %w", docToken, revisionNumber, err)
	}
	return content, true, nil
}

// GetLatestContent returns the most recent captured content and its
// revision number, or found=false when the document has no snapshots.
func (s *Service) GetLatestContent(ctx context.Context, docToken string) (string, int64, bool, error) {
	snap, err := s.store.GetLatestSnapshot(ctx, docToken)
	if err != nil {
		return "", 0, false, fmt.Errorf("load latest snapshot for %s: %w", docToken, err)
	}
	if snap == nil {
		return "", 0, false, nil
	}
	content, err := decompress(snap.Compressed)
	if err != nil {
		return "", 0, false, fmt.Errorf("decompress latest snapshot for %s: %w", docToken, err)
	}
	return content, snap.RevisionNumber, true, nil
}

// History returns snapshot metadata for a document, newest first.
func (s *Service) History(ctx context.Context, docToken string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	snaps, err := s.store.ListSnapshots(ctx, docToken, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", docToken, err)
	}
	return snaps, nil
}

// PruneOld deletes snapshots older than the retention window, across all
// documents or scoped to docToken when non-empty.
func (s *Service) PruneOld(ctx context.Context, docToken string) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	deleted, err := s.store.DeleteSnapshotsBefore(ctx, docToken, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	if deleted > 0 {
		log.Printf("snapshot: pruned %d snapshots older than %s", deleted, cutoff.Format("2006-01-02"))
	}
	return deleted, nil
}

// Stats aggregates stored snapshot sizes, optionally scoped to one document.
func (s *Service) Stats(ctx context.Context, docToken string) (Stats, error) {
	stats, err := s.store.SnapshotStats(ctx, docToken)
	if err != nil {
		return Stats{}, fmt.Errorf("snapshot stats: %w", err)
	}
	return stats, nil
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(payload []byte) (string, error) {
	r, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
