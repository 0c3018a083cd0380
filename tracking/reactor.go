package tracking

import (
	"context"
	"errors"
	"log"
	"time"

	"docwatch/diff"
	"docwatch/docsource"
	"docwatch/ledger"
	"docwatch/rules"
	"docwatch/snapshot"
)

// ChangeReactor is the production Reactor: after a change is notified and
// recorded it captures a content snapshot, diffs it against the previous
// capture, and hands the change (with diff context) to the rule queue.
// Every step is best effort; the notification already happened and
// nothing here can retract it.
type ChangeReactor struct {
	content     docsource.ContentFetcher
	snapshots   *snapshot.Service
	queue       *rules.Queue
	diffTimeout time.Duration
}

func NewChangeReactor(content docsource.ContentFetcher, snapshots *snapshot.Service, queue *rules.Queue, diffTimeout time.Duration) *ChangeReactor {
	return &ChangeReactor{
		content:     content,
		snapshots:   snapshots,
		queue:       queue,
		diffTimeout: diffTimeout,
	}
}

func (r *ChangeReactor) React(ctx context.Context, doc ledger.TrackedDocument, change ledger.DocumentChange) {
	newContent, err := r.content.FetchContent(ctx, doc.DocToken, doc.DocType)
	if err != nil {
		log.Printf("reactor: content fetch failed for %s, rules run without diff context: %v", doc.DocToken, err)
		r.queue.Enqueue(change, nil)
		return
	}

	// Read the previous capture before writing the new one.
	prevContent, prevRevision, hasPrev, err := r.snapshots.GetLatestContent(ctx, doc.DocToken)
	if err != nil {
		log.Printf("reactor: loading previous snapshot for %s failed: %v", doc.DocToken, err)
		hasPrev = false
	}

	if _, err := r.snapshots.CreateSnapshot(ctx, doc.DocToken, newContent, snapshot.RevisionMeta{
		RevisionNumber: change.NewModifiedTime,
		ModifiedBy:     change.NewModifiedUser,
		DocType:        doc.DocType,
	}); err != nil {
		log.Printf("reactor: snapshot failed for %s: %v", doc.DocToken, err)
	}

	var diffResult *diff.Result
	if hasPrev {
		result, err := diff.ComputeWithTimeout(ctx, prevContent, newContent, prevRevision, change.NewModifiedTime, r.diffTimeout)
		switch {
		case errors.Is(err, diff.ErrTimeout):
			log.Printf("reactor: diff for %s timed out after %s", doc.DocToken, r.diffTimeout)
		case err != nil:
			log.Printf("reactor: diff for %s failed: %v", doc.DocToken, err)
		default:
			diffResult = &result
			log.Printf("reactor: diff for %s: %s", doc.DocToken, result.Summary.Description)
		}
	}

	r.queue.Enqueue(change, diffResult)
}
