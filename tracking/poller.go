package tracking

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docwatch/docsource"
	"docwatch/ledger"
)

// Config carries the poller's tunables.
type Config struct {
	PollInterval       time.Duration
	DebounceWindow     time.Duration
	MaxConcurrentPolls int
}

// Reactor receives every recorded, non-debounced change after the
// synchronous part of the per-document pipeline (notify + persist) has
// completed. Implementations run snapshotting, diffing and rule dispatch.
type Reactor interface {
	React(ctx context.Context, doc ledger.TrackedDocument, change ledger.DocumentChange)
}

// Poller owns the in-memory set of tracked documents and drives the
// fetch -> detect -> notify pipeline on a fixed interval. The global timer
// exists only while the tracked set is non-empty: adding the first
// document starts it, removing the last stops it.
type Poller struct {
	cfg      Config
	fetcher  docsource.MetadataFetcher
	notifier docsource.Notifier
	ledger   *ledger.Service
	reactor  Reactor

	metrics *metrics

	mu      sync.Mutex
	docs    map[string]*ledger.TrackedDocument
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

func NewPoller(cfg Config, fetcher docsource.MetadataFetcher, notifier docsource.Notifier, ledgerSvc *ledger.Service, reactor Reactor) *Poller {
	if cfg.MaxConcurrentPolls < 1 {
		cfg.MaxConcurrentPolls = 1
	}
	return &Poller{
		cfg:      cfg,
		fetcher:  fetcher,
		notifier: notifier,
		ledger:   ledgerSvc,
		reactor:  reactor,
		metrics:  newMetrics(),
		docs:     make(map[string]*ledger.TrackedDocument),
	}
}

func trackKey(userID, docToken string) string {
	return userID + "/" + docToken
}

// Restore loads all active registry rows into the in-memory set, starting
// the poll timer if any exist. Called once at process bootstrap.
func (p *Poller) Restore(ctx context.Context) error {
	docs, err := p.ledger.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("restore tracked documents: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range docs {
		doc := docs[i]
		p.docs[trackKey(doc.UserID, doc.DocToken)] = &doc
	}
	if len(p.docs) > 0 {
		p.startTimerLocked()
	}
	log.Printf("poller: restored %d tracked documents", len(p.docs))
	return nil
}

// StartTracking registers a document for polling. The registry row is
// activated (or reactivated) first so a crash between the two steps loses
// nothing, then the document joins the in-memory set.
func (p *Poller) StartTracking(ctx context.Context, userID, docToken, docType, chatID string) (ledger.TrackedDocument, error) {
	doc, err := p.ledger.Activate(ctx, userID, docToken, docType, chatID)
	if err != nil {
		return ledger.TrackedDocument{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs[trackKey(userID, docToken)] = &doc
	if !p.running {
		p.startTimerLocked()
	}
	log.Printf("poller: tracking %s (%s) for user %s", docToken, docType, userID)
	return doc, nil
}

// StopTracking removes a document from polling and soft-deactivates its
// registry row. An in-flight poll for the document may still complete;
// its state writes become no-ops.
func (p *Poller) StopTracking(ctx context.Context, userID, docToken string) error {
	if err := p.ledger.Deactivate(ctx, userID, docToken); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.docs, trackKey(userID, docToken))
	if len(p.docs) == 0 && p.running {
		p.stopTimerLocked()
	}
	log.Printf("poller: stopped tracking %s for user %s", docToken, userID)
	return nil
}

// Stop halts the poll timer regardless of the tracked set and waits for
// the run loop to exit. Tracked state is untouched.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.running {
		p.stopTimerLocked()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) startTimerLocked() {
	p.running = true
	p.done = make(chan struct{})
	p.wg.Add(1)
	go p.run(p.done)
	log.Printf("poller: timer started, interval %s", p.cfg.PollInterval)
}

func (p *Poller) stopTimerLocked() {
	p.running = false
	close(p.done)
	log.Printf("poller: timer stopped")
}

func (p *Poller) run(done chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.Tick(context.Background())
		}
	}
}

// Tick polls every tracked document once. Fan-out is concurrent but
// bounded by MaxConcurrentPolls, and failure-isolating: a document whose
// fetch fails is recorded as a failed poll and never aborts its siblings.
// Exported so tests and manual triggers can drive the poller without the
// timer.
func (p *Poller) Tick(ctx context.Context) {
	p.mu.Lock()
	batch := make([]ledger.TrackedDocument, 0, len(p.docs))
	for _, doc := range p.docs {
		batch = append(batch, *doc)
	}
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrentPolls)
	for _, doc := range batch {
		doc := doc
		g.Go(func() error {
			p.pollDocument(gctx, doc)
			return nil
		})
	}
	// Goroutines never return errors; Wait only joins them.
	_ = g.Wait()
}

// pollDocument runs the strictly sequential per-document pipeline:
// fetch -> detect -> notify -> persist -> react.
func (p *Poller) pollDocument(ctx context.Context, doc ledger.TrackedDocument) {
	start := time.Now()

	meta, err := p.fetcher.FetchMetadata(ctx, doc.DocToken, doc.DocType)
	if err != nil {
		p.metrics.recordFailure(time.Since(start))
		log.Printf("poller: metadata fetch failed for %s: %v", doc.DocToken, err)
		return
	}
	if meta == nil {
		p.metrics.recordFailure(time.Since(start))
		log.Printf("poller: document %s not found on platform", doc.DocToken)
		return
	}
	p.metrics.recordSuccess(time.Since(start))

	detection := DetectChange(*meta, &doc, time.Now(), p.cfg.DebounceWindow)
	if !detection.HasChanged {
		return
	}

	change := ledger.DocumentChange{
		UserID:               doc.UserID,
		DocToken:             doc.DocToken,
		PreviousModifiedUser: detection.PreviousUser,
		PreviousModifiedTime: detection.PreviousTime,
		NewModifiedUser:      detection.CurrentUser,
		NewModifiedTime:      detection.CurrentTime,
		ChangeType:           detection.ChangeType,
		Debounced:            detection.Debounced,
	}

	if detection.Debounced {
		// Suppressed changes still land in the audit trail, but tracked
		// state stays put: the debounce window extends from the last
		// real notification, not the last detection.
		if _, err := p.ledger.RecordChange(ctx, change); err != nil {
			log.Printf("poller: failed to record debounced change for %s: %v", doc.DocToken, err)
		}
		log.Printf("poller: change on %s debounced (%s)", doc.DocToken, detection.Reason)
		return
	}

	if err := p.notifier.Notify(ctx, doc.ChatID, meta.Title, describeChange(detection)); err != nil {
		// Leaving state untouched makes the next tick re-detect and retry.
		log.Printf("poller: notification failed for %s: %v", doc.DocToken, err)
		if _, recErr := p.ledger.RecordChange(ctx, change); recErr != nil {
			log.Printf("poller: failed to record unnotified change for %s: %v", doc.DocToken, recErr)
		}
		return
	}
	change.NotificationSent = true
	p.metrics.recordNotification()

	recorded, err := p.ledger.RecordChange(ctx, change)
	if err != nil {
		log.Printf("poller: failed to record change for %s: %v", doc.DocToken, err)
		recorded = change
	}

	notifiedAt := time.Now()
	if err := p.ledger.UpdateObservedState(ctx, doc.UserID, doc.DocToken, detection.CurrentUser, detection.CurrentTime, notifiedAt); err != nil {
		log.Printf("poller: failed to persist observed state for %s: %v", doc.DocToken, err)
	}
	p.updateLocalState(doc.UserID, doc.DocToken, detection, notifiedAt)

	if p.reactor != nil {
		p.reactor.React(ctx, doc, recorded)
	}
}

// updateLocalState refreshes the in-memory copy. If the document was
// unwatched while its poll was in flight the update is a no-op.
func (p *Poller) updateLocalState(userID, docToken string, detection Detection, notifiedAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, ok := p.docs[trackKey(userID, docToken)]
	if !ok {
		return
	}
	doc.LastKnownUser = detection.CurrentUser
	doc.LastKnownTime = detection.CurrentTime
	doc.LastNotificationTime = notifiedAt
}

func describeChange(d Detection) string {
	switch d.ChangeType {
	case ledger.ChangeNewDocument:
		return fmt.Sprintf("Now watching this document. Last modified by %s.", d.CurrentUser)
	case ledger.ChangeUserChanged:
		prev := ""
		if d.PreviousUser != nil {
			prev = *d.PreviousUser
		}
		return fmt.Sprintf("Document modified by %s (previously %s).", d.CurrentUser, prev)
	default:
		return fmt.Sprintf("Document modified by %s.", d.CurrentUser)
	}
}

// DocsTracked returns the size of the in-memory tracked set.
func (p *Poller) DocsTracked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.docs)
}

// Metrics returns a point-in-time view of poll activity.
func (p *Poller) Metrics() PollingMetrics {
	return p.metrics.snapshot(p.DocsTracked())
}

// HealthCheck classifies recent polling behavior.
func (p *Poller) HealthCheck() Health {
	return p.metrics.health(p.DocsTracked())
}
