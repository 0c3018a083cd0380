package rules

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"docwatch/diff"
	"docwatch/ledger"
)

// ErrEvaluateTimeout is returned by EvaluateSync when evaluation exceeds
// the caller's deadline.
var ErrEvaluateTimeout = errors.New("synchronous rule evaluation timed out")

type queuedChange struct {
	change     ledger.DocumentChange
	diffResult *diff.Result
	enqueuedAt time.Time
}

// Queue decouples rule evaluation (especially slow webhook actions) from
// the polling hot path. Enqueue is non-blocking; a background ticker
// drains up to batchSize items per tick. Overlapping ticks are skipped
// via a busy flag rather than piling up.
type Queue struct {
	engine     *Engine
	batchSize  int
	drainEvery time.Duration

	mu       sync.Mutex
	items    []queuedChange
	draining bool
	running  bool
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewQueue(engine *Engine, batchSize int, drainEvery time.Duration) *Queue {
	if batchSize < 1 {
		batchSize = 1
	}
	if drainEvery <= 0 {
		drainEvery = time.Second
	}
	return &Queue{
		engine:     engine,
		batchSize:  batchSize,
		drainEvery: drainEvery,
	}
}

// Enqueue appends a change for asynchronous evaluation. It never blocks
// and never fails; the caller's tick continues immediately.
func (q *Queue) Enqueue(change ledger.DocumentChange, diffResult *diff.Result) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, queuedChange{
		change:     change,
		diffResult: diffResult,
		enqueuedAt: time.Now(),
	})
}

// Len reports the number of pending changes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Start launches the drain ticker.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.done = make(chan struct{})
	q.wg.Add(1)
	go q.run(q.done)
	log.Printf("rules: queue started, draining every %s", q.drainEvery)
}

// Stop halts the ticker and waits for an in-progress drain to finish.
// Pending items stay queued.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.done)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) run(done chan struct{}) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.drainEvery)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			q.DrainOnce(context.Background())
		}
	}
}

// DrainOnce evaluates up to batchSize pending changes. If a drain is
// already in progress the call returns immediately: the busy flag, not
// queue length, provides the mutual exclusion, so a tick landing during a
// slow drain is skipped rather than queued twice. Exported so tests can
// drain deterministically. Returns the number of items processed.
func (q *Queue) DrainOnce(ctx context.Context) int {
	q.mu.Lock()
	if q.draining || len(q.items) == 0 {
		q.mu.Unlock()
		return 0
	}
	q.draining = true

	n := q.batchSize
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]queuedChange, n)
	copy(batch, q.items[:n])
	q.items = q.items[n:]
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	for _, item := range batch {
		results, err := q.engine.EvaluateChange(ctx, item.change, item.diffResult)
		if err != nil {
			// Per-item isolation: log and keep draining the rest.
			log.Printf("rules: queued evaluation failed for change %s: %v", item.change.ID, err)
			continue
		}
		for _, r := range results {
			if r.Error != "" {
				log.Printf("rules: rule %s failed on change %s: %s", r.RuleID, item.change.ID, r.Error)
			}
		}
	}
	return len(batch)
}

// EvaluateSync evaluates a change immediately, racing the evaluation
// against timeout. Meant for tests and manual "evaluate now" calls, not
// the steady-state polling path.
func (q *Queue) EvaluateSync(ctx context.Context, change ledger.DocumentChange, diffResult *diff.Result, timeout time.Duration) ([]ExecutionResult, error) {
	type outcome struct {
		results []ExecutionResult
		err     error
	}
	done := make(chan outcome, 1)

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	go func() {
		results, err := q.engine.EvaluateChange(evalCtx, change, diffResult)
		done <- outcome{results, err}
	}()

	select {
	case o := <-done:
		return o.results, o.err
	case <-evalCtx.Done():
		if errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrEvaluateTimeout
		}
		return nil, evalCtx.Err()
	}
}
