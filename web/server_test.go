package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docwatch/docsource"
	"docwatch/ledger"
	"docwatch/rules"
	"docwatch/snapshot"
	"docwatch/tracking"
)

// In-memory store implementing the ledger, snapshot and rules Store
// interfaces, mirroring database.Client's role in production.
type memStore struct {
	mu      sync.Mutex
	docs    map[string]ledger.TrackedDocument
	changes []ledger.DocumentChange
	snaps   []snapshot.Snapshot
	rules   []rules.Rule
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]ledger.TrackedDocument)}
}

func storeKey(userID, docToken string) string { return userID + "/" + docToken }

func (m *memStore) UpsertTracked(ctx context.Context, doc ledger.TrackedDocument) (ledger.TrackedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := storeKey(doc.UserID, doc.DocToken)
	if existing, ok := m.docs[k]; ok {
		existing.IsActive = true
		existing.ChatID = doc.ChatID
		m.docs[k] = existing
		return existing, nil
	}
	m.docs[k] = doc
	return doc, nil
}

func (m *memStore) GetTracked(ctx context.Context, userID, docToken string) (*ledger.TrackedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.docs[storeKey(userID, docToken)]; ok {
		return &doc, nil
	}
	return nil, nil
}

func (m *memStore) ListActiveTracked(ctx context.Context) ([]ledger.TrackedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.TrackedDocument
	for _, doc := range m.docs {
		if doc.IsActive {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *memStore) DeactivateTracked(ctx context.Context, userID, docToken string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[storeKey(userID, docToken)]
	if !ok || !doc.IsActive {
		return false, nil
	}
	doc.IsActive = false
	m.docs[storeKey(userID, docToken)] = doc
	return true, nil
}

func (m *memStore) UpdateTrackedState(ctx context.Context, userID, docToken, lastUser string, lastTime int64, notifiedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[storeKey(userID, docToken)]
	if !ok || !doc.IsActive {
		return false, nil
	}
	doc.LastKnownUser = lastUser
	doc.LastKnownTime = lastTime
	doc.LastNotificationTime = notifiedAt
	m.docs[storeKey(userID, docToken)] = doc
	return true, nil
}

func (m *memStore) InsertChange(ctx context.Context, change ledger.DocumentChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, change)
	return nil
}

func (m *memStore) ListChanges(ctx context.Context, userID, docToken string, limit int) ([]ledger.DocumentChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.DocumentChange
	for i := len(m.changes) - 1; i >= 0 && len(out) < limit; i-- {
		c := m.changes[i]
		if c.UserID == userID && c.DocToken == docToken {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) InsertSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snap)
	return nil
}

func (m *memStore) GetSnapshot(ctx context.Context, docToken string, revisionNumber int64) (*snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.snaps {
		if m.snaps[i].DocToken == docToken && m.snaps[i].RevisionNumber == revisionNumber {
			s := m.snaps[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetLatestSnapshot(ctx context.Context, docToken string) (*snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *snapshot.Snapshot
	for i := range m.snaps {
		if m.snaps[i].DocToken != docToken {
			continue
		}
		if latest == nil || m.snaps[i].RevisionNumber > latest.RevisionNumber {
			s := m.snaps[i]
			latest = &s
		}
	}
	return latest, nil
}

func (m *memStore) ListSnapshots(ctx context.Context, docToken string, limit int) ([]snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []snapshot.Snapshot
	for _, s := range m.snaps {
		if s.DocToken == docToken && len(out) < limit {
			s.Compressed = nil
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) DeleteSnapshotsBefore(ctx context.Context, docToken string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []snapshot.Snapshot
	var deleted int64
	for _, s := range m.snaps {
		if s.CreatedAt.Before(cutoff) && (docToken == "" || s.DocToken == docToken) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	m.snaps = kept
	return deleted, nil
}

func (m *memStore) SnapshotStats(ctx context.Context, docToken string) (snapshot.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats snapshot.Stats
	for _, s := range m.snaps {
		if docToken != "" && s.DocToken != docToken {
			continue
		}
		stats.SnapshotCount++
		stats.TotalOriginalBytes += s.ContentSize
		stats.TotalCompressedBytes += s.CompressedSize
	}
	if stats.TotalCompressedBytes > 0 {
		stats.AverageRatio = float64(stats.TotalOriginalBytes) / float64(stats.TotalCompressedBytes)
	}
	return stats, nil
}

func (m *memStore) InsertRule(ctx context.Context, rule rules.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
	return nil
}

func (m *memStore) UpdateRule(ctx context.Context, rule rules.Rule) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == rule.ID {
			m.rules[i] = rule
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) DeleteRule(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) GetRule(ctx context.Context, id uuid.UUID) (*rules.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			r := m.rules[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListRulesForDoc(ctx context.Context, docToken string, enabledOnly bool) ([]rules.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rules.Rule
	for _, r := range m.rules {
		if r.DocToken != docToken {
			continue
		}
		if enabledOnly && !r.Enabled {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// staticFetcher serves one metadata record for every document.
type staticFetcher struct{ meta *docsource.Metadata }

func (f staticFetcher) FetchMetadata(ctx context.Context, docToken, docType string) (*docsource.Metadata, error) {
	return f.meta, nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, chatID, title, content string) error { return nil }

func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()
	store := newMemStore()
	ledgerSvc := ledger.NewService(store)
	snapshots := snapshot.NewService(store, snapshot.Config{
		AllowedDocTypes:     []string{"doc"},
		MaxDocSizeBytes:     10 * 1024 * 1024,
		MinCompressionRatio: 1.5,
		RetentionDays:       90,
	})
	engine := rules.NewEngine(store)
	queue := rules.NewQueue(engine, 10, time.Second)
	poller := tracking.NewPoller(tracking.Config{
		PollInterval:       time.Hour,
		DebounceWindow:     5 * time.Second,
		MaxConcurrentPolls: 4,
	}, staticFetcher{&docsource.Metadata{Title: "T", LastModifiedUser: "alice", LastModifiedTime: 1}}, nopNotifier{}, ledgerSvc, nil)
	t.Cleanup(poller.Stop)

	return NewServer(":0", poller, ledgerSvc, snapshots, engine, queue), store
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestStartTracking_Validation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/docs", `{"user_id":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/docs",
		`{"user_id":"u1","doc_token":"tok1","doc_type":"doc","chat_id":"chat-1"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/docs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tok1")
}

func TestStopTracking_RequiresUserID(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodDelete, "/api/docs/tok1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/api/docs/tok1?user_id=u1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestListChanges(t *testing.T) {
	s, store := newTestServer(t)

	require.NoError(t, store.InsertChange(context.Background(), ledger.DocumentChange{
		ID:              uuid.New(),
		UserID:          "u1",
		DocToken:        "tok1",
		NewModifiedUser: "alice",
		NewModifiedTime: 1700000000,
		ChangeType:      ledger.ChangeNewDocument,
		DetectedAt:      time.Now(),
	}))

	rec := doRequest(t, s, http.MethodGet, "/api/docs/tok1/changes?user_id=u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "new_document")
}

func TestRuleCRUDOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/docs/tok1/rules",
		`{"user_id":"u1","condition":{"type":"any"},"action":{"type":"notify","target":"chat-1"},"enabled":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Invalid condition type is rejected at the API boundary.
	rec = doRequest(t, s, http.MethodPost, "/api/docs/tok1/rules",
		`{"condition":{"type":"always"},"action":{"type":"notify","target":"chat-1"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/docs/tok1/rules", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/api/rules/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/api/rules/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSnapshotContent_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/docs/tok1/snapshots/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/docs/tok1/snapshots/not-a-number", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
