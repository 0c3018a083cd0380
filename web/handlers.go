package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"docwatch/ledger"
	"docwatch/rules"
)

// Request/response types for JSON serialization

type startTrackingRequest struct {
	UserID   string `json:"user_id"`
	DocToken string `json:"doc_token"`
	DocType  string `json:"doc_type"`
	ChatID   string `json:"chat_id"`
}

type trackedDocResponse struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	DocToken      string `json:"doc_token"`
	DocType       string `json:"doc_type"`
	ChatID        string `json:"chat_id"`
	LastKnownUser string `json:"last_known_user,omitempty"`
	LastKnownTime int64  `json:"last_known_time,omitempty"`
}

type changeResponse struct {
	ID                   string `json:"id"`
	PreviousModifiedUser string `json:"previous_modified_user,omitempty"`
	PreviousModifiedTime int64  `json:"previous_modified_time,omitempty"`
	NewModifiedUser      string `json:"new_modified_user"`
	NewModifiedTime      int64  `json:"new_modified_time"`
	ChangeType           string `json:"change_type"`
	Debounced            bool   `json:"debounced"`
	NotificationSent     bool   `json:"notification_sent"`
	DetectedAt           string `json:"detected_at"`
}

type evaluateRequest struct {
	Change    ledger.DocumentChange `json:"change"`
	TimeoutMs int64                 `json:"timeout_ms"`
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.poller.HealthCheck())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.poller.Metrics())
}

func (s *Server) handleListDocs(w http.ResponseWriter, r *http.Request) {
	docs, err := s.ledger.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tracked documents")
		return
	}

	out := make([]trackedDocResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, trackedDocResponse{
			ID:            doc.ID.String(),
			UserID:        doc.UserID,
			DocToken:      doc.DocToken,
			DocType:       doc.DocType,
			ChatID:        doc.ChatID,
			LastKnownUser: doc.LastKnownUser,
			LastKnownTime: doc.LastKnownTime,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStartTracking(w http.ResponseWriter, r *http.Request) {
	var req startTrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.DocToken == "" || req.DocType == "" || req.ChatID == "" {
		writeError(w, http.StatusBadRequest, "user_id, doc_token, doc_type and chat_id are required")
		return
	}

	doc, err := s.poller.StartTracking(r.Context(), req.UserID, req.DocToken, req.DocType, req.ChatID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start tracking")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": doc.ID.String()})
}

func (s *Server) handleStopTracking(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := s.poller.StopTracking(r.Context(), userID, r.PathValue("token")); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stop tracking")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListChanges(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	changes, err := s.ledger.ListChanges(r.Context(), userID, r.PathValue("token"), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list changes")
		return
	}

	out := make([]changeResponse, 0, len(changes))
	for _, ch := range changes {
		resp := changeResponse{
			ID:               ch.ID.String(),
			NewModifiedUser:  ch.NewModifiedUser,
			NewModifiedTime:  ch.NewModifiedTime,
			ChangeType:       string(ch.ChangeType),
			Debounced:        ch.Debounced,
			NotificationSent: ch.NotificationSent,
			DetectedAt:       ch.DetectedAt.Format(time.RFC3339),
		}
		if ch.PreviousModifiedUser != nil {
			resp.PreviousModifiedUser = *ch.PreviousModifiedUser
		}
		if ch.PreviousModifiedTime != nil {
			resp.PreviousModifiedTime = *ch.PreviousModifiedTime
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.snapshots.History(r.Context(), r.PathValue("token"), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleGetSnapshotContent(w http.ResponseWriter, r *http.Request) {
	revision, err := strconv.ParseInt(r.PathValue("revision"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid revision number")
		return
	}

	content, found, err := s.snapshots.GetContent(r.Context(), r.PathValue("token"), revision)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"revision_number": revision,
		"content":         content,
	})
}

func (s *Server) handleSnapshotStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.snapshots.Stats(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to aggregate snapshot stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePruneSnapshots(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.snapshots.PruneOld(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to prune snapshots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rulesForDoc, err := s.engine.GetRulesForDoc(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	writeJSON(w, http.StatusOK, rulesForDoc)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule.DocToken = r.PathValue("token")

	created, err := s.engine.CreateRule(r.Context(), rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule.ID = id

	if err := s.engine.UpdateRule(r.Context(), rule); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	if err := s.engine.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvaluateNow runs a synchronous evaluation for manual testing of
// rule setups; the steady-state path goes through the async queue.
func (s *Server) handleEvaluateNow(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Change.DocToken = r.PathValue("token")

	timeout := 5 * time.Second
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	results, err := s.queue.EvaluateSync(r.Context(), req.Change, nil, timeout)
	if err != nil {
		if errors.Is(err, rules.ErrEvaluateTimeout) {
			writeError(w, http.StatusGatewayTimeout, "evaluation timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}
	writeJSON(w, http.StatusOK, results)
}
