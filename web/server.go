package web

import (
	"log"
	"net/http"

	"docwatch/ledger"
	"docwatch/rules"
	"docwatch/snapshot"
	"docwatch/tracking"
)

// Server exposes the tracking pipeline over HTTP: health and metrics,
// watch registry mutation, change/snapshot history, and rule CRUD.
type Server struct {
	poller    *tracking.Poller
	ledger    *ledger.Service
	snapshots *snapshot.Service
	engine    *rules.Engine
	queue     *rules.Queue
	mux       *http.ServeMux
	addr      string
}

func NewServer(addr string, poller *tracking.Poller, ledgerSvc *ledger.Service, snapshots *snapshot.Service, engine *rules.Engine, queue *rules.Queue) *Server {
	s := &Server{
		poller:    poller,
		ledger:    ledgerSvc,
		snapshots: snapshots,
		engine:    engine,
		queue:     queue,
		mux:       http.NewServeMux(),
		addr:      addr,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/metrics", s.handleMetrics)

	s.mux.HandleFunc("GET /api/docs", s.handleListDocs)
	s.mux.HandleFunc("POST /api/docs", s.handleStartTracking)
	s.mux.HandleFunc("DELETE /api/docs/{token}", s.handleStopTracking)
	s.mux.HandleFunc("GET /api/docs/{token}/changes", s.handleListChanges)

	s.mux.HandleFunc("GET /api/docs/{token}/snapshots", s.handleListSnapshots)
	s.mux.HandleFunc("GET /api/docs/{token}/snapshots/stats", s.handleSnapshotStats)
	s.mux.HandleFunc("GET /api/docs/{token}/snapshots/{revision}", s.handleGetSnapshotContent)
	s.mux.HandleFunc("POST /api/docs/{token}/snapshots/prune", s.handlePruneSnapshots)

	s.mux.HandleFunc("GET /api/docs/{token}/rules", s.handleListRules)
	s.mux.HandleFunc("POST /api/docs/{token}/rules", s.handleCreateRule)
	s.mux.HandleFunc("PUT /api/rules/{id}", s.handleUpdateRule)
	s.mux.HandleFunc("DELETE /api/rules/{id}", s.handleDeleteRule)
	s.mux.HandleFunc("POST /api/docs/{token}/evaluate", s.handleEvaluateNow)
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	log.Printf("web: listening on %s", s.addr)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler returns the HTTP handler for use with custom servers and tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}
