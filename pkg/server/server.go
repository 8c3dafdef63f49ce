// Package server exposes the agent's public operation surface (§6) over
// HTTP+JSON, plus the supplemented health/readiness/metrics endpoints
// of SPEC_FULL.md §12. Grounded on the retrieval pack's pkg/server
// package: one handler struct per concern, http.ServeMux registration in
// a single constructor, and the writeJSONError helper from
// batch_handlers.go.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/liquity/ir-agent/pkg/config"
	"github.com/liquity/ir-agent/pkg/halting"
	"github.com/liquity/ir-agent/pkg/journal"
	"github.com/liquity/ir-agent/pkg/metrics"
	"github.com/liquity/ir-agent/pkg/recharge"
	"github.com/liquity/ir-agent/pkg/rpcpool"
	"github.com/liquity/ir-agent/pkg/scheduler"
	"github.com/liquity/ir-agent/pkg/store"
)

// Server wires every component's narrow read/write surface into HTTP
// handlers; it holds no business logic of its own beyond request
// parsing and response shaping.
type Server struct {
	store     *store.Store
	journal   *journal.Journal
	pool      *rpcpool.Pool
	scheduler *scheduler.Scheduler
	recharge  *recharge.Engine
	halt      *halting.Supervisor
	metrics   *metrics.Registry

	mux      *http.ServeMux
	logger   *log.Logger
	upgrader websocket.Upgrader
}

type Config struct {
	Store     *store.Store
	Journal   *journal.Journal
	Pool      *rpcpool.Pool
	Scheduler *scheduler.Scheduler
	Recharge  *recharge.Engine
	Halt      *halting.Supervisor
	Metrics   *metrics.Registry
	Logger    *log.Logger
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[Server] ", log.LstdFlags)
	}
	s := &Server{
		store:     cfg.Store,
		journal:   cfg.Journal,
		pool:      cfg.Pool,
		scheduler: cfg.Scheduler,
		recharge:  cfg.Recharge,
		halt:      cfg.Halt,
		metrics:   cfg.Metrics,
		mux:       http.NewServeMux(),
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/readyz", s.handleReadyz)
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.HandleFunc("/api/start", s.handleStart)
	s.mux.HandleFunc("/api/assign_keys", s.handleAssignKeys)
	s.mux.HandleFunc("/api/mint_strategy", s.handleMintStrategy)
	s.mux.HandleFunc("/api/set_batch_manager", s.handleSetBatchManager)
	s.mux.HandleFunc("/api/start_timers", s.handleStartTimers)
	s.mux.HandleFunc("/api/swap_cketh", s.handleSwapCkETH)

	s.mux.HandleFunc("/api/logs", s.handleGetLogs)
	s.mux.HandleFunc("/api/recharge_logs", s.handleGetRechargeLogs)
	s.mux.HandleFunc("/api/strategy_logs", s.handleGetStrategyLogs)
	s.mux.HandleFunc("/api/halt_status", s.handleHaltStatus)
	s.mux.HandleFunc("/api/ranked_providers", s.handleRankedProviders)

	s.mux.HandleFunc("/ws/logs", s.handleWSLogs)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports not-ready while the fleet is Halted, so an
// external load balancer or orchestrator stops routing swap_cketh and
// operator traffic to a process that has wound itself down.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.halt.IsHalted() {
		writeJSONError(w, "fleet is halted", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Count uint32 `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.scheduler.Start(req.Count); err != nil {
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleAssignKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()
	if err := s.scheduler.AssignKeys(ctx); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (s *Server) handleMintStrategy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var seed config.StrategySeed
	if err := json.NewDecoder(r.Body).Decode(&seed); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.scheduler.MintStrategy(seed); err != nil {
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "minted"})
}

func (s *Server) handleSetBatchManager(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Key     uint32 `json:"key"`
		Address string `json:"address"`
		Rate    string `json:"initial_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.scheduler.SetBatchManager(req.Key, req.Address, req.Rate); err != nil {
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "bound"})
}

func (s *Server) handleStartTimers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.scheduler.StartTimers(context.Background()); err != nil {
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "timers started"})
}

func (s *Server) handleSwapCkETH(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Recipient       string `json:"recipient"`
		AttachedCycles  uint64 `json:"attached_cycles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()
	result, err := s.recharge.SwapCkETH(ctx, req.Recipient, req.AttachedCycles)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	offset := parseOffset(r)
	writeJSON(w, http.StatusOK, s.journal.GetLogs(offset))
}

func (s *Server) handleGetRechargeLogs(w http.ResponseWriter, r *http.Request) {
	offset := parseOffset(r)
	writeJSON(w, http.StatusOK, s.journal.GetRechargeLogs(offset))
}

func (s *Server) handleGetStrategyLogs(w http.ResponseWriter, r *http.Request) {
	offset := parseOffset(r)
	key := parseKey(r)
	writeJSON(w, http.StatusOK, s.journal.GetStrategyLogs(offset, key))
}

func (s *Server) handleHaltStatus(w http.ResponseWriter, r *http.Request) {
	g, err := s.store.GetGlobal()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, g.Halt)
}

func (s *Server) handleRankedProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.RankedProviders())
}

// handleWSLogs upgrades to a websocket and streams every journal entry
// appended from connection time onward, one JSON object per message, for
// dashboards that want live tailing instead of polling /api/logs.
func (s *Server) handleWSLogs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := s.journal.Subscribe()
	defer s.journal.Unsubscribe(sub)

	// Drain client-initiated messages (pings, close frames) on their own
	// goroutine so a silent client doesn't block entry delivery.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case entry, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		}
	}
}
