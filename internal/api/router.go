package api

import (
	"context"
	"net/http"

	"github.com/ernie/heistwatch/internal/tracker"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux       *http.ServeMux
	engine    *tracker.Engine
	wsHub     *WebSocketHub
	baseCtx   context.Context
	staticDir string
}

// NewRouter creates a new HTTP router. baseCtx outlives individual
// requests and bounds feed activations triggered through the API.
func NewRouter(baseCtx context.Context, engine *tracker.Engine, staticDir string) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		engine:    engine,
		wsHub:     NewWebSocketHub(),
		baseCtx:   baseCtx,
		staticDir: staticDir,
	}

	// API routes
	r.mux.HandleFunc("GET /api/feeds", r.handleGetFeeds)
	r.mux.HandleFunc("POST /api/feeds/{feed}/activate", r.handleActivate)
	r.mux.HandleFunc("GET /api/feeds/{feed}/events", r.handleGetEvents)
	r.mux.HandleFunc("GET /api/feeds/{feed}/combos", r.handleGetCombos)
	r.mux.HandleFunc("GET /api/feeds/{feed}/stats", r.handleGetStats)
	r.mux.HandleFunc("GET /api/feeds/{feed}/connection", r.handleGetConnection)
	r.mux.HandleFunc("POST /api/feeds/{feed}/reconnect", r.handleReconnect)
	r.mux.HandleFunc("GET /api/presets", r.handleGetPresets)

	// WebSocket endpoint
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	// Static files - only serve if staticDir is configured
	if staticDir != "" {
		r.mux.HandleFunc("GET /", r.handleStatic)
	}

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// StartWebSocketHub starts broadcasting view snapshots to clients
func (r *Router) StartWebSocketHub() {
	go r.wsHub.Run()

	// Forward recomputed snapshots from the engine to the hub
	go func() {
		for update := range r.engine.Updates() {
			r.wsHub.Broadcast(update)
		}
	}()
}
