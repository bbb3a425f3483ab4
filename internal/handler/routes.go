package handler

import (
	"net/http"

	"github.com/freeeve/banditlab/internal/auth"
)

// Routes registers the API on mux with full paths so that r.Pattern carries
// the route template for logging and metrics.
func Routes(mux *http.ServeMux, runs *RunHandler, ws *WSHandler, jwtMgr *auth.JWTManager) {
	authMw := auth.Middleware(jwtMgr)
	read := func(h http.HandlerFunc) http.Handler {
		return authMw(auth.RequireScope(auth.ScopeRead)(h))
	}
	write := func(h http.HandlerFunc) http.Handler {
		return authMw(auth.RequireScope(auth.ScopeRun)(h))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("POST /api/v1/runs", write(runs.CreateRun))
	mux.Handle("GET /api/v1/runs", read(runs.ListRuns))
	mux.Handle("GET /api/v1/runs/{id}", read(runs.GetRun))
	mux.Handle("GET /api/v1/runs/{id}/replications/{rep}/trials", read(runs.ListTrials))
	mux.Handle("GET /api/v1/leaderboard/{experiment}", read(runs.Leaderboard))
	mux.Handle("GET /api/v1/strategies", read(runs.ListStrategies))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", ws.ServeWS)
}
