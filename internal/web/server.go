package web

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/streamlp/lpm/internal/logger"
	"github.com/streamlp/lpm/internal/lpm"
	"github.com/streamlp/lpm/internal/state"
	"github.com/streamlp/lpm/internal/utils"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the engine's position book and cycle history over HTTP.
type WebServer struct {
	router  *mux.Router
	port    string
	engine  *lpm.Engine
	withDB  bool
	started time.Time
}

// NewWebServer creates a new web server instance. withDB enables the
// endpoints backed by the receipts database.
func NewWebServer(port string, engine *lpm.Engine, withDB bool) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		engine:  engine,
		withDB:  withDB,
		started: time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/deposits", ws.handleGetDeposits).Methods("GET")
	api.HandleFunc("/pending", ws.handleGetPending).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if ws.withDB {
		if err := state.TestDBConnection(); err != nil {
			dbHealthy = false
		}
	}

	status := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		status = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "lpm-position-maintainer",
			"version": "1.0.0",
		},
		"engine_status": map[string]interface{}{
			"deposits":         ws.engine.GetNumDeposits(),
			"pending_orders":   len(ws.engine.PendingPairs()),
			"database_enabled": ws.withDB,
			"database_healthy": dbHealthy,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetDeposits returns every registered deposit with its current
// principal where the position is minted.
func (ws *WebServer) handleGetDeposits(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	deposits := ws.engine.Deposits()
	items := make([]map[string]interface{}, 0, len(deposits))
	for _, d := range deposits {
		item := map[string]interface{}{
			"deposit":     d,
			"provisioned": d.Provisioned(),
		}
		if d.Provisioned() {
			amounts, err := ws.engine.GetDepositAmounts(ctx, d.Pair.Token0, d.Pair.Token1)
			if err != nil {
				webLogger.Warn().Err(err).Stringer("pair", d.Pair).Msg("Failed to read deposit amounts")
			} else {
				item["amounts"] = amounts
				item["amount0_display"] = utils.FormatAmount(amounts.Amount0, utils.DefaultDecimals)
				item["amount1_display"] = utils.FormatAmount(amounts.Amount1, utils.DefaultDecimals)
			}
		}
		items = append(items, item)
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"deposits": items,
		"count":    len(items),
	})
}

// handleGetPending returns pairs still awaiting provisioning
func (ws *WebServer) handleGetPending(w http.ResponseWriter, r *http.Request) {
	pending := ws.engine.PendingPairs()
	pairs := make([]string, 0, len(pending))
	for _, p := range pending {
		pairs = append(pairs, p.String())
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pending": pairs,
		"count":   len(pairs),
	})
}

// handleGetCycles returns recent maintenance receipts
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	if !ws.withDB {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "Cycle history requires the receipts database")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	receipts, err := state.LoadRecentReceipts(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to load recent receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"cycles": receipts,
		"count":  len(receipts),
		"limit":  limit,
	})
}

// handleGetLatestCycle returns the most recent maintenance receipt
func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	if !ws.withDB {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "Cycle history requires the receipts database")
		return
	}

	receipts, err := state.LoadRecentReceipts(1)
	if err != nil || len(receipts) == 0 {
		webLogger.Error().Err(err).Msg("Failed to load latest receipt")
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, receipts[0])
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
