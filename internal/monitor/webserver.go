package monitor

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/parallax-data/bundle.scope/internal/httputil"
	"github.com/parallax-data/bundle.scope/internal/scopedb"
)

//go:embed status.html
var StatusHTML embed.FS

// WebServer handles the HTTP interface for monitoring scope rounds.
// It provides endpoints for health checks, round status, and debug
// charts.
type WebServer struct {
	address     string
	stats       *ScopeStats
	server      *http.Server
	db          *scopedb.DB
	rounds      *scopedb.RoundStore
	journalPath string
	historyDir  string
}

// WebServerConfig contains configuration options for the web server.
// Stats is required; DB is optional and enables the persisted-round
// endpoints plus the admin routes.
type WebServerConfig struct {
	Address     string
	Stats       *ScopeStats
	DB          *scopedb.DB
	JournalPath string
	HistoryDir  string
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:     config.Address,
		stats:       config.Stats,
		db:          config.DB,
		journalPath: config.JournalPath,
		historyDir:  config.HistoryDir,
	}
	if config.DB != nil {
		ws.rounds = scopedb.NewRoundStore(config.DB.DB)
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/scope/status", ws.handleScopeStatus)
	mux.HandleFunc("/api/scope/rounds", ws.handleScopeRounds)
	mux.HandleFunc("/api/scope/histogram", ws.handleScopeHistogram)
	mux.HandleFunc("/debug/charts/distances", ws.handleDistanceHistogramChart)
	mux.HandleFunc("/debug/charts/focals", ws.handleFocalHistoryChart)
	mux.HandleFunc("/debug/charts/states", ws.handleStateCountsChart)

	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "scope", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	journalStatus := "none"
	if ws.journalPath != "" {
		journalStatus = ws.journalPath
	}

	historyStatus := "disabled"
	if ws.historyDir != "" {
		historyStatus = ws.historyDir
	}

	dbStatus := "disabled"
	if ws.db != nil {
		dbStatus = ws.db.Path()
	}

	// Load and parse the HTML template from embedded filesystem
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Template data
	data := struct {
		JournalStatus string
		HTTPAddress   string
		HistoryStatus string
		DBStatus      string
		Uptime        string
		Snapshot      *RoundSnapshot
	}{
		JournalStatus: journalStatus,
		HTTPAddress:   ws.address,
		HistoryStatus: historyStatus,
		DBStatus:      dbStatus,
		Uptime:        ws.stats.Uptime().Round(time.Second).String(),
		Snapshot:      ws.stats.LatestSnapshot(),
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleScopeStatus returns the most recent round statistics as JSON.
func (ws *WebServer) handleScopeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap := ws.stats.LatestSnapshot()
	if snap == nil {
		httputil.NotFound(w, "no rounds observed yet")
		return
	}

	httputil.WriteJSONOK(w, snap)
}

// handleScopeRounds returns a JSON array of the last N persisted rounds,
// newest first.
// Query params:
//
//	limit (optional, default 10)
func (ws *WebServer) handleScopeRounds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
		if limit <= 0 || limit > 100 {
			limit = 10
		}
	}
	if ws.rounds == nil {
		httputil.InternalServerError(w, "no database configured for round lookup")
		return
	}
	recs, err := ws.rounds.ListRounds(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list rounds: %v", err))
		return
	}
	httputil.WriteJSONOK(w, recs)
}

// handleScopeHistogram returns the latest round's pose-count-per-distance
// histogram. Distance -1 collects unreachable poses.
func (ws *WebServer) handleScopeHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap := ws.stats.LatestSnapshot()
	if snap == nil {
		httputil.NotFound(w, "no rounds observed yet")
		return
	}

	httputil.WriteJSONOK(w, snap.DistanceHistogram)
}

// Close shuts down the web server
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
