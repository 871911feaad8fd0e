package monitor

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parallax-data/bundle.scope/internal/localba"
	"github.com/parallax-data/bundle.scope/internal/scopedb"
	"github.com/parallax-data/bundle.scope/internal/sfm"
	"github.com/parallax-data/bundle.scope/internal/testutil"
)

func newTestServer(t *testing.T) (*WebServer, *ScopeStats) {
	t.Helper()
	stats := NewScopeStats()
	ws := NewWebServer(WebServerConfig{
		Address:     ":0",
		Stats:       stats,
		JournalPath: "testdata/journal.json",
	})
	return ws, stats
}

func newTestDB(t *testing.T) *scopedb.DB {
	t.Helper()
	db, err := scopedb.NewDB(filepath.Join(t.TempDir(), "rounds.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	return db
}

func TestNewWebServer(t *testing.T) {
	ws, stats := newTestServer(t)

	if ws == nil {
		t.Fatal("NewWebServer returned nil")
	}
	if ws.stats != stats {
		t.Error("WebServer stats not set correctly")
	}
	if ws.journalPath != "testdata/journal.json" {
		t.Error("WebServer journalPath not set correctly")
	}
	if ws.rounds != nil {
		t.Error("expected no round store without a DB")
	}
}

func TestHealthHandler(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := testutil.NewTestRecorder()
	ws.setupRoutes().ServeHTTP(rec, testutil.NewTestRequest("GET", "/health"))

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	if ctype := rec.Header().Get("Content-Type"); ctype != "application/json" {
		t.Errorf("content type = %q, want application/json", ctype)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"status": "ok"`) {
		t.Error("health response should report status ok")
	}
	if !strings.Contains(body, `"service": "scope"`) {
		t.Error("health response should name the scope service")
	}
}

func TestStatusPage(t *testing.T) {
	ws, stats := newTestServer(t)
	stats.ObserveRound(sampleRoundStats(3))

	rec := testutil.NewTestRecorder()
	ws.setupRoutes().ServeHTTP(rec, testutil.NewTestRequest("GET", "/"))

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	body := rec.Body.String()
	if !strings.Contains(body, "Scope Monitor") {
		t.Error("status page should contain 'Scope Monitor'")
	}
	if !strings.Contains(body, "testdata/journal.json") {
		t.Error("status page should contain the journal path")
	}
	if !strings.Contains(body, "Round 3") {
		t.Error("status page should contain the latest round number")
	}
}

func TestStatusPageNoRounds(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := testutil.NewTestRecorder()
	ws.setupRoutes().ServeHTTP(rec, testutil.NewTestRequest("GET", "/"))

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "No rounds observed yet") {
		t.Error("status page should say no rounds were observed")
	}
}

func TestStatusPageUnknownPath(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := testutil.NewTestRecorder()
	ws.setupRoutes().ServeHTTP(rec, testutil.NewTestRequest("GET", "/nonexistent"))

	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestScopeStatusHandler(t *testing.T) {
	ws, stats := newTestServer(t)
	mux := ws.setupRoutes()

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest("GET", "/api/scope/status"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	stats.ObserveRound(sampleRoundStats(7))

	rec = testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest("GET", "/api/scope/status"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var snap RoundSnapshot
	testutil.DecodeJSONBody(t, rec, &snap)
	if snap.Round != 7 {
		t.Errorf("expected round 7, got %d", snap.Round)
	}
	if snap.Poses.Refined != 3 {
		t.Errorf("expected 3 refined poses, got %d", snap.Poses.Refined)
	}
	if snap.DistanceHistogram[0] != 2 {
		t.Errorf("expected 2 poses at distance 0, got %d", snap.DistanceHistogram[0])
	}
}

func TestScopeStatusHandlerMethodNotAllowed(t *testing.T) {
	ws, stats := newTestServer(t)
	stats.ObserveRound(sampleRoundStats(1))

	rec := testutil.NewTestRecorder()
	ws.setupRoutes().ServeHTTP(rec, testutil.NewTestRequest("POST", "/api/scope/status"))

	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestScopeRoundsHandlerNoDB(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := testutil.NewTestRecorder()
	ws.setupRoutes().ServeHTTP(rec, testutil.NewTestRequest("GET", "/api/scope/rounds"))

	testutil.AssertStatusCode(t, rec.Code, http.StatusInternalServerError)

	var resp map[string]string
	testutil.DecodeJSONBody(t, rec, &resp)
	if !strings.Contains(resp["error"], "no database") {
		t.Errorf("unexpected error message: %q", resp["error"])
	}
}

func TestScopeRoundsHandler(t *testing.T) {
	db := newTestDB(t)
	store := scopedb.NewRoundStore(db.DB)
	for seq := int64(1); seq <= 3; seq++ {
		rr, err := scopedb.RecordFromStats(sampleRoundStats(seq))
		if err != nil {
			t.Fatalf("RecordFromStats: %v", err)
		}
		if err := store.Insert(rr); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	ws := NewWebServer(WebServerConfig{Address: ":0", Stats: NewScopeStats(), DB: db})
	mux := ws.setupRoutes()

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest("GET", "/api/scope/rounds?limit=2"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var rounds []*scopedb.RoundRecord
	testutil.DecodeJSONBody(t, rec, &rounds)
	if len(rounds) != 2 {
		t.Fatalf("expected 2 rounds, got %d", len(rounds))
	}
	if rounds[0].Seq != 3 || rounds[1].Seq != 2 {
		t.Errorf("expected newest-first order, got seqs %d, %d", rounds[0].Seq, rounds[1].Seq)
	}

	// Out-of-range limit falls back to the default.
	rec = testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest("GET", "/api/scope/rounds?limit=-5"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rounds = nil
	testutil.DecodeJSONBody(t, rec, &rounds)
	if len(rounds) != 3 {
		t.Errorf("expected all 3 rounds with default limit, got %d", len(rounds))
	}
}

func TestScopeHistogramHandler(t *testing.T) {
	ws, stats := newTestServer(t)
	mux := ws.setupRoutes()

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest("GET", "/api/scope/histogram"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	stats.ObserveRound(sampleRoundStats(1))

	rec = testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest("GET", "/api/scope/histogram"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var hist map[string]int
	testutil.DecodeJSONBody(t, rec, &hist)
	if hist["0"] != 2 || hist["1"] != 1 {
		t.Errorf("unexpected histogram: %v", hist)
	}
}

func TestChartHandlersRender(t *testing.T) {
	ws, stats := newTestServer(t)
	stats.ObserveRound(sampleRoundStats(1))
	stats.SetFocalHistories(map[sfm.IntrinsicID][]localba.FocalSample{
		0: {{PoseCount: 2, Focal: 1000}, {PoseCount: 3, Focal: 1000.4}},
		1: {{PoseCount: 2, Focal: 900}},
	})
	mux := ws.setupRoutes()

	for _, path := range []string{
		"/debug/charts/distances",
		"/debug/charts/focals",
		"/debug/charts/states",
	} {
		t.Run(path, func(t *testing.T) {
			rec := testutil.NewTestRecorder()
			mux.ServeHTTP(rec, testutil.NewTestRequest("GET", path))

			testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
			if ctype := rec.Header().Get("Content-Type"); !strings.Contains(ctype, "text/html") {
				t.Errorf("content type = %q, want text/html", ctype)
			}
			if !strings.Contains(rec.Body.String(), "echarts") {
				t.Error("expected an echarts document")
			}
		})
	}
}

func TestChartHandlersNoData(t *testing.T) {
	ws, _ := newTestServer(t)
	mux := ws.setupRoutes()

	for _, path := range []string{
		"/debug/charts/distances",
		"/debug/charts/focals",
		"/debug/charts/states",
	} {
		t.Run(path, func(t *testing.T) {
			rec := testutil.NewTestRecorder()
			mux.ServeHTTP(rec, testutil.NewTestRequest("GET", path))
			testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
		})
	}
}

func TestFocalChartIntrinsicFilter(t *testing.T) {
	ws, stats := newTestServer(t)
	stats.SetFocalHistories(map[sfm.IntrinsicID][]localba.FocalSample{
		0: {{PoseCount: 2, Focal: 1000}},
	})
	mux := ws.setupRoutes()

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest("GET", "/debug/charts/focals?intrinsic=0"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest("GET", "/debug/charts/focals?intrinsic=9"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	rec = testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest("GET", "/debug/charts/focals?intrinsic=bogus"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestAdminRoutesAttachedWithDB(t *testing.T) {
	db := newTestDB(t)
	ws := NewWebServer(WebServerConfig{Address: ":0", Stats: NewScopeStats(), DB: db})
	mux := ws.setupRoutes()

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest("GET", "/debug/"))
	if rec.Code == http.StatusNotFound {
		t.Error("expected debug routes to be attached when a DB is configured")
	}
}

func TestWebServerStartShutdown(t *testing.T) {
	ws, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

func TestWebServerClose(t *testing.T) {
	ws, _ := newTestServer(t)
	if err := ws.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}
