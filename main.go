// Command scope replays a recorded resection journal through the local
// bundle adjustment scope manager and serves live diagnostics while the
// replay runs.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/parallax-data/bundle.scope/internal/config"
	"github.com/parallax-data/bundle.scope/internal/journal"
	"github.com/parallax-data/bundle.scope/internal/localba"
	"github.com/parallax-data/bundle.scope/internal/monitor"
	"github.com/parallax-data/bundle.scope/internal/scopedb"
	"github.com/parallax-data/bundle.scope/internal/version"
)

var (
	journalFile = flag.String("journal", "", "path to a recorded resection journal (JSON)")
	dbFile      = flag.String("db", "scope_rounds.db", "path to the rounds database")
	listenAddr  = flag.String("listen", "", "HTTP listen address for the monitor (overrides config)")
	configFile  = flag.String("config", "", "path to a tuning config JSON file")
	historyDir  = flag.String("history-dir", "", "directory for focal history exports after replay (overrides config)")
	plotDir     = flag.String("plot-dir", "", "base directory for focal plot PNGs after replay")
	roundDelay  = flag.Duration("round-delay", 0, "pause between replayed rounds (overrides config)")
	devMode     = flag.Bool("dev", false, "replay a built-in synthetic journal when no journal is given")
)

func main() {
	flag.Parse()

	log.Printf("scope %s", version.String())

	cfg := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		log.Printf("Loaded tuning config from %s", *configFile)
	}

	var jnl *journal.Journal
	switch {
	case *journalFile != "":
		var err error
		jnl, err = journal.Load(*journalFile)
		if err != nil {
			log.Fatalf("Failed to load journal: %v", err)
		}
		log.Printf("Loaded journal %s: %d rounds, %d intrinsics",
			*journalFile, len(jnl.Rounds), len(jnl.Intrinsics))
	case *devMode:
		jnl = journal.Synthesize(journal.SynthConfig{})
		log.Printf("Dev mode: replaying a built-in synthetic journal (%d rounds)", len(jnl.Rounds))
	default:
		log.Fatal("A journal is required: pass -journal, or -dev for a synthetic one")
	}

	db, err := scopedb.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open rounds database: %v", err)
	}
	defer db.Close()
	if err := db.MigrateUp(); err != nil {
		log.Fatalf("Failed to migrate rounds database: %v", err)
	}

	manager, err := localba.NewManager(cfg.ScopeParams())
	if err != nil {
		log.Fatalf("Failed to configure scope manager: %v", err)
	}

	stats := monitor.NewScopeStats()
	plotter := monitor.NewFocalPlotter()
	if *plotDir != "" {
		dir := monitor.MakePlotOutputDir(*plotDir, *journalFile)
		if err := plotter.Start(dir); err != nil {
			log.Fatalf("Failed to prepare plot directory: %v", err)
		}
		log.Printf("Focal plots will be written to %s", dir)
	}

	addr := cfg.GetListenAddr()
	if *listenAddr != "" {
		addr = *listenAddr
	}
	histDir := cfg.GetHistoryDir()
	if *historyDir != "" {
		histDir = *historyDir
	}
	delay := cfg.GetRoundDelay()
	if *roundDelay > 0 {
		delay = *roundDelay
	}

	// Create a wait group for the replay and monitor server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	replay := &Replay{
		Manager:    manager,
		Rounds:     scopedb.NewRoundStore(db.DB),
		Stats:      stats,
		Plotter:    plotter,
		HistoryDir: histDir,
		Delay:      delay,
	}

	// run the replay routine to feed rounds through the scope manager
	wg.Add(1)
	go func() {
		defer wg.Done()
		replay.Run(ctx, jnl)
		log.Print("replay routine terminated")
	}()

	// HTTP server goroutine for the diagnostics monitor
	webServer := monitor.NewWebServer(monitor.WebServerConfig{
		Address:     addr,
		Stats:       stats,
		DB:          db,
		JournalPath: *journalFile,
		HistoryDir:  histDir,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("Monitor listening on %s", addr)
		if err := webServer.Start(ctx); err != nil {
			log.Printf("Web server error: %v", err)
		}
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
