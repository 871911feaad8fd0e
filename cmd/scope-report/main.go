// Command scope-report summarises a rounds database produced by the
// scope service: per-round state counts, solve statistics and optional
// JSON and HTML exports.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/parallax-data/bundle.scope/internal/scopedb"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Config holds the report settings.
type Config struct {
	DBPath     string
	OutputDir  string
	Limit      int
	ExportJSON bool
	ExportHTML bool
}

// ScopeReport aggregates the stored rounds for printing and export.
// Rounds are ordered oldest first.
type ScopeReport struct {
	DBPath         string                 `json:"db_path"`
	RoundCount     int                    `json:"round_count"`
	FirstSeq       int64                  `json:"first_seq"`
	LastSeq        int64                  `json:"last_seq"`
	PeakGraphViews int                    `json:"peak_graph_views"`
	PeakGraphEdges int                    `json:"peak_graph_edges"`
	FrozenAtEnd    int                    `json:"frozen_at_end"`
	TotalSolve     time.Duration          `json:"total_solve_ns"`
	AvgSolveMs     float64                `json:"avg_solve_ms"`
	FinalRMSE      float64                `json:"final_rmse"`
	Rounds         []*scopedb.RoundRecord `json:"rounds"`
}

func main() {
	config := parseFlags()

	if config.DBPath == "" {
		fmt.Fprintln(os.Stderr, "Error: rounds database is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(config.DBPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: rounds database not found: %s\n", config.DBPath)
		os.Exit(1)
	}
	if config.OutputDir != "" {
		if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	db, err := scopedb.NewDB(config.DBPath)
	if err != nil {
		log.Fatalf("Failed to open rounds database: %v", err)
	}
	defer db.Close()

	report, err := buildReport(config, scopedb.NewRoundStore(db.DB))
	if err != nil {
		log.Fatalf("Report failed: %v", err)
	}

	printSummary(report)

	if err := exportResults(config, report); err != nil {
		log.Fatalf("Export failed: %v", err)
	}
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.DBPath, "db", "scope_rounds.db", "Path to the rounds database")
	flag.StringVar(&config.OutputDir, "output", ".", "Output directory for exports")
	flag.IntVar(&config.Limit, "limit", 0, "Most recent rounds to include (0 = up to 100)")
	flag.BoolVar(&config.ExportJSON, "json", false, "Export the full report to JSON")
	flag.BoolVar(&config.ExportHTML, "html", false, "Export round charts to HTML")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Summarises the rounds recorded by the scope service.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -db scope_rounds.db\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -db scope_rounds.db -json -html -output ./report\n", os.Args[0])
	}

	flag.Parse()
	return config
}

func buildReport(config Config, store *scopedb.RoundStore) (*ScopeReport, error) {
	recs, err := store.ListRounds(config.Limit)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("no rounds recorded in %s", config.DBPath)
	}

	// ListRounds returns newest first; the report reads oldest first.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}

	report := &ScopeReport{
		DBPath:     config.DBPath,
		RoundCount: len(recs),
		FirstSeq:   recs[0].Seq,
		LastSeq:    recs[len(recs)-1].Seq,
		Rounds:     recs,
	}
	var totalSolve int64
	for _, r := range recs {
		totalSolve += r.SolveDurationNs
		if r.GraphViews > report.PeakGraphViews {
			report.PeakGraphViews = r.GraphViews
		}
		if r.GraphEdges > report.PeakGraphEdges {
			report.PeakGraphEdges = r.GraphEdges
		}
	}
	last := recs[len(recs)-1]
	report.FrozenAtEnd = last.FrozenIntrinsics
	report.FinalRMSE = last.RMSEFinal
	report.TotalSolve = time.Duration(totalSolve)
	report.AvgSolveMs = float64(totalSolve) / float64(len(recs)) / 1e6
	return report, nil
}

func printSummary(report *ScopeReport) {
	fmt.Println("\n========== Scope Round Report ==========")
	fmt.Printf("Database: %s\n", report.DBPath)
	fmt.Printf("Rounds: %d (seq %d-%d)\n", report.RoundCount, report.FirstSeq, report.LastSeq)
	fmt.Printf("Peak graph: %d views, %d edges\n", report.PeakGraphViews, report.PeakGraphEdges)
	fmt.Printf("Frozen intrinsics at end: %d\n", report.FrozenAtEnd)
	fmt.Printf("Solve time: %v total, %.1f ms/round\n", report.TotalSolve, report.AvgSolveMs)
	fmt.Printf("Final RMSE: %.4f\n", report.FinalRMSE)
	fmt.Println("\nRounds:")
	for _, r := range report.Rounds {
		fmt.Printf("  round %d: +%d views, graph %dv/%de, poses %d/%d/%d, intrinsics %d/%d/%d, frozen %d, solve %v\n",
			r.Seq, r.NewViews, r.GraphViews, r.GraphEdges,
			r.PosesRefined, r.PosesConstant, r.PosesIgnored,
			r.IntrinsicsRefined, r.IntrinsicsConstant, r.IntrinsicsIgnored,
			r.FrozenIntrinsics, time.Duration(r.SolveDurationNs))
	}
	fmt.Println("========================================")
}

func exportResults(config Config, report *ScopeReport) error {
	baseName := strings.TrimSuffix(filepath.Base(config.DBPath), filepath.Ext(config.DBPath))

	if config.ExportJSON {
		jsonPath := filepath.Join(config.OutputDir, baseName+"_report.json")
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("JSON marshal: %w", err)
		}
		if err := os.WriteFile(jsonPath, data, 0644); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
		fmt.Printf("JSON report: %s\n", jsonPath)
	}

	if config.ExportHTML {
		htmlPath := filepath.Join(config.OutputDir, baseName+"_report.html")
		if err := exportChartsHTML(htmlPath, report); err != nil {
			return fmt.Errorf("write HTML: %w", err)
		}
		fmt.Printf("HTML report: %s\n", htmlPath)
	}

	return nil
}

func exportChartsHTML(path string, report *ScopeReport) error {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(
		poseStateChart(report),
		solveTimeChart(report),
		finalHistogramChart(report),
	)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}

func poseStateChart(report *ScopeReport) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Pose states per round",
			Subtitle: fmt.Sprintf("rounds %d-%d", report.FirstSeq, report.LastSeq),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "round", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "poses"}),
	)

	x := make([]string, len(report.Rounds))
	refined := make([]opts.LineData, len(report.Rounds))
	constant := make([]opts.LineData, len(report.Rounds))
	ignored := make([]opts.LineData, len(report.Rounds))
	for i, r := range report.Rounds {
		x[i] = strconv.FormatInt(r.Seq, 10)
		refined[i] = opts.LineData{Value: r.PosesRefined}
		constant[i] = opts.LineData{Value: r.PosesConstant}
		ignored[i] = opts.LineData{Value: r.PosesIgnored}
	}
	line.SetXAxis(x).
		AddSeries("refined", refined).
		AddSeries("constant", constant).
		AddSeries("ignored", ignored)
	return line
}

func solveTimeChart(report *ScopeReport) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Solve duration per round"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "round", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)

	x := make([]string, len(report.Rounds))
	data := make([]opts.LineData, len(report.Rounds))
	for i, r := range report.Rounds {
		x[i] = strconv.FormatInt(r.Seq, 10)
		data[i] = opts.LineData{Value: float64(r.SolveDurationNs) / 1e6}
	}
	line.SetXAxis(x).AddSeries("solve", data)
	return line
}

func finalHistogramChart(report *ScopeReport) *charts.Bar {
	bar := charts.NewBar()
	last := report.Rounds[len(report.Rounds)-1]
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "View distances",
			Subtitle: fmt.Sprintf("round %d", last.Seq),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "distance", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "views"}),
	)

	hist := make(map[string]int)
	if len(last.HistogramJSON) > 0 {
		if err := json.Unmarshal(last.HistogramJSON, &hist); err != nil {
			log.Printf("Failed to decode histogram for round %d: %v", last.Seq, err)
		}
	}
	dists := make([]int, 0, len(hist))
	for k := range hist {
		d, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		dists = append(dists, d)
	}
	sort.Ints(dists)

	labels := make([]string, len(dists))
	data := make([]opts.BarData, len(dists))
	for i, d := range dists {
		if d < 0 {
			labels[i] = "unreachable"
		} else {
			labels[i] = strconv.Itoa(d)
		}
		data[i] = opts.BarData{Value: hist[strconv.Itoa(d)]}
	}
	bar.SetXAxis(labels).AddSeries("views", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}
