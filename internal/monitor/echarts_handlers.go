package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/parallax-data/bundle.scope/internal/httputil"
	"github.com/parallax-data/bundle.scope/internal/localba"
	"github.com/parallax-data/bundle.scope/internal/sfm"
)

// echartsAssetsPrefix is where rendered chart pages load the echarts
// javascript from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleDistanceHistogramChart renders a bar chart of the latest round's
// pose count per graph distance. This is a debugging-only endpoint (no
// auth) to eyeball the scope shape without pulling the JSON.
func (ws *WebServer) handleDistanceHistogramChart(w http.ResponseWriter, r *http.Request) {
	snap := ws.stats.LatestSnapshot()
	if snap == nil || len(snap.DistanceHistogram) == 0 {
		httputil.NotFound(w, "no distance histogram available")
		return
	}

	dists := make([]int, 0, len(snap.DistanceHistogram))
	for d := range snap.DistanceHistogram {
		dists = append(dists, d)
	}
	sort.Ints(dists)

	x := make([]string, 0, len(dists))
	y := make([]opts.BarData, 0, len(dists))
	for _, d := range dists {
		label := strconv.Itoa(d)
		if d == -1 {
			label = "unreachable"
		}
		x = append(x, label)
		y = append(y, opts.BarData{Value: snap.DistanceHistogram[d]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Pose Distance Histogram", Subtitle: fmt.Sprintf("round %d at %s", snap.Round, snap.Timestamp.Format(time.RFC3339))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("poses", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleFocalHistoryChart renders a line chart of each intrinsic's focal
// length over its recorded samples.
// Query params:
//   - intrinsic (optional; restrict the chart to one intrinsic id)
func (ws *WebServer) handleFocalHistoryChart(w http.ResponseWriter, r *http.Request) {
	histories := ws.stats.FocalHistories()
	if len(histories) == 0 {
		httputil.NotFound(w, "no focal history recorded")
		return
	}

	if v := r.URL.Query().Get("intrinsic"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			httputil.BadRequest(w, "invalid 'intrinsic' parameter")
			return
		}
		hist, ok := histories[sfm.IntrinsicID(id)]
		if !ok {
			httputil.NotFound(w, fmt.Sprintf("no history for intrinsic %d", id))
			return
		}
		histories = map[sfm.IntrinsicID][]localba.FocalSample{sfm.IntrinsicID(id): hist}
	}

	ids := make([]sfm.IntrinsicID, 0, len(histories))
	maxLen := 0
	for id, hist := range histories {
		ids = append(ids, id)
		if len(hist) > maxLen {
			maxLen = len(hist)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	x := make([]string, maxLen)
	for i := range x {
		x[i] = strconv.Itoa(i + 1)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Focal History", Theme: "dark", Width: "1200px", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Intrinsic Focal History", Subtitle: fmt.Sprintf("%d intrinsics", len(ids))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "focal (px)", NameLocation: "middle", NameGap: 45}),
	)
	line.SetXAxis(x)
	for _, id := range ids {
		data := make([]opts.LineData, 0, len(histories[id]))
		for _, s := range histories[id] {
			data = append(data, opts.LineData{Value: s.Focal})
		}
		line.AddSeries(fmt.Sprintf("K%d", id), data)
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleStateCountsChart renders pose state counts across all observed
// rounds, one line per state.
func (ws *WebServer) handleStateCountsChart(w http.ResponseWriter, r *http.Request) {
	rounds := ws.stats.Rounds()
	if len(rounds) == 0 {
		httputil.NotFound(w, "no rounds observed yet")
		return
	}

	x := make([]string, 0, len(rounds))
	refined := make([]opts.LineData, 0, len(rounds))
	constant := make([]opts.LineData, 0, len(rounds))
	ignored := make([]opts.LineData, 0, len(rounds))
	for _, snap := range rounds {
		x = append(x, strconv.FormatInt(snap.Round, 10))
		refined = append(refined, opts.LineData{Value: snap.Poses.Refined})
		constant = append(constant, opts.LineData{Value: snap.Poses.Constant})
		ignored = append(ignored, opts.LineData{Value: snap.Poses.Ignored})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Pose States", Theme: "dark", Width: "1200px", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Pose States per Round", Subtitle: fmt.Sprintf("%d rounds", len(rounds))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "round", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "poses", NameLocation: "middle", NameGap: 45}),
	)
	line.SetXAxis(x).
		AddSeries("refined", refined).
		AddSeries("constant", constant).
		AddSeries("ignored", ignored)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
