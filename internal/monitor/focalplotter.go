package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/parallax-data/bundle.scope/internal/localba"
	"github.com/parallax-data/bundle.scope/internal/sfm"
)

// FocalPlotter records intrinsic focal histories over a run for
// visualization. It retains the manager's history copy on each call to
// Sample(), producing PNG plots after the run with GeneratePlots().
type FocalPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string

	// histories holds the focal samples last seen per intrinsic.
	// Histories are cumulative, so the newest Sample supersedes all
	// earlier ones.
	histories map[sfm.IntrinsicID][]localba.FocalSample
	frozen    map[sfm.IntrinsicID]bool
	roundIdx  int
}

// NewFocalPlotter creates a plotter with no retained history.
func NewFocalPlotter() *FocalPlotter {
	return &FocalPlotter{
		histories: make(map[sfm.IntrinsicID][]localba.FocalSample),
		frozen:    make(map[sfm.IntrinsicID]bool),
	}
}

// Start initializes the plotter for a new run.
// outputDir should be a timestamped directory (e.g., "plots/journal-01/20260107_173129")
func (fp *FocalPlotter) Start(outputDir string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	fp.outputDir = outputDir
	fp.enabled = true
	fp.roundIdx = 0
	fp.histories = make(map[sfm.IntrinsicID][]localba.FocalSample)
	fp.frozen = make(map[sfm.IntrinsicID]bool)
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (fp *FocalPlotter) Stop() {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (fp *FocalPlotter) IsEnabled() bool {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.enabled
}

// Sample retains the current focal histories and the frozen set.
// Call this once per round, after the manager has recorded intrinsics.
func (fp *FocalPlotter) Sample(histories map[sfm.IntrinsicID][]localba.FocalSample, frozen []sfm.IntrinsicID) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if !fp.enabled || histories == nil {
		return
	}

	fp.roundIdx++
	fp.histories = histories
	for _, id := range frozen {
		fp.frozen[id] = true
	}
}

// GeneratePlots creates PNG files of focal length and pose count per
// intrinsic over the recorded samples, one line per intrinsic.
// Returns the number of files written and any error.
func (fp *FocalPlotter) GeneratePlots() (int, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if fp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}

	if len(fp.histories) == 0 {
		return 0, nil
	}

	pFocal := plot.New()
	pFocal.Title.Text = "Intrinsic Focal Length"
	pFocal.X.Label.Text = "Sample"
	pFocal.Y.Label.Text = "Focal (px)"

	pCount := plot.New()
	pCount.Title.Text = "Poses per Intrinsic"
	pCount.X.Label.Text = "Sample"
	pCount.Y.Label.Text = "Pose Count"

	// Sort intrinsic ids for consistent legend
	ids := make([]sfm.IntrinsicID, 0, len(fp.histories))
	for id := range fp.histories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// Color palette
	colors := generateColors(len(ids))

	for i, id := range ids {
		hist := fp.histories[id]
		if len(hist) == 0 {
			continue
		}

		focalPts := make(plotter.XYs, 0, len(hist))
		countPts := make(plotter.XYs, 0, len(hist))
		for j, s := range hist {
			focalPts = append(focalPts, plotter.XY{X: float64(j + 1), Y: s.Focal})
			countPts = append(countPts, plotter.XY{X: float64(j + 1), Y: float64(s.PoseCount)})
		}

		label := fmt.Sprintf("K%d", id)
		if fp.frozen[id] {
			label += " (frozen)"
		}

		focalLine, err := plotter.NewLine(focalPts)
		if err != nil {
			return 0, err
		}
		focalLine.Color = colors[i]
		focalLine.Width = vg.Points(1)
		pFocal.Add(focalLine)
		pFocal.Legend.Add(label, focalLine)

		countLine, err := plotter.NewLine(countPts)
		if err != nil {
			return 0, err
		}
		countLine.Color = colors[i]
		countLine.Width = vg.Points(1)
		pCount.Add(countLine)
		pCount.Legend.Add(label, countLine)
	}

	// Configure legends
	pFocal.Legend.Top = true
	pFocal.Legend.Left = false
	pFocal.Legend.XOffs = -10
	pFocal.Legend.YOffs = -10

	pCount.Legend.Top = true
	pCount.Legend.Left = false
	pCount.Legend.XOffs = -10
	pCount.Legend.YOffs = -10

	// Save plots
	written := 0
	focalFile := filepath.Join(fp.outputDir, "focal_history.png")
	if err := pFocal.Save(14*vg.Inch, 6*vg.Inch, focalFile); err != nil {
		return written, fmt.Errorf("save focal plot: %w", err)
	}
	written++

	countFile := filepath.Join(fp.outputDir, "pose_counts.png")
	if err := pCount.Save(14*vg.Inch, 6*vg.Inch, countFile); err != nil {
		return written, fmt.Errorf("save pose count plot: %w", err)
	}
	written++

	return written, nil
}

// GetOutputDir returns the current output directory for plots.
func (fp *FocalPlotter) GetOutputDir() string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.outputDir
}

// GetSampleCount returns the total number of retained focal samples.
func (fp *FocalPlotter) GetSampleCount() int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	count := 0
	for _, hist := range fp.histories {
		count += len(hist)
	}
	return count
}

// GetRoundCount returns the number of rounds sampled since Start.
func (fp *FocalPlotter) GetRoundCount() int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.roundIdx
}

// generateColors creates a palette of distinct colors for intrinsic lines
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory for plots.
// For journal replays: plots/<journal_basename>/<timestamp>
// For live data: plots/live_<timestamp>
func MakePlotOutputDir(baseDir, journalFile string) string {
	ts := FormatTimestamp(time.Now())
	if journalFile != "" {
		// Use journal basename without extension
		base := filepath.Base(journalFile)
		ext := filepath.Ext(base)
		name := base[:len(base)-len(ext)]
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "live_"+ts)
}
