package localba

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parallax-data/bundle.scope/internal/security"
)

// ExportIntrinsicsHistory writes one plain text file per recorded
// intrinsic into dir, named K<id>.txt, one "<pose_count> <focal>" line
// per sample. The directory must resolve under the working directory
// or the system temp directory.
func (m *Manager) ExportIntrinsicsHistory(dir string) error {
	if err := security.ValidateExportPath(dir); err != nil {
		return fmt.Errorf("intrinsics history dir rejected: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	for _, id := range m.recordedIntrinsics() {
		var b strings.Builder
		for _, s := range m.focalHistory[id] {
			fmt.Fprintf(&b, "%d %g\n", s.PoseCount, s.Focal)
		}
		path := filepath.Join(dir, fmt.Sprintf("K%d.txt", id))
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// Export writes the step timings as key-value text, one
// "<step>: <duration>" line per step plus a total. The path must
// resolve under the working directory or the system temp directory.
func (t RoundTimings) Export(path string) error {
	if err := security.ValidateExportPath(path); err != nil {
		return fmt.Errorf("timings path rejected: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "graph_update: %v\n", t.GraphUpdate)
	fmt.Fprintf(&b, "distances: %v\n", t.Distances)
	fmt.Fprintf(&b, "classification: %v\n", t.Classification)
	fmt.Fprintf(&b, "solve: %v\n", t.Solve)
	fmt.Fprintf(&b, "save: %v\n", t.Save)
	fmt.Fprintf(&b, "total: %v\n", t.Total())
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write timings: %w", err)
	}
	return nil
}
