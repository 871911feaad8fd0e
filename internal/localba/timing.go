package localba

import (
	"fmt"
	"time"

	"github.com/parallax-data/bundle.scope/internal/timeutil"
)

// RoundTimings breaks a scope round into its five steps: graph update
// (including intrinsic edges), distance computation, classification,
// the external solve, and saving the focal histories.
type RoundTimings struct {
	GraphUpdate    time.Duration `json:"graph_update"`
	Distances      time.Duration `json:"distances"`
	Classification time.Duration `json:"classification"`
	Solve          time.Duration `json:"solve"`
	Save           time.Duration `json:"save"`
}

// Total sums all five steps.
func (t RoundTimings) Total() time.Duration {
	return t.GraphUpdate + t.Distances + t.Classification + t.Solve + t.Save
}

func (t RoundTimings) String() string {
	return fmt.Sprintf("graph=%v dist=%v classify=%v solve=%v save=%v total=%v",
		t.GraphUpdate, t.Distances, t.Classification, t.Solve, t.Save, t.Total())
}

// stepTimer measures consecutive steps against an injectable clock.
type stepTimer struct {
	clock timeutil.Clock
	mark  time.Time
}

func newStepTimer(clock timeutil.Clock) *stepTimer {
	return &stepTimer{clock: clock}
}

func (t *stepTimer) start() {
	t.mark = t.clock.Now()
}

// lap returns the time since the last mark and starts the next step.
func (t *stepTimer) lap() time.Duration {
	d := t.clock.Since(t.mark)
	t.mark = t.clock.Now()
	return d
}
