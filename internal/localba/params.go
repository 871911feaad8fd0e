package localba

import "fmt"

const (
	// DefaultMinSharedLandmarks is the co-visibility threshold for a
	// match edge between two views.
	DefaultMinSharedLandmarks = 100
	// DefaultDistanceLimitRefine is the largest graph distance whose
	// poses are still refined.
	DefaultDistanceLimitRefine = 1
	// DefaultDistanceLimitConstant is the largest graph distance whose
	// poses are kept as fixed constants in the solve.
	DefaultDistanceLimitConstant = 2
	// DefaultFocalWindowSize is the number of trailing focal samples
	// inspected by the convergence check.
	DefaultFocalWindowSize = 25
	// DefaultFocalStdevLimit is the convergence bound on the windowed
	// focal stdev, expressed as a fraction of the full focal range.
	DefaultFocalStdevLimit = 0.01
)

// Params holds the tuning knobs of the scope manager.
type Params struct {
	MinSharedLandmarks    int     // Minimum shared landmarks for a match edge
	DistanceLimitRefine   int     // Distances <= this are refined
	DistanceLimitConstant int     // Distances <= this (and > refine) are constant
	FocalWindowSize       int     // Trailing samples for the focal stdev window
	FocalStdevLimit       float64 // Normalized stdev below which a focal is converged
}

// DefaultParams returns the stock scope parameters.
func DefaultParams() Params {
	return Params{
		MinSharedLandmarks:    DefaultMinSharedLandmarks,
		DistanceLimitRefine:   DefaultDistanceLimitRefine,
		DistanceLimitConstant: DefaultDistanceLimitConstant,
		FocalWindowSize:       DefaultFocalWindowSize,
		FocalStdevLimit:       DefaultFocalStdevLimit,
	}
}

// Validate rejects parameter combinations the manager cannot run with.
func (p Params) Validate() error {
	if p.MinSharedLandmarks < 1 {
		return fmt.Errorf("min shared landmarks must be >= 1, got %d", p.MinSharedLandmarks)
	}
	if p.DistanceLimitRefine < 0 {
		return fmt.Errorf("refine distance limit must be >= 0, got %d", p.DistanceLimitRefine)
	}
	if p.DistanceLimitConstant < p.DistanceLimitRefine {
		return fmt.Errorf("constant distance limit %d must be >= refine limit %d",
			p.DistanceLimitConstant, p.DistanceLimitRefine)
	}
	if p.FocalWindowSize < 2 {
		return fmt.Errorf("focal window size must be >= 2, got %d", p.FocalWindowSize)
	}
	if p.FocalStdevLimit <= 0 {
		return fmt.Errorf("focal stdev limit must be > 0, got %g", p.FocalStdevLimit)
	}
	return nil
}
