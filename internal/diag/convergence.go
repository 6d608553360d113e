package diag

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// ConvergenceConfig defines parameters for detecting an energy plateau
type ConvergenceConfig struct {
	// Enabled controls whether plateau detection is active
	Enabled bool

	// Patience is the number of iterations with no significant improvement
	// before the run is declared converged
	Patience int

	// Threshold is the minimum relative improvement required to count as progress
	// Relative improvement = (old - new) / |old|, or old - new when old is 0
	Threshold float64
}

// DefaultConvergenceConfig returns defaults suited to conjugate-gradient runs
// on charge configurations
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  100,
		Threshold: 1e-10,
	}
}

// DisabledConvergenceConfig returns a config with plateau detection disabled
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled: false,
	}
}

// ConvergenceTracker tracks energy history and detects when minimization has
// stopped making progress. It satisfies optimize.Converger.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	best            float64 // Best energy ever seen
	lastSignificant float64 // Last energy that was a significant improvement
	staleCount      int     // Iterations without significant improvement
}

var _ optimize.Converger = (*ConvergenceTracker)(nil)

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	c := &ConvergenceTracker{config: config}
	c.Reset()
	return c
}

// Update records a new energy and returns true if a plateau is detected
func (c *ConvergenceTracker) Update(energy float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.history = append(c.history, energy)

	if energy < c.best {
		c.best = energy
	}

	if len(c.history) == 1 {
		c.lastSignificant = energy
		return false
	}

	improvement := c.lastSignificant - energy
	if c.lastSignificant != 0 {
		improvement /= math.Abs(c.lastSignificant)
	}

	if improvement >= c.config.Threshold {
		c.lastSignificant = energy
		c.staleCount = 0
		return false
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		slog.Debug("Energy plateau detected",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_energy", c.best,
		)
		return true
	}
	return false
}

// Init implements optimize.Converger and starts a fresh history.
func (c *ConvergenceTracker) Init(dim int) {
	c.Reset()
}

// Converged implements optimize.Converger.
func (c *ConvergenceTracker) Converged(loc *optimize.Location) optimize.Status {
	if c.Update(loc.F) {
		return optimize.FunctionConvergence
	}
	return optimize.NotTerminated
}

// Best returns the lowest energy seen so far
func (c *ConvergenceTracker) Best() float64 {
	return c.best
}

// History returns the full energy history
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.history...)
}

// StaleCount returns the current number of iterations without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker's state
func (c *ConvergenceTracker) Reset() {
	c.history = []float64{}
	c.best = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}
