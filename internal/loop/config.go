package loop

import (
	"fmt"

	"github.com/fyrsmithlabs/dialogd/internal/element"
)

// Weights are the relative weights of the convergence sub-scores. They are
// normalized by their sum, so only ratios matter.
type Weights struct {
	Semantic      float64 `json:"semantic" koanf:"semantic"`
	Emotional     float64 `json:"emotional" koanf:"emotional"`
	Archetypal    float64 `json:"archetypal" koanf:"archetypal"`
	Elemental     float64 `json:"elemental" koanf:"elemental"`
	UserConfirmed float64 `json:"user_confirmed" koanf:"user_confirmed"`
}

// EqualWeights weights every sub-score 0.2.
func EqualWeights() Weights {
	return Weights{Semantic: 0.2, Emotional: 0.2, Archetypal: 0.2, Elemental: 0.2, UserConfirmed: 0.2}
}

func (w Weights) values() [5]float64 {
	return [5]float64{w.Semantic, w.Emotional, w.Archetypal, w.Elemental, w.UserConfirmed}
}

// Apply returns the weighted mean of s.
func (w Weights) Apply(s SubScores) float64 {
	ws, vs := w.values(), s.values()
	var sum, total float64
	for i := range ws {
		sum += ws[i] * vs[i]
		total += ws[i]
	}
	if total == 0 {
		return 0
	}
	return clamp01(sum / total)
}

// Config tunes the loop machine.
type Config struct {
	// Threshold is the convergence score that ends the loop.
	Threshold float64 `json:"threshold" koanf:"threshold"`
	Weights   Weights `json:"weights" koanf:"weights"`
	// DefaultMaxCycles applies when no element override exists.
	DefaultMaxCycles int `json:"default_max_cycles" koanf:"default_max_cycles"`
	// MaxCyclesByElement tunes the cap by tone element.
	MaxCyclesByElement map[element.Element]int `json:"max_cycles_by_element" koanf:"max_cycles_by_element"`
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:        0.75,
		Weights:          EqualWeights(),
		DefaultMaxCycles: 3,
		MaxCyclesByElement: map[element.Element]int{
			element.Fire:   2,
			element.Water:  4,
			element.Aether: 4,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("loop threshold %v must be in (0,1]", c.Threshold)
	}
	var total float64
	for _, w := range c.Weights.values() {
		if w < 0 {
			return fmt.Errorf("loop weights must not be negative")
		}
		total += w
	}
	if total == 0 {
		return fmt.Errorf("loop weights must not all be zero")
	}
	if c.DefaultMaxCycles < 2 || c.DefaultMaxCycles > HardMaxCycles {
		return fmt.Errorf("default max cycles %d must be in [2,%d]", c.DefaultMaxCycles, HardMaxCycles)
	}
	for e, n := range c.MaxCyclesByElement {
		if n < 2 || n > HardMaxCycles {
			return fmt.Errorf("max cycles for %s = %d must be in [2,%d]", e, n, HardMaxCycles)
		}
	}
	return nil
}

// MaxCyclesFor returns the cycle cap for a tone element.
func (c Config) MaxCyclesFor(e element.Element) int {
	if n, ok := c.MaxCyclesByElement[e]; ok {
		return n
	}
	return c.DefaultMaxCycles
}
