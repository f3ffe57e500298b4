package memory

import (
	"fmt"
	"math"
)

// Params are the store-level decay tunables.
type Params struct {
	Alpha             float64 `json:"alpha"`              // access frequency weight
	Beta              float64 `json:"beta"`               // emotional valence weight
	Gamma             float64 `json:"gamma"`              // per-hour age penalty
	EvictionThreshold float64 `json:"eviction_threshold"` // records below this are dropped
}

// DefaultParams returns the stock decay parameters.
func DefaultParams() Params {
	return Params{
		Alpha:             0.15,
		Beta:              0.12,
		Gamma:             0.03,
		EvictionThreshold: 0.05,
	}
}

// Validate checks that every parameter is finite and non-negative and that the
// eviction threshold lies in [0,1].
func (p Params) Validate() error {
	for name, v := range map[string]float64{
		"alpha": p.Alpha,
		"beta":  p.Beta,
		"gamma": p.Gamma,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s must be a finite non-negative number, got %v", ErrInvalidInput, name, v)
		}
	}
	t := p.EvictionThreshold
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("%w: eviction threshold must be in [0,1], got %v", ErrInvalidInput, t)
	}
	return nil
}

// Bias shifts the decay parameters toward a retention preference.
type Bias string

const (
	BiasNone      Bias = ""
	BiasRecent    Bias = "recent"
	BiasImportant Bias = "important"
)

// WithBias returns p adjusted for b. A recent bias dampens the access term, an
// important bias dampens the valence term. Unknown biases return an error.
func (p Params) WithBias(b Bias) (Params, error) {
	switch b {
	case BiasNone:
	case BiasRecent:
		p.Alpha *= 0.8
	case BiasImportant:
		p.Beta *= 0.7
	default:
		return p, fmt.Errorf("%w: unknown memory bias %q", ErrInvalidInput, b)
	}
	return p, nil
}
