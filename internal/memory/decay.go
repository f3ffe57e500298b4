package memory

import (
	"fmt"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"
)

// Decay model
//
//	current = clamp(base + α·ln(1+accesses) + β·base − γ·ageHours, 0, 1)
//
// Age is measured from creation, not from the previous pass, so a pass is a
// pure function of (now, record, params) and repeating it at the same instant
// changes nothing. Between passes a record only loses importance unless a
// recall bumped its access count.

// Importance computes the decayed importance of r at now under p.
func Importance(p Params, r Record, now time.Time) float64 {
	base := clamp01(r.BaseImportance)
	hours := now.Sub(r.CreatedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	v := base +
		p.Alpha*math.Log1p(float64(max(r.AccessCount, 0))) +
		p.Beta*base -
		p.Gamma*hours
	return clamp01(v)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// DecayResult summarises one decay pass.
type DecayResult struct {
	At      time.Time `json:"at"`
	Scanned int       `json:"scanned"`
	Updated int       `json:"updated"`
	Skipped int       `json:"skipped"`
	Evicted []Record  `json:"evicted"`
}

// Decay recomputes every record's importance at now and evicts those that fall
// below the eviction threshold.
func (s *Store) Decay(now time.Time) DecayResult {
	return s.sweep(now, s.params)
}

func (s *Store) sweep(now time.Time, p Params) DecayResult {
	if err := p.Validate(); err != nil {
		panic(fmt.Sprintf("memory: decay with invalid params: %v", err))
	}

	res := DecayResult{At: now}
	var evict []string
	for _, id := range s.order {
		r := s.records[id]
		res.Scanned++
		if math.IsNaN(r.BaseImportance) || r.CreatedAt.IsZero() {
			s.logger.Warn("decay: skipping malformed record",
				zap.String("id", r.ID),
				zap.Float64("base_importance", r.BaseImportance),
				zap.Time("created_at", r.CreatedAt))
			res.Skipped++
			continue
		}

		next := Importance(p, *r, now)
		if next != r.CurrentImportance {
			r.CurrentImportance = next
			res.Updated++
		}
		if next < p.EvictionThreshold {
			evict = append(evict, id)
		}
	}

	if len(evict) == 0 {
		return res
	}
	for _, id := range evict {
		res.Evicted = append(res.Evicted, s.records[id].clone())
		delete(s.records, id)
	}
	s.order = slices.DeleteFunc(s.order, func(id string) bool {
		_, ok := s.records[id]
		return !ok
	})
	return res
}

// ResetMode selects how aggressively Reset clears the store.
type ResetMode string

const (
	// ResetSoft runs one decay pass with the age penalty doubled.
	ResetSoft ResetMode = "soft"
	// ResetHard drops every record.
	ResetHard ResetMode = "hard"
)

// Reset clears the store according to mode. The returned result lists every
// record that was dropped.
func (s *Store) Reset(mode ResetMode, now time.Time) (DecayResult, error) {
	switch mode {
	case ResetSoft:
		p := s.params
		p.Gamma *= 2
		return s.sweep(now, p), nil
	case ResetHard:
		res := DecayResult{At: now, Scanned: len(s.order)}
		for r := range s.All() {
			res.Evicted = append(res.Evicted, r)
		}
		s.records = make(map[string]*Record)
		s.order = nil
		return res, nil
	}
	return DecayResult{}, fmt.Errorf("%w: unknown reset mode %q", ErrInvalidInput, mode)
}
