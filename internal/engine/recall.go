package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lazypower/mnemo/internal/memory"
)

// Weights biases recall toward a memory channel, indexed episodic, semantic,
// procedural. The zero value weighs every channel equally.
type Weights [3]float64

// SourceWeights is the stock episodic-leaning channel mix.
var SourceWeights = Weights{0.4, 0.3, 0.3}

// Validate reports whether every weight is finite and non-negative. All-zero
// weights are valid and mean uniform.
func (w Weights) Validate() error {
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: channel weight %d must be finite and non-negative, got %v", memory.ErrInvalidInput, i, v)
		}
	}
	return nil
}

// ParseWeights reads "e,s,p" or a single weight shared by every channel.
func ParseWeights(raw string) (Weights, error) {
	var w Weights
	parts := strings.Split(raw, ",")
	if len(parts) != 1 && len(parts) != 3 {
		return w, fmt.Errorf("%w: weights wants 1 or 3 values", memory.ErrInvalidInput)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return w, fmt.Errorf("%w: weight %q: %v", memory.ErrInvalidInput, p, err)
		}
		w[i] = v
	}
	if len(parts) == 1 {
		w[1], w[2] = w[0], w[0]
	}
	return w, w.Validate()
}

// factor returns kind's weight relative to the strongest channel, in [0,1].
func (w Weights) factor(kind memory.Kind) float64 {
	top := math.Max(w[0], math.Max(w[1], w[2]))
	if top == 0 {
		return 1
	}
	switch kind {
	case memory.Semantic:
		return w[1] / top
	case memory.Procedural:
		return w[2] / top
	default:
		return w[0] / top
	}
}

// RecencyBoost rewards recently retrieved records: it halves every halfLife
// since lastAccessed and lies in (0,1].
func RecencyBoost(lastAccessed, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	elapsed := now.Sub(lastAccessed)
	if elapsed <= 0 {
		return 1
	}
	return math.Exp2(-elapsed.Hours() / halfLife.Hours())
}

// Match is a scored recall hit.
type Match struct {
	Record     memory.Record `json:"record"`
	Score      float64       `json:"score"`
	Similarity float64       `json:"similarity"`
	Recency    float64       `json:"recency"`
}

// RecallOpts narrows a single recall.
type RecallOpts struct {
	Limit    int      // max results (default Ranker.Limit)
	Category string   // filter by category (empty = all)
	Weights  *Weights // overrides Ranker.Weights
}

// Ranker scores stored records against a query.
type Ranker struct {
	Similarity      Similarity
	Weights         Weights
	RecencyHalfLife time.Duration
	MinRelevance    float64
	Limit           int

	// Fit, when set, builds Similarity from the stored contents. Refit calls
	// it; the engine refits after restores, decay passes and resets.
	Fit func(docs []string) Similarity
}

// FitTFIDF fits a TF-IDF model to docs.
func FitTFIDF(docs []string) Similarity {
	return NewTFIDF(docs, 0).Similarity
}

// Refit rebuilds Similarity from the contents of s. It does nothing when Fit
// is nil.
func (rk *Ranker) Refit(s *memory.Store) {
	if rk.Fit == nil {
		return
	}
	docs := make([]string, 0, s.Len())
	for r := range s.All() {
		docs = append(docs, r.Content)
	}
	rk.Similarity = rk.Fit(docs)
}

// Defaults used by NewRanker.
const (
	DefaultRecencyHalfLife = 168 * time.Hour
	DefaultMinRelevance    = 0.01
	DefaultLimit           = 10
)

// NewRanker returns a Ranker using sim (KeywordSimilarity when nil).
func NewRanker(sim Similarity) *Ranker {
	if sim == nil {
		sim = KeywordSimilarity
	}
	return &Ranker{
		Similarity:      sim,
		RecencyHalfLife: DefaultRecencyHalfLife,
		MinRelevance:    DefaultMinRelevance,
		Limit:           DefaultLimit,
	}
}

// Rank scores every record in s against query at now without side effects.
//
//	score = similarity · current importance · recency boost · channel weight
//
// Records scoring below MinRelevance are dropped. Results are ordered by
// score, then newest creation first.
func (rk *Ranker) Rank(s *memory.Store, query string, opts RecallOpts, now time.Time) []Match {
	w := rk.Weights
	if opts.Weights != nil {
		w = *opts.Weights
	}
	if err := w.Validate(); err != nil {
		panic(fmt.Sprintf("engine: rank with invalid weights: %v", err))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = rk.Limit
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	var out []Match
	for r := range s.All() {
		if opts.Category != "" && r.Category != opts.Category {
			continue
		}
		sim := rk.Similarity(r.Content, query)
		if math.IsNaN(sim) || sim < 0 || sim > 1 {
			panic(fmt.Sprintf("engine: similarity for %s out of range: %v", r.ID, sim))
		}
		if sim == 0 {
			continue
		}
		recency := RecencyBoost(r.LastAccessedAt, now, rk.RecencyHalfLife)
		score := sim * r.CurrentImportance * recency * w.factor(r.Kind)
		if score < rk.MinRelevance || score == 0 {
			continue
		}
		out = append(out, Match{Record: r, Score: score, Similarity: sim, Recency: recency})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.After(b.Record.CreatedAt)
		}
		return a.Record.ID < b.Record.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Recall ranks s against query and reinforces every returned record: its
// access count grows by one and its last access moves to now. The returned
// records reflect the reinforcement. An empty store or a query with no hits
// yields an empty slice.
func (rk *Ranker) Recall(s *memory.Store, query string, opts RecallOpts, now time.Time) []Match {
	matches := rk.Rank(s, query, opts, now)
	for i := range matches {
		if err := s.Touch(matches[i].Record.ID, now); err != nil {
			panic(fmt.Sprintf("engine: touch ranked record: %v", err))
		}
		matches[i].Record.AccessCount++
		matches[i].Record.LastAccessedAt = now
	}
	if matches == nil {
		matches = []Match{}
	}
	return matches
}
