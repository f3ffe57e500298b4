package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lazypower/mnemo/internal/config"
	"github.com/lazypower/mnemo/internal/engine"
	"github.com/lazypower/mnemo/internal/memory"
	"github.com/lazypower/mnemo/internal/metrics"
	"github.com/lazypower/mnemo/internal/snapshot"
	"github.com/lazypower/mnemo/internal/store"
)

// app is an engine opened from config, plus the resources it holds.
type app struct {
	eng     *engine.Engine
	ranker  *engine.Ranker
	journal *store.DB
	metrics *metrics.Collector
	snapDir string
}

func (a *app) Close() {
	a.eng.Stop()
	if a.journal != nil {
		a.journal.Close()
	}
}

// openApp builds the engine described by c and restores the newest snapshot.
func openApp(ctx context.Context, c config.Config, log *zap.Logger) (*app, error) {
	params, err := c.Params()
	if err != nil {
		return nil, err
	}

	snapDir := c.Snapshot.Dir
	if snapDir == "" {
		if snapDir, err = snapshot.DefaultDir(); err != nil {
			return nil, fmt.Errorf("resolve snapshot dir: %w", err)
		}
	}
	codec, err := buildCodec(c)
	if err != nil {
		return nil, err
	}
	snaps := snapshot.NewManager(snapshot.NewDirMedium(snapDir),
		snapshot.WithCodec(codec),
		snapshot.WithLogger(log.Named("snapshot")))

	a := &app{
		metrics: metrics.New(metrics.DefaultConfig()),
		snapDir: snapDir,
	}

	if c.Journal.Enabled {
		path := c.Journal.Path
		if path == "" {
			if path, err = store.DefaultDBPath(); err != nil {
				return nil, fmt.Errorf("resolve journal path: %w", err)
			}
		}
		if a.journal, err = store.Open(path); err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	weights, err := c.Weights()
	if err != nil {
		return nil, err
	}
	a.ranker = engine.NewRanker(nil)
	useSimilarity(a.ranker, c.Recall.Similarity)
	a.ranker.Weights = weights
	a.ranker.RecencyHalfLife = c.Recall.RecencyHalfLife
	a.ranker.MinRelevance = c.Recall.MinRelevance
	if c.Recall.Limit > 0 {
		a.ranker.Limit = c.Recall.Limit
	}

	opts := []engine.Option{
		engine.WithRanker(a.ranker),
		engine.WithMetrics(a.metrics),
		engine.WithLogger(log.Named("engine")),
	}
	if a.journal != nil {
		opts = append(opts, engine.WithJournal(a.journal))
	}
	a.eng = engine.New(memory.New(memory.WithLogger(log.Named("memory"))), snaps, opts...)
	// Configured params win over the ones captured in any snapshot.
	if err := a.eng.SetParams(params); err != nil {
		a.Close()
		return nil, err
	}

	h, err := a.eng.RestoreLatest(ctx)
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshots):
		log.Debug("no snapshot to restore", zap.String("dir", snapDir))
	case err != nil:
		a.Close()
		return nil, fmt.Errorf("restore %s: %w", h.Name, err)
	default:
		log.Debug("restored snapshot", zap.String("name", h.Name), zap.Int("records", a.eng.Len()))
	}

	return a, nil
}

// useSimilarity selects the ranker's similarity. TF-IDF is refitted by the
// engine whenever the record set is replaced or decayed.
func useSimilarity(r *engine.Ranker, name string) {
	switch name {
	case "substring":
		r.Similarity = engine.SubstringSimilarity
	case "tfidf":
		r.Fit = engine.FitTFIDF
	default:
		r.Similarity = engine.KeywordSimilarity
	}
}

// buildCodec stacks compression under encryption as configured.
func buildCodec(c config.Config) (snapshot.Codec, error) {
	var chain snapshot.Chain
	if c.Snapshot.Compress {
		z, err := snapshot.NewZstd()
		if err != nil {
			return nil, err
		}
		chain = append(chain, z)
	}
	key, err := c.SnapshotKey()
	if err != nil {
		return nil, err
	}
	if key != nil {
		sealed, err := snapshot.NewSealed(key)
		if err != nil {
			return nil, err
		}
		chain = append(chain, sealed)
	}

	switch len(chain) {
	case 0:
		return snapshot.Identity{}, nil
	case 1:
		return chain[0], nil
	}
	return chain, nil
}

// persist saves the store after a mutating command and prunes old snapshots.
func (a *app) persist(ctx context.Context, keep int) (snapshot.Handle, error) {
	h, err := a.eng.Save(ctx, store.ReasonManual)
	if err != nil {
		return h, fmt.Errorf("save snapshot: %w", err)
	}
	if keep > 0 {
		if _, err := a.eng.Prune(ctx, keep); err != nil {
			return h, fmt.Errorf("prune snapshots: %w", err)
		}
	}
	return h, nil
}
