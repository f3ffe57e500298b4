package engine

// Background maintenance.
//
// Decay and autosave are driven from here, never from inside the store:
//   - StartDecayTimer runs a pass on startup and then every interval
//   - StartAutosave snapshots every interval and prunes to keep
//   - Stop ends both loops and cancels any in-flight save
//   - Shutdown stops the loops and writes a final snapshot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/mnemo/internal/store"
)

// StartDecayTimer runs decay on startup and then every interval.
func (e *Engine) StartDecayTimer(interval time.Duration) {
	e.Decay()
	e.every(interval, func() { e.Decay() })
}

// StartAutosave snapshots the store every interval, keeping the newest keep
// snapshots. keep <= 0 disables pruning.
func (e *Engine) StartAutosave(interval time.Duration, keep int) {
	e.every(interval, func() {
		if _, err := e.Save(e.ctx, store.ReasonAutosave); err != nil {
			e.logger.Warn("autosave", zap.Error(err))
			return
		}
		if keep <= 0 {
			return
		}
		if _, err := e.Prune(e.ctx, keep); err != nil {
			e.logger.Warn("autosave prune", zap.Error(err))
		}
	})
}

func (e *Engine) every(interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines and waits for them.
func (e *Engine) Stop() {
	e.once.Do(func() {
		close(e.stopCh)
		e.cancel()
	})
	e.wg.Wait()
}

// Shutdown stops background work and saves a final snapshot.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.Stop()
	h, err := e.Save(ctx, store.ReasonShutdown)
	if err != nil {
		return err
	}
	e.logger.Info("shutdown snapshot", zap.String("name", h.Name), zap.Int("records", h.Records))
	return nil
}
