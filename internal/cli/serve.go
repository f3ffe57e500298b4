package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/mnemo/internal/config"
	"github.com/lazypower/mnemo/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Serve the memory store over HTTP. Decay and autosave run in the background and a final snapshot is written on shutdown.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []server.Option{
		server.WithMetrics(a.metrics),
		server.WithLogger(logger.Named("http")),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, server.WithCORS(cfg.Server.CORSOrigins))
	}
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           server.New(a.eng, VersionString(), opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Memory.DecayInterval > 0 {
		a.eng.StartDecayTimer(cfg.Memory.DecayInterval)
	}
	a.eng.StartAutosave(cfg.Snapshot.AutosaveInterval, cfg.Snapshot.Keep)

	if w := watchParams(a); w != nil {
		defer w.Stop()
	}

	logger.Info("mnemo serving",
		zap.String("addr", httpServer.Addr),
		zap.String("snapshots", a.snapDir),
		zap.Int("records", a.eng.Len()),
		zap.Bool("journal", a.journal != nil))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		herr := httpServer.Shutdown(sctx)
		if err := a.eng.Shutdown(sctx); err != nil {
			return fmt.Errorf("final snapshot: %w", err)
		}
		return herr
	})
	return g.Wait()
}

// watchParams hot-reloads decay params from the config file. Other settings
// need a restart.
func watchParams(a *app) *config.Watcher {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil
		}
	}
	w, err := config.Watch(path, logger.Named("config"), func(c config.Config) {
		p, err := c.Params()
		if err == nil {
			err = a.eng.SetParams(p)
		}
		if err != nil {
			logger.Warn("reload decay params", zap.Error(err))
			return
		}
		logger.Info("decay params reloaded",
			zap.Float64("alpha", p.Alpha),
			zap.Float64("beta", p.Beta),
			zap.Float64("gamma", p.Gamma),
			zap.Float64("eviction_threshold", p.EvictionThreshold))
	})
	if err != nil {
		logger.Debug("config not watched", zap.String("path", path), zap.Error(err))
		return nil
	}
	return w
}
