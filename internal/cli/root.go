package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/mnemo/internal/config"
	"github.com/lazypower/mnemo/internal/logging"
)

var (
	configPath string
	dataDir    string
	envFile    string

	cfg    config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "A memory store where importance decays over time",
	Long: "mnemo keeps discrete memories whose importance decays with age and grows with use. " +
		"Recall ranks what is left against a query and reinforces what it returns.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ~/.mnemo/config.toml)")
	pf.StringVar(&dataDir, "data-dir", "", "directory for snapshots and the journal (default ~/.mnemo)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(historyCmd)
}

// setup loads the environment, config and logger before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		loaded.Snapshot.Dir = filepath.Join(dataDir, "snapshots")
		loaded.Journal.Path = filepath.Join(dataDir, "journal.db")
	}
	cfg = loaded

	l, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	logger = l
	return nil
}
