package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/assessor/internal/config"
	"github.com/abhisek/assessor/internal/logging"
	"github.com/abhisek/assessor/internal/store"
)

var rootCmd = &cobra.Command{
	Use:          "assessor",
	Short:        "Adaptive practice and assessment",
	Long:         "Assessor runs adaptive practice sessions over an item bank, tracking per-topic performance and adjusting difficulty as you answer.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides ASSESSOR_DB env var)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default $XDG_CONFIG_HOME/assessor/assessor.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(practiceCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

// env is what every data command needs.
type env struct {
	cfg   *config.Config
	log   *zap.Logger
	store *store.Store
}

// openEnv loads config, builds the logger and opens the store.
func openEnv(cmd *cobra.Command) (*env, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.Options{File: file, Flags: cmd.Flags()})
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Debug("store opened", zap.String("path", dbPath))

	return &env{cfg: cfg, log: log, store: st}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.log.Warn("close store", zap.Error(err))
	}
	_ = e.log.Sync()
}

// resolveDBPath returns the database path using the configured db value
// (set by --db or ASSESSOR_DB), then the default XDG path.
func resolveDBPath(cfg *config.Config) (string, error) {
	if cfg.DB != "" {
		return cfg.DB, store.EnsureDir(cfg.DB)
	}
	return store.DefaultDBPath()
}

// userDomainFlags registers the flags shared by per-learner commands.
func userDomainFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("user", "u", "", "Learner id (default $USER)")
	cmd.Flags().StringP("domain", "d", "", "Subject domain")
	_ = cmd.MarkFlagRequired("domain")
}

func userDomain(cmd *cobra.Command) (string, string) {
	user, _ := cmd.Flags().GetString("user")
	domain, _ := cmd.Flags().GetString("domain")
	return resolveUser(user), domain
}
