package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ahrav/go-autolab/internal/application"
)

// rootOptions holds the global flags and what PersistentPreRunE builds
// from them.
type rootOptions struct {
	configPath string
	envFile    string
	verbose    bool
	inMemory   bool

	cfg    application.AppConfig
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "autolab",
		Short: "Dual research labs that compete on driving events and evolve their strategies",
		Long: `autolab runs two research labs, SafetyLab and PerformanceLab, on every
driving event. Each lab plans, retrieves, reads, critiques and synthesizes
papers from its catalog; a deterministic judge scores both syntheses and
the meta-learner evolves each lab genome from the verdict.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config; ignored when absent")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&opts.inMemory, "in-memory", false, "keep all state in memory instead of SQLite")

	cmd.AddCommand(
		newServeCmd(opts),
		newAnalyzeCmd(opts),
		newGenomesCmd(opts),
		newMigrateCmd(opts),
	)
	return cmd
}

// load reads the dotenv file, the config and builds the logger.
func (o *rootOptions) load() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", o.envFile, err)
		}
	}

	cfg, err := application.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.inMemory {
		cfg.Database.InMemory = true
	}
	o.cfg = cfg

	logger, err := newLogger(cfg.Logging, o.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	o.logger = logger
	return nil
}

func newLogger(cfg application.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
