package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ahrav/go-autolab/infrastructure/store"
	"github.com/ahrav/go-autolab/internal/domain"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Manage the SQLite schema",
		Long:      "Apply pending migrations (up), roll back the latest one (down) or print the schema version. The default action is up.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			if opts.cfg.Database.InMemory {
				return fmt.Errorf("%w: migrate needs a database file", domain.ErrInvalidConfiguration)
			}

			st, err := store.OpenSQLiteNoMigrate(opts.cfg.Database.Path, store.WithLogger(opts.logger.Named("store")))
			if err != nil {
				return err
			}
			defer st.Close()

			switch action {
			case "up":
				if err := st.MigrateUp(); err != nil {
					return err
				}
			case "down":
				if err := st.MigrateDown(); err != nil {
					return err
				}
			case "version":
			default:
				return fmt.Errorf("unknown migrate action %q", action)
			}

			version, dirty, err := st.MigrateVersion()
			if err != nil {
				return err
			}
			opts.logger.Info("schema version", zap.String("action", action), zap.Uint("version", version), zap.Bool("dirty", dirty))
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}
