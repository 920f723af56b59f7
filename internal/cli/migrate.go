package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantum-lens/lens/internal/config"
	"github.com/quantum-lens/lens/internal/store"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending application database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cfg.Database.Name == "" {
				return fmt.Errorf("database.name is required")
			}

			appStore, err := store.Open(cfg.Database.DSN())
			if err != nil {
				return err
			}
			defer func() { _ = appStore.Close() }()

			if err := appStore.Migrate(); err != nil {
				return err
			}

			version, err := appStore.MigrationVersion()
			if err != nil {
				return err
			}
			fmt.Printf("database migrated to version %d\n", version)
			return nil
		},
	}
}
