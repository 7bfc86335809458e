package cli

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the review tables in the configured database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.DB.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		log.WithField("driver", cfg.Database.Driver).Info("migration complete")
		return nil
	},
}
