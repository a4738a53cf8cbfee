package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/arkhan2/invoicing-system-sub001/internal/platform/db"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Example: `  invoicectl migrate
  invoicectl migrate --list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list, _ := cmd.Flags().GetBool("list"); list {
				migrations, err := db.Migrations()
				if err != nil {
					return err
				}
				for _, m := range migrations {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", m.Version, m.Filename)
				}
				return nil
			}

			pool, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.Migrate(cmd.Context(), pool, opts.logger)
			if err != nil {
				return err
			}
			opts.logger.Info("migrations complete", slog.Int("applied", applied))
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}
	cmd.Flags().Bool("list", false, "List embedded migrations without connecting")
	return cmd
}
