package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			st, pg, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := migrate(cmd.Context(), pg, log); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}
