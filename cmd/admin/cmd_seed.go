package main

import (
	"fmt"

	"github.com/EcoWatch/EcoWatch-Backend/internal/app"
	"github.com/EcoWatch/EcoWatch-Backend/internal/seeds"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo users, incidents and resources",
	Long: `Loads the embedded demo fixture. Existing users, incidents and
resources are left alone, so the command can be re-run safely.

Every seeded user gets the password "password".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		store, closeStore, err := app.OpenStore(cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		res, err := seeds.SeedAll(cmd.Context(), store, log)
		if err != nil {
			return fmt.Errorf("seeding failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded users=%d incidents=%d resources=%d\n", res.Users, res.Incidents, res.Resources)
		return nil
	},
}
