package main

import (
	"time"

	"github.com/fjod/go_fashionary/internal/repository"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the sample orders into the configured database",
	Args:  cobra.NoArgs,
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	repo, err := openSQL(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.RunMigrations(cfg.MigrationsPath); err != nil {
		return err
	}
	n, err := repository.Seed(cmd.Context(), repo, repository.SampleOrders(time.Now()))
	if err != nil {
		return err
	}
	log.WithField("created", n).Info("sample orders seeded")
	return nil
}
