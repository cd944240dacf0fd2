package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/attendface/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, err := database.Open(cfg.Database)
	if err != nil {
		if errors.Is(err, database.ErrNoDSN) {
			return fmt.Errorf("%w (set DATABASE_URL or database.dsn)", err)
		}
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Database schema is up to date.")
	return nil
}
