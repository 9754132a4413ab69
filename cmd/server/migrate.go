package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		// newApp applies migrations while opening the database.
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		a.logger.Info("database is up to date", zap.String("path", a.db.Path()))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}
