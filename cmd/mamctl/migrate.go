package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/duelhall/mambot/mambot/migration"
)

var (
	mongoURI  string
	mongoDB   string
	batchSize int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "copy a legacy MongoDB deployment into the relational store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		migrator := migration.NewMigrator(a.DB.BunDB())
		migrator.SetBatchSize(batchSize)
		if err := migrator.Connect(ctx, mongoURI, mongoDB); err != nil {
			return err
		}
		if err := migrator.MigrateAll(ctx); err != nil {
			slog.Error("Migration failed", slog.Any("error", err))
			return err
		}

		slog.Info("Migration completed successfully")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&mongoURI, "mongo-uri", "mongodb://localhost:27017", "legacy mongo URI")
	migrateCmd.Flags().StringVar(&mongoDB, "mongo-db", "mambot", "legacy mongo database name")
	migrateCmd.Flags().IntVar(&batchSize, "batch", 1000, "insert batch size")
	rootCmd.AddCommand(migrateCmd)
}
