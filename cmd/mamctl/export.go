package main

import (
	"os"

	"github.com/spf13/cobra"
)

var uploadExport bool

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "write a point-in-time collection snapshot as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if uploadExport {
			return a.SnapshotCollections(ctx)
		}

		data, err := a.QueryService.ExportCollectionCSV(ctx)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	exportCmd.Flags().BoolVar(&uploadExport, "upload", false, "upload to object storage instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
