package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/kiosk/internal/backend"
	"github.com/andresmejia3/kiosk/internal/export"
	"github.com/andresmejia3/kiosk/internal/utils"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the attendance log as attendance.csv",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Export.Dir
		if cmd.Flags().Changed("export-dir") {
			dir = exportDir
		}

		client, err := backend.New(cfg.BackendURL)
		if err != nil {
			utils.ShowError("Invalid backend URL", err, nil)
			return err
		}

		path, err := export.New(client, dir, logger, export.WithProgress(os.Stderr)).Export(cmd.Context())
		if err != nil {
			utils.ShowError("Export failed, nothing was saved", err, nil)
			return err
		}
		fmt.Printf("💾 Saved %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "export-dir", ".", "Directory attendance.csv is saved to")
	rootCmd.AddCommand(exportCmd)
}
