package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/kiosk/internal/attendance"
	"github.com/andresmejia3/kiosk/internal/backend"
	"github.com/andresmejia3/kiosk/internal/utils"
)

var attendanceJSON bool

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Fetch and print the attendance log",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := backend.New(cfg.BackendURL)
		if err != nil {
			utils.ShowError("Invalid backend URL", err, nil)
			return err
		}

		view := attendance.NewView(client, logger)
		if err := view.Sync(cmd.Context()); err != nil {
			utils.ShowError("Failed to fetch attendance", err, nil)
			return err
		}

		if attendanceJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view.Rows())
		}
		return view.Render(os.Stdout)
	},
}

func init() {
	attendanceCmd.Flags().BoolVar(&attendanceJSON, "json", false, "Print rows as JSON")
	rootCmd.AddCommand(attendanceCmd)
}
