package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cityfix/cityfix/internal/output"
)

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 5, 64)
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Fetch the issue layer and show what it contains",
	Long:  "Fetch the current issue layer from the WFS service and print every usable feature. Features with malformed geometry are skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return loadRun()
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func loadRun() error {
	a, err := getApp()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if err := loadIssues(ctx, a); err != nil {
		return err
	}

	entries, err := a.store.All(ctx)
	if err != nil {
		return err
	}

	ui.Success("Loaded %d issues", len(entries))
	if len(entries) == 0 {
		return nil
	}

	table := ui.Table([]string{"ID", "Category", "Status", "Severity", "Lat", "Lon"})
	for _, e := range entries {
		_ = table.Append([]string{
			e.Issue.ID,
			string(e.Issue.Category),
			output.StatusColor(string(e.Issue.Status)),
			output.SeverityColor(e.Issue.Severity),
			formatCoord(e.Issue.Latitude),
			formatCoord(e.Issue.Longitude),
		})
	}
	return table.Render()
}
