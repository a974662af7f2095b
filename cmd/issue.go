package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cityfix/cityfix/internal/filter"
	"github.com/cityfix/cityfix/internal/output"
	"github.com/cityfix/cityfix/internal/severity"
	"github.com/cityfix/cityfix/internal/store"
)

var (
	issueCategory string
	issueStatus   string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Browse issues from the feature service",
	Long:  "List and inspect reported city issues. Each invocation fetches the current layer from the WFS service.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

func init() {
	issueListCmd.Flags().StringVar(&issueCategory, "category", "", "Filter by category: broken_light, roadwork, blockage")
	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status: open, in_progress, resolved")

	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueListRun() error {
	a, err := getApp()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if err := loadIssues(ctx, a); err != nil {
		return err
	}

	// Flags map onto the filter engine: everything starts enabled, a
	// flag narrows its dimension to the one requested tag.
	if err := applyDimensionFlag(ctx, a.engine, filter.DimCategory, issueCategory); err != nil {
		return err
	}
	if err := applyDimensionFlag(ctx, a.engine, filter.DimStatus, issueStatus); err != nil {
		return err
	}

	entries, err := a.store.All(ctx)
	if err != nil {
		return err
	}

	visible := make([]*store.Entry, 0, len(entries))
	for _, e := range entries {
		if a.engine.Attached(e.Issue.ID) {
			visible = append(visible, e)
		}
	}

	if len(visible) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Category", "Status", "Severity", "Description", "Reported"})
	for _, e := range visible {
		_ = table.Append([]string{
			e.Issue.ID,
			string(e.Issue.Category),
			output.StatusColor(string(e.Issue.Status)),
			output.SeverityColor(e.Issue.Severity),
			e.Issue.TruncatedDescription(),
			e.Issue.Timestamp,
		})
	}
	_ = table.Render()
	return nil
}

// applyDimensionFlag disables every tag in the dimension except the requested one.
func applyDimensionFlag(ctx context.Context, engine *filter.Engine, dim filter.Dimension, want string) error {
	if want == "" {
		return nil
	}
	// Validate before touching toggles so a typo leaves everything enabled.
	if err := engine.Toggle(ctx, dim, want, true); err != nil {
		return err
	}

	state := engine.Enabled()
	tags := state.Categories
	if dim == filter.DimStatus {
		tags = state.Statuses
	}
	for _, tag := range tags {
		if tag != want {
			if err := engine.Toggle(ctx, dim, tag, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func issueShowRun(id string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if err := loadIssues(ctx, a); err != nil {
		return err
	}

	entry, err := a.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("issue %s: %w", id, err)
	}
	issue := entry.Issue

	fmt.Fprintf(ui.Out, "%s %s\n", output.Cyan(issue.ID), string(issue.Category))
	fmt.Fprintf(ui.Out, "  Status:   %s\n", output.StatusColor(string(issue.Status)))
	fmt.Fprintf(ui.Out, "  Severity: %s (%s)\n", output.SeverityColor(issue.Severity), severity.Classify(issue.Severity))
	fmt.Fprintf(ui.Out, "  Location: %.5f, %.5f\n", issue.Latitude, issue.Longitude)
	fmt.Fprintf(ui.Out, "  Reported: %s\n", issue.Timestamp)
	if issue.Description != "" {
		fmt.Fprintf(ui.Out, "  %s\n", issue.Description)
	}
	return nil
}
