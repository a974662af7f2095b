package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cityfix/cityfix/internal/models"
	"github.com/cityfix/cityfix/internal/report"
)

var (
	reportLat      float64
	reportLon      float64
	reportCategory string
	reportSeverity int
	reportDesc     string
	reportClassify bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report a new issue to the feature service",
	Long: `Report a new issue at a coordinate and submit it as a WFS transaction.

With --classify the category and severity are inferred from the
description: by an LLM when an Anthropic API key is configured,
otherwise by keyword heuristics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportRun()
	},
}

func init() {
	reportCmd.Flags().Float64Var(&reportLat, "lat", 0, "Latitude of the issue (required)")
	reportCmd.Flags().Float64Var(&reportLon, "lon", 0, "Longitude of the issue (required)")
	reportCmd.Flags().StringVar(&reportCategory, "category", string(models.CategoryBrokenLight), "Category: broken_light, roadwork, blockage")
	reportCmd.Flags().IntVar(&reportSeverity, "severity", 1, "Severity 1-5")
	reportCmd.Flags().StringVar(&reportDesc, "desc", "", "Description of the issue")
	reportCmd.Flags().BoolVar(&reportClassify, "classify", false, "Infer category and severity from the description")
	_ = reportCmd.MarkFlagRequired("lat")
	_ = reportCmd.MarkFlagRequired("lon")

	rootCmd.AddCommand(reportCmd)
}

func reportRun() error {
	a, err := getApp()
	if err != nil {
		return err
	}
	ctx := context.Background()

	category := reportCategory
	sev := reportSeverity

	if reportClassify {
		if reportDesc == "" {
			return fmt.Errorf("--classify requires --desc")
		}
		category, sev = classifyReport(ctx, reportDesc)
		ui.Info("Classified as %s, severity %d", category, sev)
	}

	if dryRun {
		ui.DryRunMsg("Would report %s (severity %d) at %.5f, %.5f: %s",
			category, sev, reportLat, reportLon, reportDesc)
		return nil
	}

	if err := a.workflow.Arm(); err != nil {
		return err
	}
	a.workflow.Pick(report.Coordinate{Lat: reportLat, Lon: reportLon})
	if err := a.workflow.SetDraft(report.Draft{
		Category:    models.Category(category),
		Severity:    sev,
		Description: reportDesc,
	}); err != nil {
		a.workflow.Cancel()
		return err
	}

	issue, err := a.workflow.Submit(ctx)
	if err != nil {
		a.workflow.Cancel()
		return fmt.Errorf("submit report: %w", err)
	}

	ui.Success("Reported issue %s at %.5f, %.5f", issue.ID, issue.Latitude, issue.Longitude)
	return nil
}

// classifyReport prefers the LLM and falls back to keyword heuristics.
func classifyReport(ctx context.Context, description string) (string, int) {
	if client := newLLMClient(); client != nil {
		if s, err := client.SuggestClassification(ctx, description); err == nil {
			return string(s.Category), s.Severity
		} else {
			ui.VerboseLog("LLM classification failed, using keywords: %v", err)
		}
	}
	return classifyCategory(description), classifySeverity(description)
}
