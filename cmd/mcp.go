package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cityfix/cityfix/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client browse the issue layer, toggle filters, and
file reports. Configure with:

  {
    "mcpServers": {
      "cityfix": { "command": "cityfix", "args": ["mcp"] }
    }
  }

Available tools: cityfix_list_issues, cityfix_load_issues,
cityfix_report_issue, cityfix_set_filter, cityfix_report_status,
cityfix_cancel_report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := mcp.NewServer(a.store, a.engine, a.workflow, a.client)
		return srv.ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
