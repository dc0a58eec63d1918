package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/peti12352/sentinel-verifier/internal/engine"
	sentinelmcp "github.com/peti12352/sentinel-verifier/internal/mcp"
)

var (
	mcpDB       string
	mcpRules    string
	mcpAuditLog string
	mcpSession  string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpDB, "db", "", "Path to SQLite account store (empty: in-memory demo dataset)")
	mcpCmd.Flags().StringVar(&mcpRules, "rules", "", "Path to transaction rules YAML")
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Path to audit log JSONL file")
	mcpCmd.Flags().StringVar(&mcpSession, "session", "", "Session id (empty: generated)")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs sentinel as an MCP (Model Context Protocol) server over stdio.\nExposes verified banking tools: transfer_funds, get_balance, list_accounts,\nget_rules, confirm_action, cancel_action, account_history.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := sentinelmcp.Config{
		DBPath:       mcpDB,
		RulesPath:    mcpRules,
		AuditLogPath: mcpAuditLog,
		SessionID:    mcpSession,
	}

	srv, err := sentinelmcp.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	// Hot-reload the rules file while serving
	if mcpRules != "" {
		reloader, err := engine.NewReloader(srv.Gateway())
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
		} else {
			go reloader.Run(ctx)
		}
	}

	fmt.Fprintf(os.Stderr, "sentinel MCP server on stdio (session %s)\n", srv.SessionID())
	return srv.Run(ctx)
}
