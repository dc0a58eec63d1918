// Package mcp exposes the guarded banking tools over the Model Context
// Protocol. The agent (the intent producer) connects as an MCP client
// and proposes tool calls; every state-mutating call halts for user
// confirmation before anything executes.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/peti12352/sentinel-verifier/internal/account"
	"github.com/peti12352/sentinel-verifier/internal/engine"
)

// Config holds MCP server configuration.
type Config struct {
	// DBPath is the SQLite account store path. Empty runs on an
	// in-memory store with the default seed dataset.
	DBPath       string
	RulesPath    string
	AuditLogPath string
	// SessionID names the conversation thread. Empty generates one;
	// one stdio server serves one session.
	SessionID string
}

// Server wraps the MCP SDK server around the verification gateway.
type Server struct {
	mcpServer *mcpsdk.Server
	gateway   *engine.Gateway
	sessionID string
	store     account.Store
}

// New creates an MCP server with an opened store and loaded rules.
func New(cfg Config) (*Server, error) {
	var store account.Store
	if cfg.DBPath != "" {
		sqlStore, err := account.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open account store: %w", err)
		}
		store = sqlStore
	} else {
		store = account.NewMemoryStore(account.DefaultSeed())
	}

	gw, err := engine.New(store, engine.Config{
		RulesPath:    cfg.RulesPath,
		AuditLogPath: cfg.AuditLogPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	s := &Server{
		gateway:   gw,
		sessionID: gw.Session(cfg.SessionID).ID,
		store:     store,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "sentinel",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the gateway and the store.
func (s *Server) Close() error {
	err := s.gateway.Close()
	if c, ok := s.store.(interface{ Close() error }); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// SessionID returns the conversation thread this server serves.
func (s *Server) SessionID() string {
	return s.sessionID
}

// Gateway exposes the underlying verification gateway, so callers can
// attach a rules reloader or inspect history.
func (s *Server) Gateway() *engine.Gateway {
	return s.gateway
}

// registerTools adds the guarded banking tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "transfer_funds",
		Description: "Propose a money transfer from the authenticated account. The transfer is verified against transaction rules and halts for user confirmation; nothing moves until the user confirms.",
	}, s.handleTransfer)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_balance",
		Description: "Propose reading the balance of an account. Read-only; still requires user confirmation before running.",
	}, s.handleGetBalance)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_accounts",
		Description: "Propose listing all known accounts.",
	}, s.handleListAccounts)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_rules",
		Description: "Propose reading the active transaction rules.",
	}, s.handleGetRules)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "confirm_action",
		Description: "Relay the user's response to a pending confirmation. Exactly CONFIRM executes the pending action; anything else cancels it.",
	}, s.handleConfirm)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "cancel_action",
		Description: "Cancel the pending action without executing it.",
	}, s.handleCancel)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "account_history",
		Description: "List every attempted action in this session with its final disposition.",
	}, s.handleHistory)
}
