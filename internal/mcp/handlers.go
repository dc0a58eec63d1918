package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/peti12352/sentinel-verifier/internal/model"
	"github.com/peti12352/sentinel-verifier/internal/session"
)

// --- Input/Output types ---

// TransferInput defines parameters for the transfer_funds tool.
type TransferInput struct {
	Amount      int64  `json:"amount" jsonschema:"amount to transfer in whole currency units"`
	Destination string `json:"destination" jsonschema:"destination account id"`
}

// BalanceInput defines parameters for the get_balance tool.
type BalanceInput struct {
	AccountID string `json:"account_id" jsonschema:"account id to check"`
}

// EmptyInput is used by tools that take no parameters.
type EmptyInput struct{}

// ConfirmInput defines parameters for the confirm_action tool.
type ConfirmInput struct {
	Response string `json:"response" jsonschema:"the user's verbatim response; exactly CONFIRM executes"`
}

// ProposeOutput reports the disposition of a proposed action.
type ProposeOutput struct {
	SessionID string         `json:"session_id"`
	Status    string         `json:"status"`
	Code      string         `json:"code,omitempty"`
	Reason    string         `json:"reason"`
	Pending   map[string]any `json:"pending,omitempty"`
}

// ResolveOutput reports the outcome of confirming or cancelling.
type ResolveOutput struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	Result    string `json:"result,omitempty"`
}

// HistoryOutput lists the session's attempted actions.
type HistoryOutput struct {
	SessionID string           `json:"session_id"`
	Entries   []map[string]any `json:"entries"`
}

// --- Handlers ---

func (s *Server) propose(ctx context.Context, toolName string, args map[string]any) (*mcpsdk.CallToolResult, ProposeOutput, error) {
	action := model.ParseProposal(toolName, args)
	outcome, err := s.gateway.Propose(ctx, s.sessionID, action)
	if err != nil {
		return nil, ProposeOutput{}, err
	}

	out := ProposeOutput{
		SessionID: outcome.SessionID,
		Status:    string(outcome.Status),
		Code:      string(outcome.Code),
		Reason:    outcome.Reason,
		Pending:   outcome.Pending,
	}

	if outcome.Status == session.StatusBlocked {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleTransfer(ctx context.Context, req *mcpsdk.CallToolRequest, input TransferInput) (*mcpsdk.CallToolResult, ProposeOutput, error) {
	return s.propose(ctx, string(model.KindTransfer), map[string]any{
		"amount":      input.Amount,
		"destination": input.Destination,
	})
}

func (s *Server) handleGetBalance(ctx context.Context, req *mcpsdk.CallToolRequest, input BalanceInput) (*mcpsdk.CallToolResult, ProposeOutput, error) {
	return s.propose(ctx, string(model.KindGetBalance), map[string]any{
		"account_id": input.AccountID,
	})
}

func (s *Server) handleListAccounts(ctx context.Context, req *mcpsdk.CallToolRequest, input EmptyInput) (*mcpsdk.CallToolResult, ProposeOutput, error) {
	return s.propose(ctx, string(model.KindListAccounts), nil)
}

func (s *Server) handleGetRules(ctx context.Context, req *mcpsdk.CallToolRequest, input EmptyInput) (*mcpsdk.CallToolResult, ProposeOutput, error) {
	return s.propose(ctx, string(model.KindGetRules), nil)
}

func (s *Server) resolve(ctx context.Context, input string) (*mcpsdk.CallToolResult, ResolveOutput, error) {
	outcome, err := s.gateway.Resolve(ctx, s.sessionID, input)
	if errors.Is(err, session.ErrNothingPending) {
		out := ResolveOutput{
			SessionID: s.sessionID,
			Status:    string(session.StatusSkipped),
			Reason:    "no action is awaiting confirmation",
		}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	if err != nil {
		return nil, ResolveOutput{}, err
	}

	out := ResolveOutput{
		SessionID: outcome.SessionID,
		Status:    string(outcome.Status),
		Reason:    outcome.Reason,
		Result:    outcome.Result,
	}

	if outcome.Status == session.StatusFailed {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleConfirm(ctx context.Context, req *mcpsdk.CallToolRequest, input ConfirmInput) (*mcpsdk.CallToolResult, ResolveOutput, error) {
	return s.resolve(ctx, input.Response)
}

func (s *Server) handleCancel(ctx context.Context, req *mcpsdk.CallToolRequest, input EmptyInput) (*mcpsdk.CallToolResult, ResolveOutput, error) {
	return s.resolve(ctx, "CANCEL")
}

func (s *Server) handleHistory(ctx context.Context, req *mcpsdk.CallToolRequest, input EmptyInput) (*mcpsdk.CallToolResult, HistoryOutput, error) {
	entries := s.gateway.History(s.sessionID)
	out := HistoryOutput{SessionID: s.sessionID}
	for _, e := range entries {
		out.Entries = append(out.Entries, e.Record())
	}
	return nil, out, nil
}
