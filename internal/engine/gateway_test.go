package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peti12352/sentinel-verifier/internal/account"
	"github.com/peti12352/sentinel-verifier/internal/audit"
	"github.com/peti12352/sentinel-verifier/internal/model"
	"github.com/peti12352/sentinel-verifier/internal/session"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func newTestGateway(t *testing.T) (*Gateway, *account.MemoryStore, string) {
	t.Helper()
	store := account.NewMemoryStore(account.DefaultSeed())
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	g, err := New(store, Config{AuditLogPath: auditPath})
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g, store, auditPath
}

func proposeTransfer(t *testing.T, g *Gateway, sessionID string, amount int64, destination string) *Outcome {
	t.Helper()
	action := model.ParseProposal("transfer_funds", map[string]any{
		"amount":      amount,
		"destination": destination,
	})
	out, err := g.Propose(context.Background(), sessionID, action)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	return out
}

func TestProposeConfirmExecute(t *testing.T) {
	g, store, auditPath := newTestGateway(t)
	ctx := context.Background()

	out := proposeTransfer(t, g, "s1", 500, "account_b")
	if out.Status != session.StatusAwaitingConfirmation {
		t.Fatalf("expected AWAITING_CONFIRMATION, got %s: %s", out.Status, out.Reason)
	}
	if out.Pending["destination"] != "Account_B" {
		t.Errorf("destination must be canonicalized in pending args, got %v", out.Pending["destination"])
	}

	// Nothing moved yet.
	if bal, _ := store.Balance(ctx, "USER_ACCOUNT"); bal != 25000 {
		t.Errorf("no mutation before confirmation: balance %d", bal)
	}

	out, err := g.Resolve(ctx, "s1", "CONFIRM")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Status != session.StatusExecuted {
		t.Fatalf("expected EXECUTED, got %s: %s", out.Status, out.Reason)
	}
	if !strings.Contains(out.Result, "transferred $500") {
		t.Errorf("unexpected result: %s", out.Result)
	}

	if bal, _ := store.Balance(ctx, "USER_ACCOUNT"); bal != 24500 {
		t.Errorf("sender balance = %d, want 24500", bal)
	}
	if bal, _ := store.Balance(ctx, "Account_B"); bal != 5500 {
		t.Errorf("receiver balance = %d, want 5500", bal)
	}

	result := audit.Verify(auditPath)
	if !result.Valid || result.Lines != 2 {
		t.Errorf("expected intact 2-entry audit chain: valid=%v lines=%d err=%s",
			result.Valid, result.Lines, result.Error)
	}
}

func TestProposeCancelNoMutation(t *testing.T) {
	g, store, _ := newTestGateway(t)
	ctx := context.Background()

	out := proposeTransfer(t, g, "s1", 500, "Account_B")
	if out.Status != session.StatusAwaitingConfirmation {
		t.Fatalf("expected AWAITING_CONFIRMATION, got %s", out.Status)
	}

	out, err := g.Resolve(ctx, "s1", "nah")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Status != session.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", out.Status)
	}

	if bal, _ := store.Balance(ctx, "USER_ACCOUNT"); bal != 25000 {
		t.Errorf("cancelled action must not move funds: balance %d", bal)
	}

	// Session is free for a new proposal.
	out = proposeTransfer(t, g, "s1", 100, "Account_A")
	if out.Status != session.StatusAwaitingConfirmation {
		t.Errorf("expected fresh proposal accepted, got %s", out.Status)
	}
}

func TestConfirmWordExactOnly(t *testing.T) {
	g, _, _ := newTestGateway(t)
	ctx := context.Background()

	for _, input := range []string{"yes", "ok", "confirm please", "CONFIRM!", "y"} {
		proposeTransfer(t, g, "s1", 100, "Account_A")
		out, err := g.Resolve(ctx, "s1", input)
		if err != nil {
			t.Fatalf("Resolve(%q) failed: %v", input, err)
		}
		if out.Status != session.StatusCancelled {
			t.Errorf("input %q must cancel, got %s", input, out.Status)
		}
	}

	// Case and surrounding whitespace are forgiven.
	for _, input := range []string{"CONFIRM", "confirm", "  Confirm  "} {
		proposeTransfer(t, g, "s1", 100, "Account_A")
		out, err := g.Resolve(ctx, "s1", input)
		if err != nil {
			t.Fatalf("Resolve(%q) failed: %v", input, err)
		}
		if out.Status != session.StatusExecuted {
			t.Errorf("input %q must execute, got %s", input, out.Status)
		}
	}
}

func TestBlockedTransferIsTerminal(t *testing.T) {
	g, store, _ := newTestGateway(t)
	ctx := context.Background()

	out := proposeTransfer(t, g, "s1", 9000, "Account_B")
	if out.Status != session.StatusBlocked {
		t.Fatalf("expected BLOCKED, got %s", out.Status)
	}
	if out.Code != model.CodePolicyViolation {
		t.Errorf("expected policy_violation, got %s", out.Code)
	}

	// Nothing pending: confirmation has no target.
	if _, err := g.Resolve(ctx, "s1", "CONFIRM"); !errors.Is(err, session.ErrNothingPending) {
		t.Errorf("expected ErrNothingPending, got %v", err)
	}

	if bal, _ := store.Balance(ctx, "USER_ACCOUNT"); bal != 25000 {
		t.Errorf("blocked action must not move funds: balance %d", bal)
	}
}

func TestSecondProposalBlockedWhilePending(t *testing.T) {
	g, store, _ := newTestGateway(t)
	ctx := context.Background()

	out := proposeTransfer(t, g, "s1", 500, "Account_B")
	if out.Status != session.StatusAwaitingConfirmation {
		t.Fatalf("expected AWAITING_CONFIRMATION, got %s", out.Status)
	}

	out = proposeTransfer(t, g, "s1", 100, "Account_A")
	if out.Status != session.StatusBlocked {
		t.Fatalf("second proposal must be blocked, got %s", out.Status)
	}
	if !strings.Contains(out.Reason, "awaiting confirmation") {
		t.Errorf("reason must explain the pending action: %s", out.Reason)
	}

	// The original action is still confirmable and executes with its
	// original arguments.
	out, err := g.Resolve(ctx, "s1", "CONFIRM")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Status != session.StatusExecuted {
		t.Fatalf("expected EXECUTED, got %s", out.Status)
	}
	if bal, _ := store.Balance(ctx, "Account_B"); bal != 5500 {
		t.Errorf("receiver balance = %d, want 5500", bal)
	}
	if bal, _ := store.Balance(ctx, "Account_A"); bal != 1000 {
		t.Errorf("blocked proposal must not execute: Account_A = %d", bal)
	}
}

func TestSessionsIndependent(t *testing.T) {
	g, _, _ := newTestGateway(t)

	out1 := proposeTransfer(t, g, "s1", 500, "Account_B")
	out2 := proposeTransfer(t, g, "s2", 100, "Account_A")

	if out1.Status != session.StatusAwaitingConfirmation {
		t.Errorf("s1 expected AWAITING_CONFIRMATION, got %s", out1.Status)
	}
	if out2.Status != session.StatusAwaitingConfirmation {
		t.Errorf("s2 must not see s1's pending action, got %s", out2.Status)
	}
}

func TestNoOpSkipped(t *testing.T) {
	g, _, _ := newTestGateway(t)
	ctx := context.Background()

	action := model.ParseProposal("no_op", nil)
	out, err := g.Propose(ctx, "s1", action)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if out.Status != session.StatusSkipped {
		t.Errorf("expected SKIPPED, got %s", out.Status)
	}
}

func TestUnknownToolBlocked(t *testing.T) {
	g, _, _ := newTestGateway(t)
	ctx := context.Background()

	action := model.ParseProposal("delete_all_accounts", nil)
	out, err := g.Propose(ctx, "s1", action)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if out.Status != session.StatusBlocked {
		t.Errorf("expected BLOCKED, got %s", out.Status)
	}
	if out.Code != model.CodeUnrecognizedAction {
		t.Errorf("expected unrecognized_action, got %s", out.Code)
	}
}

func TestReadOnlyActionAwaitsConfirmation(t *testing.T) {
	g, _, _ := newTestGateway(t)
	ctx := context.Background()

	action := model.ParseProposal("get_balance", map[string]any{"account_id": "Account_B"})
	out, err := g.Propose(ctx, "s1", action)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if out.Status != session.StatusAwaitingConfirmation {
		t.Fatalf("expected AWAITING_CONFIRMATION, got %s", out.Status)
	}

	out, err = g.Resolve(ctx, "s1", "CONFIRM")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Status != session.StatusExecuted {
		t.Fatalf("expected EXECUTED, got %s", out.Status)
	}
	if !strings.Contains(out.Result, "$5000") {
		t.Errorf("unexpected result: %s", out.Result)
	}
}

func TestResolveWithoutSession(t *testing.T) {
	g, _, _ := newTestGateway(t)
	if _, err := g.Resolve(context.Background(), "ghost", "CONFIRM"); !errors.Is(err, session.ErrNothingPending) {
		t.Errorf("expected ErrNothingPending, got %v", err)
	}
}

func TestExecutionFailureClearsPending(t *testing.T) {
	g, store, _ := newTestGateway(t)
	ctx := context.Background()

	out := proposeTransfer(t, g, "s1", 500, "Account_B")
	if out.Status != session.StatusAwaitingConfirmation {
		t.Fatalf("expected AWAITING_CONFIRMATION, got %s", out.Status)
	}

	// Drain the sender between approval and confirmation: execution
	// fails, and the session must not stay stuck.
	if err := store.SetBalance(ctx, "USER_ACCOUNT", 0); err != nil {
		t.Fatalf("SetBalance failed: %v", err)
	}

	out, err := g.Resolve(ctx, "s1", "CONFIRM")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Status != session.StatusFailed {
		t.Fatalf("expected FAILED, got %s", out.Status)
	}

	out = proposeTransfer(t, g, "s1", 100, "Account_A")
	if out.Status == session.StatusBlocked && strings.Contains(out.Reason, "awaiting confirmation") {
		t.Error("session must accept new proposals after a failed execution")
	}
}

func TestHistoryLifecycle(t *testing.T) {
	g, _, _ := newTestGateway(t)
	ctx := context.Background()

	proposeTransfer(t, g, "s1", 9000, "Account_B") // blocked
	proposeTransfer(t, g, "s1", 500, "Account_B")  // pending
	if _, err := g.Resolve(ctx, "s1", "CONFIRM"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	h := g.History("s1")
	if len(h) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(h))
	}
	if h[0].Status != session.StatusBlocked {
		t.Errorf("entry 0 = %s, want BLOCKED", h[0].Status)
	}
	if h[1].Status != session.StatusExecuted {
		t.Errorf("entry 1 = %s, want EXECUTED", h[1].Status)
	}

	if g.History("nosuch") != nil {
		t.Error("unknown session must have nil history")
	}
}

func TestConfirmTimeoutExpiry(t *testing.T) {
	store := account.NewMemoryStore(account.DefaultSeed())
	rulesPath := filepath.Join(t.TempDir(), "rules.yaml")
	writeFile(t, rulesPath, "transaction_rules:\n  confirm_timeout: 10ms\n")

	g, err := New(store, Config{RulesPath: rulesPath})
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	defer g.Close()
	ctx := context.Background()

	out := proposeTransfer(t, g, "s1", 500, "Account_B")
	if out.Status != session.StatusAwaitingConfirmation {
		t.Fatalf("expected AWAITING_CONFIRMATION, got %s", out.Status)
	}

	time.Sleep(20 * time.Millisecond)

	out, err = g.Resolve(ctx, "s1", "CONFIRM")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Status != session.StatusCancelled {
		t.Fatalf("expected stale confirmation to cancel, got %s", out.Status)
	}
	if !strings.Contains(out.Reason, "expired") {
		t.Errorf("reason must mention expiry: %s", out.Reason)
	}
	if bal, _ := store.Balance(ctx, "USER_ACCOUNT"); bal != 25000 {
		t.Errorf("expired action must not move funds: balance %d", bal)
	}
}

func TestAuditTrailCoversBlockedAttempts(t *testing.T) {
	g, _, auditPath := newTestGateway(t)

	proposeTransfer(t, g, "s1", 9000, "Account_B")
	proposeTransfer(t, g, "s1", 500, "ILLEGAL_ACCOUNT")

	result := audit.Verify(auditPath)
	if !result.Valid {
		t.Fatalf("audit chain broken: %s", result.Error)
	}
	if result.Lines != 2 {
		t.Errorf("every blocked attempt must be audited: got %d lines", result.Lines)
	}
}

func TestReloadRules(t *testing.T) {
	store := account.NewMemoryStore(account.DefaultSeed())
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.yaml")
	writeFile(t, rulesPath, "transaction_rules:\n  max_amount: 10000\n")

	g, err := New(store, Config{RulesPath: rulesPath})
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	defer g.Close()

	oldHash := g.RulesHash()

	writeFile(t, rulesPath, "transaction_rules:\n  max_amount: 300\n  high_value_threshold: 200\n")
	if err := g.ReloadRules(); err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}
	if g.Rules().MaxAmount != 300 {
		t.Errorf("expected reloaded ceiling 300, got %d", g.Rules().MaxAmount)
	}
	if g.RulesHash() == oldHash {
		t.Error("rules hash must change on reload")
	}

	out := proposeTransfer(t, g, "s1", 500, "Account_B")
	if out.Status != session.StatusBlocked {
		t.Errorf("new ceiling must apply to new proposals, got %s", out.Status)
	}
}
