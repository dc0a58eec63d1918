// Package engine wires the canonicalizer, the guardian verifier, the
// confirmation state machine, and the execution adapter into the
// propose → confirm → execute flow. Nothing mutates a balance unless
// its action passed verification and an explicit user confirmation.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/peti12352/sentinel-verifier/internal/account"
	"github.com/peti12352/sentinel-verifier/internal/audit"
	"github.com/peti12352/sentinel-verifier/internal/canonical"
	"github.com/peti12352/sentinel-verifier/internal/guardian"
	"github.com/peti12352/sentinel-verifier/internal/model"
	"github.com/peti12352/sentinel-verifier/internal/rules"
	"github.com/peti12352/sentinel-verifier/internal/session"
)

// confirmWord is the only input that authorizes execution of a pending
// action. Matched exactly, case-insensitive, after trimming.
const confirmWord = "CONFIRM"

// Config holds gateway configuration.
type Config struct {
	RulesPath    string
	AuditLogPath string
}

// Outcome is the result of driving one input through the state machine.
type Outcome struct {
	SessionID string              `json:"session_id"`
	Status    session.Status      `json:"status"`
	Code      model.ViolationCode `json:"code,omitempty"`
	Reason    string              `json:"reason"`
	Result    string              `json:"result,omitempty"`

	// Pending carries the verified, unforgeable parameters shown to
	// the user while awaiting confirmation.
	Pending map[string]any `json:"pending,omitempty"`
}

// Gateway gates proposed actions behind verification and confirmation.
type Gateway struct {
	store    account.Store
	sessions *session.Manager
	auditLog *audit.Log

	mu        sync.RWMutex
	ruleSet   *rules.RuleSet
	rulesHash string

	cfg Config
}

// New creates a gateway over the given store with loaded rules.
func New(store account.Store, cfg Config) (*Gateway, error) {
	rs, hash, err := rules.LoadWithHash(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("engine: load rules: %w", err)
	}

	var auditLog *audit.Log
	if cfg.AuditLogPath != "" {
		auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("engine: open audit log: %w", err)
		}
	}

	return &Gateway{
		store:     store,
		sessions:  session.NewManager(),
		auditLog:  auditLog,
		ruleSet:   rs,
		rulesHash: hash,
		cfg:       cfg,
	}, nil
}

// Close releases the audit log, if configured.
func (g *Gateway) Close() error {
	if g.auditLog != nil {
		return g.auditLog.Close()
	}
	return nil
}

// Rules returns the current rule set snapshot.
func (g *Gateway) Rules() *rules.RuleSet {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ruleSet
}

// RulesHash returns the hash of the current rule set.
func (g *Gateway) RulesHash() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rulesHash
}

// ReloadRules re-reads the rules file and swaps the snapshot.
// In-flight proposals keep the snapshot they were verified under.
func (g *Gateway) ReloadRules() error {
	rs, hash, err := rules.LoadWithHash(g.cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("engine: reload rules: %w", err)
	}
	g.mu.Lock()
	g.ruleSet = rs
	g.rulesHash = hash
	g.mu.Unlock()
	return nil
}

// Session returns the session for the given id, creating it on first
// use. An empty id creates a fresh session.
func (g *Gateway) Session(id string) *session.Session {
	return g.sessions.Get(id)
}

// History returns the ordered history of a session, oldest first.
func (g *Gateway) History(sessionID string) []session.HistoryEntry {
	sess, ok := g.sessions.Lookup(sessionID)
	if !ok {
		return nil
	}
	return sess.History()
}

// Propose drives a new proposed action through canonicalization and
// verification. Approved actions halt in AWAITING_CONFIRMATION; a
// rejected action terminates as BLOCKED with the specific reason. A
// NoOp is recorded as SKIPPED without entering the verifier.
func (g *Gateway) Propose(ctx context.Context, sessionID string, action *model.ProposedAction) (*Outcome, error) {
	sess := g.sessions.Get(sessionID)
	rs := g.Rules()

	if action.Kind == model.KindNoOp {
		reason := "request did not map to a recognized action"
		sess.AppendTerminal(action, session.StatusSkipped, reason)
		g.recordAudit(sess.ID, action, session.StatusSkipped, reason)
		return &Outcome{
			SessionID: sess.ID,
			Status:    session.StatusSkipped,
			Reason:    reason,
		}, nil
	}

	g.expireStalePending(sess, rs)

	// Serialization invariant: a second proposal must never slip in
	// ahead of user confirmation. The attempt is still audited.
	if pending, _, ok := sess.Pending(); ok {
		reason := fmt.Sprintf(
			"another action (%s) is awaiting confirmation; confirm or cancel it first",
			pending.Describe())
		sess.AppendTerminal(action, session.StatusBlocked, reason)
		g.recordAudit(sess.ID, action, session.StatusBlocked, reason)
		return &Outcome{
			SessionID: sess.ID,
			Status:    session.StatusBlocked,
			Reason:    reason,
		}, nil
	}

	if action.Kind == model.KindTransfer {
		known, err := g.store.ListAccounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("engine: list accounts: %w", err)
		}
		action.Destination, _ = canonical.Resolve(action.Destination, known)
	}

	verdict := guardian.Verify(ctx, action, g.store, rs)
	if !verdict.Approved {
		sess.AppendTerminal(action, session.StatusBlocked, verdict.Reason)
		g.recordAudit(sess.ID, action, session.StatusBlocked, verdict.Reason)
		return &Outcome{
			SessionID: sess.ID,
			Status:    session.StatusBlocked,
			Code:      verdict.Code,
			Reason:    verdict.Reason,
		}, nil
	}

	reason := verdict.Reason + "; awaiting user confirmation"
	if err := sess.SetPending(action, reason); err != nil {
		// Lost a race with a concurrent proposal in the same session.
		sess.AppendTerminal(action, session.StatusBlocked, err.Error())
		g.recordAudit(sess.ID, action, session.StatusBlocked, err.Error())
		return &Outcome{
			SessionID: sess.ID,
			Status:    session.StatusBlocked,
			Reason:    err.Error(),
		}, nil
	}
	g.recordAudit(sess.ID, action, session.StatusAwaitingConfirmation, reason)

	pending := action.ArgsMap()
	pending["tool_name"] = string(action.Kind)
	return &Outcome{
		SessionID: sess.ID,
		Status:    session.StatusAwaitingConfirmation,
		Reason:    reason,
		Pending:   pending,
	}, nil
}

// Resolve interprets input arriving while an action awaits
// confirmation. Exact "CONFIRM" executes the pending action; any other
// input cancels it without mutation. Returns
// session.ErrNothingPending when no action is in flight.
func (g *Gateway) Resolve(ctx context.Context, sessionID, input string) (*Outcome, error) {
	sess, ok := g.sessions.Lookup(sessionID)
	if !ok {
		return nil, session.ErrNothingPending
	}

	if out := g.expireStalePending(sess, g.Rules()); out != nil {
		return out, nil
	}

	action, err := sess.TakePending()
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(strings.TrimSpace(input), confirmWord) {
		reason := "user rejected the proposed action"
		sess.FinishPending(session.StatusCancelled, reason, "")
		g.recordAudit(sess.ID, action, session.StatusCancelled, reason)
		return &Outcome{
			SessionID: sess.ID,
			Status:    session.StatusCancelled,
			Reason:    reason,
		}, nil
	}

	result, err := g.execute(ctx, action)
	if err != nil {
		// The session must not stay stuck awaiting confirmation after
		// a store failure: mark failed and clear pending state.
		reason := fmt.Sprintf("execution failed: %v", err)
		sess.FinishPending(session.StatusFailed, reason, "")
		g.recordAudit(sess.ID, action, session.StatusFailed, reason)
		return &Outcome{
			SessionID: sess.ID,
			Status:    session.StatusFailed,
			Reason:    reason,
		}, nil
	}

	reason := "confirmed by user"
	sess.FinishPending(session.StatusExecuted, reason, result)
	g.recordAudit(sess.ID, action, session.StatusExecuted, reason)
	return &Outcome{
		SessionID: sess.ID,
		Status:    session.StatusExecuted,
		Reason:    reason,
		Result:    result,
	}, nil
}

// Cancel resolves the pending action as cancelled.
func (g *Gateway) Cancel(ctx context.Context, sessionID string) (*Outcome, error) {
	return g.Resolve(ctx, sessionID, "CANCEL")
}

// expireStalePending cancels a pending action whose confirmation
// window has passed. Returns the cancellation outcome, or nil if
// nothing expired.
func (g *Gateway) expireStalePending(sess *session.Session, rs *rules.RuleSet) *Outcome {
	if rs.ConfirmTimeout <= 0 {
		return nil
	}
	_, since, ok := sess.Pending()
	if !ok || time.Since(since) <= rs.ConfirmTimeout {
		return nil
	}

	action, err := sess.TakePending()
	if err != nil {
		return nil
	}
	reason := fmt.Sprintf("confirmation window of %s expired", rs.ConfirmTimeout)
	sess.FinishPending(session.StatusCancelled, reason, "")
	g.recordAudit(sess.ID, action, session.StatusCancelled, reason)
	return &Outcome{
		SessionID: sess.ID,
		Status:    session.StatusCancelled,
		Reason:    reason,
	}
}

func (g *Gateway) recordAudit(sessionID string, action *model.ProposedAction, status session.Status, reason string) {
	if g.auditLog == nil {
		return
	}
	g.auditLog.Record(audit.Entry{
		SessionID: sessionID,
		Action: audit.Action{
			Tool:        string(action.Kind),
			Destination: action.Destination,
			Amount:      action.Amount,
		},
		Status:    string(status),
		Reason:    reason,
		RulesHash: g.RulesHash(),
	})
}
