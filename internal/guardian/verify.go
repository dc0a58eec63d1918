// Package guardian is the verification gate: it proves or disproves a
// proposed action against the fixed invariant set and the account store
// before the engine will let it anywhere near execution. Unrecognized
// actions are denied by default.
package guardian

import (
	"context"
	"fmt"
	"strings"

	"github.com/peti12352/sentinel-verifier/internal/account"
	"github.com/peti12352/sentinel-verifier/internal/model"
	"github.com/peti12352/sentinel-verifier/internal/rules"
)

// Verify evaluates a proposed action and returns a verdict with a
// specific, user-presentable reason.
//
// Read-only actions are approved unconditionally: observation cannot
// cause harm, and keeping the whitelist explicit is a deliberate design
// choice. Transfers run the full pipeline in this exact order, stopping
// at the first failure:
//
//	1. destination blacklist, then existence
//	2. invariant satisfiability (authorization, positivity, routing, ceiling)
//	3. sufficient funds, read fresh from the store
//
// The ordering is deliberate: it yields the most informative error at
// the least cost. The destination must already be canonicalized.
func Verify(ctx context.Context, action *model.ProposedAction, store account.Store, rs *rules.RuleSet) model.Verdict {
	switch action.Kind {
	case model.KindGetBalance, model.KindListAccounts, model.KindGetRules:
		return model.Approve(fmt.Sprintf(
			"%q is approved as a safe read-only operation", string(action.Kind)))

	case model.KindTransfer:
		return verifyTransfer(ctx, action, store, rs)

	default:
		return model.Reject(model.CodeUnrecognizedAction,
			"action is not recognized or not permitted")
	}
}

func verifyTransfer(ctx context.Context, action *model.ProposedAction, store account.Store, rs *rules.RuleSet) model.Verdict {
	// Step 1: destination must be a real, non-blacklisted account.
	// Blacklisted ids are not in the accounts table, so the blacklist
	// is tested first to report the more specific reason.
	blacklisted, err := store.IsBlacklisted(ctx, action.Destination)
	if err != nil {
		return model.Reject(model.CodeUnknownDestination,
			fmt.Sprintf("cannot check destination %q: %v", action.Destination, err))
	}
	if blacklisted {
		return model.Reject(model.CodeBlacklistedDestination,
			fmt.Sprintf("destination account %q is blacklisted", action.Destination))
	}

	exists, err := store.Exists(ctx, action.Destination)
	if err != nil {
		return model.Reject(model.CodeUnknownDestination,
			fmt.Sprintf("cannot check destination %q: %v", action.Destination, err))
	}
	if !exists {
		valid, _ := store.ListAccounts(ctx)
		return model.Reject(model.CodeUnknownDestination,
			fmt.Sprintf("destination account %q does not exist; valid accounts: %s",
				action.Destination, strings.Join(valid, ", ")))
	}

	// Step 2: invariant satisfiability. The sender is never trusted
	// from the caller: an action claiming a different sender fails the
	// authorization invariant here; otherwise the principal is
	// substituted.
	sender := rs.Principal
	if action.ClaimedSender != "" {
		sender = action.ClaimedSender
	}
	assignment := Assignment{
		Sender:      sender,
		Amount:      action.Amount,
		Destination: action.Destination,
	}
	if !IsSatisfiable(assignment, rs) {
		code, reason := violatedRule(assignment, rs)
		return model.Reject(code, reason)
	}

	// Step 3: sufficient funds, always a fresh read.
	balance, err := store.Balance(ctx, rs.Principal)
	if err != nil {
		return model.Reject(model.CodeInsufficientFunds,
			fmt.Sprintf("cannot read balance of %s: %v", rs.Principal, err))
	}
	if balance < action.Amount {
		return model.Reject(model.CodeInsufficientFunds,
			fmt.Sprintf("insufficient funds: %s holds $%d, tried to send $%d",
				rs.Principal, balance, action.Amount))
	}

	return model.Approve("all transaction checks passed")
}
