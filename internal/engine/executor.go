package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/peti12352/sentinel-verifier/internal/account"
	"github.com/peti12352/sentinel-verifier/internal/model"
)

// execute performs a confirmed action exactly once and renders its
// result. Only transfers mutate the store; the read-only kinds render
// observations.
func (g *Gateway) execute(ctx context.Context, action *model.ProposedAction) (string, error) {
	rs := g.Rules()

	switch action.Kind {
	case model.KindTransfer:
		if err := g.executeTransfer(ctx, rs.Principal, action.Destination, action.Amount); err != nil {
			return "", err
		}
		return fmt.Sprintf("transferred $%d from %s to %s",
			action.Amount, rs.Principal, action.Destination), nil

	case model.KindGetBalance:
		balance, err := g.store.Balance(ctx, action.AccountID)
		if errors.Is(err, account.ErrNotFound) {
			return fmt.Sprintf("account %q not found", action.AccountID), nil
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("the balance of %s is $%d", action.AccountID, balance), nil

	case model.KindListAccounts:
		ids, err := g.store.ListAccounts(ctx)
		if err != nil {
			return "", err
		}
		return "available accounts: " + strings.Join(ids, ", "), nil

	case model.KindGetRules:
		data, err := json.Marshal(rs.Snapshot())
		if err != nil {
			return "", err
		}
		return string(data), nil

	default:
		return "", fmt.Errorf("engine: cannot execute %q", action.Kind)
	}
}

// executeTransfer moves funds as a single atomic unit. Stores with
// native transaction support do the debit and credit in one
// transaction; otherwise the adapter compensates a dangling debit so a
// partial update is never observable.
func (g *Gateway) executeTransfer(ctx context.Context, from, to string, amount int64) error {
	if t, ok := g.store.(account.Transferer); ok {
		return t.Transfer(ctx, from, to, amount)
	}

	// Funds are re-read immediately before mutation rather than
	// trusting the verification-time read.
	fromBalance, err := g.store.Balance(ctx, from)
	if err != nil {
		return fmt.Errorf("engine: read sender balance: %w", err)
	}
	if fromBalance < amount {
		return fmt.Errorf("engine: sender balance %d below amount %d", fromBalance, amount)
	}

	if err := g.store.SetBalance(ctx, from, fromBalance-amount); err != nil {
		return fmt.Errorf("engine: debit %s: %w", from, err)
	}

	toBalance, err := g.store.Balance(ctx, to)
	if err == nil {
		err = g.store.SetBalance(ctx, to, toBalance+amount)
	}
	if err != nil {
		// Compensating rollback of the debit.
		if rbErr := g.store.SetBalance(ctx, from, fromBalance); rbErr != nil {
			return fmt.Errorf("engine: credit %s failed (%v) and rollback failed: %w", to, err, rbErr)
		}
		return fmt.Errorf("engine: credit %s: %w", to, err)
	}

	return nil
}
