package model

import "fmt"

// ActionKind is the closed set of actions the engine recognizes.
// Anything outside this set collapses to KindUnknown at the parse
// boundary and is denied downstream.
type ActionKind string

const (
	KindTransfer     ActionKind = "transfer_funds"
	KindGetBalance   ActionKind = "get_balance"
	KindListAccounts ActionKind = "list_accounts"
	KindGetRules     ActionKind = "get_rules"
	KindNoOp         ActionKind = "no_op"
	KindUnknown      ActionKind = "unknown"
)

// ReadOnly reports whether the action only observes state.
func (k ActionKind) ReadOnly() bool {
	switch k {
	case KindGetBalance, KindListAccounts, KindGetRules:
		return true
	default:
		return false
	}
}

// ProposedAction is one action proposed by the intent producer.
// RawArgs preserves the producer's arguments verbatim; the typed
// fields hold the defensively coerced values the engine operates on.
type ProposedAction struct {
	Kind    ActionKind     `json:"tool_name"`
	RawArgs map[string]any `json:"args"`

	// Transfer arguments. Destination is rewritten to its canonical
	// form before verification.
	Amount        int64  `json:"amount,omitempty"`
	Destination   string `json:"destination,omitempty"`
	ClaimedSender string `json:"claimed_sender,omitempty"`

	// GetBalance argument.
	AccountID string `json:"account_id,omitempty"`
}

// ParseProposal builds a ProposedAction from a raw {tool_name, args}
// pair. Unrecognized tool names yield KindUnknown rather than an error:
// the verifier owns the fail-closed denial and its reason.
func ParseProposal(toolName string, args map[string]any) *ProposedAction {
	a := &ProposedAction{Kind: KindUnknown, RawArgs: args}

	switch ActionKind(toolName) {
	case KindTransfer:
		a.Kind = KindTransfer
		a.Amount = toInt64(args["amount"])
		a.Destination = toString(args["destination"])
		a.ClaimedSender = toString(args["sender"])
	case KindGetBalance:
		a.Kind = KindGetBalance
		a.AccountID = toString(args["account_id"])
	case KindListAccounts:
		a.Kind = KindListAccounts
	case KindGetRules:
		a.Kind = KindGetRules
	case KindNoOp:
		a.Kind = KindNoOp
	}

	return a
}

// ArgsMap renders the coerced arguments as a flat record for history
// and audit entries.
func (a *ProposedAction) ArgsMap() map[string]any {
	m := map[string]any{}
	switch a.Kind {
	case KindTransfer:
		m["amount"] = a.Amount
		m["destination"] = a.Destination
	case KindGetBalance:
		m["account_id"] = a.AccountID
	}
	return m
}

// Describe returns a one-line human-readable summary of the action.
func (a *ProposedAction) Describe() string {
	switch a.Kind {
	case KindTransfer:
		return fmt.Sprintf("transfer $%d to %s", a.Amount, a.Destination)
	case KindGetBalance:
		return fmt.Sprintf("get balance of %s", a.AccountID)
	case KindListAccounts:
		return "list accounts"
	case KindGetRules:
		return "get transaction rules"
	case KindNoOp:
		return "no-op"
	default:
		return "unrecognized action"
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
