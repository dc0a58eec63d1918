package guardian

import (
	"fmt"

	"github.com/peti12352/sentinel-verifier/internal/model"
	"github.com/peti12352/sentinel-verifier/internal/rules"
)

// Assignment is the concrete valuation a proposed transfer gives to the
// invariant variables.
type Assignment struct {
	Sender      string
	Amount      int64
	Destination string
}

// IsSatisfiable evaluates the fixed invariant conjunction under the
// given assignment:
//
//	sender == principal
//	amount > 0
//	amount <= max_amount
//	amount > high_value_threshold  ⟹  destination == high_value_destination
//
// The constraint set is small and closed-form, so direct boolean
// evaluation replaces a general solver. This function is the seam to
// swap one in if the policy language ever grows.
func IsSatisfiable(a Assignment, rs *rules.RuleSet) bool {
	if a.Sender != rs.Principal {
		return false
	}
	if a.Amount <= 0 {
		return false
	}
	if a.Amount > rs.MaxAmount {
		return false
	}
	if a.Amount > rs.HighValueThreshold && a.Destination != rs.HighValueDestination {
		return false
	}
	return true
}

// violatedRule names the single most specific broken constraint.
// Order matters: authorization, positivity, high-value routing, ceiling.
// Callers must only invoke it when IsSatisfiable returned false.
func violatedRule(a Assignment, rs *rules.RuleSet) (model.ViolationCode, string) {
	if a.Sender != rs.Principal {
		return model.CodeUnauthorizedSender, fmt.Sprintf(
			"transfers may only be sent from %s; sender %q is not authorized",
			rs.Principal, a.Sender)
	}
	if a.Amount <= 0 {
		return model.CodeInvalidAmount, fmt.Sprintf(
			"transfer amount must be positive, got $%d", a.Amount)
	}
	if a.Amount > rs.HighValueThreshold && a.Destination != rs.HighValueDestination {
		return model.CodePolicyViolation, fmt.Sprintf(
			"transfers over $%d must go to %s, not %q",
			rs.HighValueThreshold, rs.HighValueDestination, a.Destination)
	}
	return model.CodeLimitExceeded, fmt.Sprintf(
		"amount $%d exceeds the $%d transaction limit", a.Amount, rs.MaxAmount)
}
