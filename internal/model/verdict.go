package model

// ViolationCode identifies the specific rule a rejected action broke.
// Every rejection maps to exactly one code; approvals carry CodeNone.
type ViolationCode string

const (
	CodeNone                   ViolationCode = ""
	CodeUnauthorizedSender     ViolationCode = "unauthorized_sender"
	CodeInvalidAmount          ViolationCode = "invalid_amount"
	CodeLimitExceeded          ViolationCode = "limit_exceeded"
	CodePolicyViolation        ViolationCode = "policy_violation"
	CodeUnknownDestination     ViolationCode = "unknown_destination"
	CodeBlacklistedDestination ViolationCode = "blacklisted_destination"
	CodeInsufficientFunds      ViolationCode = "insufficient_funds"
	CodeUnrecognizedAction     ViolationCode = "unrecognized_action"
)

// Verdict is the outcome of policy verification. Reason is always
// populated, including on approval, so the audit trail never records
// a bare boolean.
type Verdict struct {
	Approved bool          `json:"approved"`
	Code     ViolationCode `json:"code,omitempty"`
	Reason   string        `json:"reason"`
}

// Approve builds an approving verdict with the given reason.
func Approve(reason string) Verdict {
	return Verdict{Approved: true, Reason: reason}
}

// Reject builds a rejecting verdict with the violated rule and reason.
func Reject(code ViolationCode, reason string) Verdict {
	return Verdict{Approved: false, Code: code, Reason: reason}
}
