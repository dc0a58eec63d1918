// Package canonical resolves user-supplied account references to their
// unique stored identifiers. Resolution is purely syntactic: it never
// rejects input and never alters the stored canonical form. Unresolvable
// references pass through unchanged so the verifier can report a
// specific existence failure.
package canonical

import "strings"

// Resolve maps a raw destination token to a canonical account id.
// Precedence, first match wins, all comparisons case-insensitive:
//  1. exact match against a known id ("account_c" → "Account_C")
//  2. prefix expansion: "account_" + token ("c" → "Account_C")
//
// Returns the raw token unchanged and false when nothing matches.
func Resolve(raw string, known []string) (string, bool) {
	if raw == "" {
		return raw, false
	}

	byLower := make(map[string]string, len(known))
	for _, id := range known {
		byLower[strings.ToLower(id)] = id
	}

	lower := strings.ToLower(raw)
	if id, ok := byLower[lower]; ok {
		return id, true
	}
	if id, ok := byLower["account_"+lower]; ok {
		return id, true
	}

	return raw, false
}
