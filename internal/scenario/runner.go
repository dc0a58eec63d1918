// Package scenario runs verifier assertions from YAML files, so policy
// changes can be gated in CI with `sentinel check`.
package scenario

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/peti12352/sentinel-verifier/internal/account"
	"github.com/peti12352/sentinel-verifier/internal/canonical"
	"github.com/peti12352/sentinel-verifier/internal/guardian"
	"github.com/peti12352/sentinel-verifier/internal/model"
	"github.com/peti12352/sentinel-verifier/internal/rules"
)

// Run evaluates all cases through canonicalization and verification.
// Each case runs against a fresh copy of the seed dataset: cases are
// independent and never mutate shared state.
func Run(s *Scenario, rs *rules.RuleSet) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		store := account.NewMemoryStore(account.DefaultSeed())
		ctx := context.Background()

		action := model.ParseProposal(c.Action.Tool, c.Action.Args)
		if action.Kind == model.KindTransfer {
			known, _ := store.ListAccounts(ctx)
			action.Destination, _ = canonical.Resolve(action.Destination, known)
		}

		verdict := guardian.Verify(ctx, action, store, rs)
		actual := "approved"
		if !verdict.Approved {
			actual = string(verdict.Code)
		}
		expected := strings.ToLower(strings.TrimSpace(c.Expect))

		cr := CaseResult{
			Index:    i + 1,
			Tool:     c.Action.Tool,
			Expected: expected,
			Actual:   actual,
			Reason:   verdict.Reason,
		}

		if actual == expected {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}

		result.Cases = append(result.Cases, cr)
	}

	return result
}

// LoadAndRun loads a scenario YAML file and the rule set, then runs.
func LoadAndRun(path, rulesPath string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	rs, err := rules.Load(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	result := Run(&s, rs)
	result.File = path

	return result, nil
}
