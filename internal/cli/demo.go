package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/peti12352/sentinel-verifier/internal/account"
	"github.com/peti12352/sentinel-verifier/internal/audit"
	"github.com/peti12352/sentinel-verifier/internal/engine"
	"github.com/peti12352/sentinel-verifier/internal/model"
	"github.com/peti12352/sentinel-verifier/internal/session"
)

func init() {
	rootCmd.AddCommand(demoCmd)
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the scripted gatekeeper demo",
	Long: "Drives a fixed set of transfer proposals through the full\n" +
		"propose, verify, confirm flow against the in-memory seed dataset\n" +
		"and prints each outcome. Exits 1 if any unsafe transfer executes.",
	RunE: runDemo,
}

type demoStep struct {
	label   string
	tool    string
	args    map[string]any
	confirm bool
	expect  session.Status
}

func runDemo(cmd *cobra.Command, args []string) error {
	fmt.Println("=== sentinel gatekeeper demo ===")
	fmt.Println()

	tmpDir, err := os.MkdirTemp("", "sentinel-demo-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)
	auditPath := filepath.Join(tmpDir, "audit.jsonl")

	store := account.NewMemoryStore(account.DefaultSeed())
	gw, err := engine.New(store, engine.Config{AuditLogPath: auditPath})
	if err != nil {
		return err
	}
	defer gw.Close()

	ctx := cmd.Context()
	sessionID := gw.Session("").ID

	steps := []demoStep{
		{
			label:   "routine transfer, confirmed",
			tool:    "transfer_funds",
			args:    map[string]any{"amount": 500, "destination": "account_b"},
			confirm: true,
			expect:  session.StatusExecuted,
		},
		{
			label:  "high value to ordinary account",
			tool:   "transfer_funds",
			args:   map[string]any{"amount": 9000, "destination": "Account_B"},
			expect: session.StatusBlocked,
		},
		{
			label:  "negative amount",
			tool:   "transfer_funds",
			args:   map[string]any{"amount": -500, "destination": "Account_A"},
			expect: session.StatusBlocked,
		},
		{
			label:  "amount above ceiling",
			tool:   "transfer_funds",
			args:   map[string]any{"amount": 50000, "destination": "Account_D"},
			expect: session.StatusBlocked,
		},
		{
			label:  "blacklisted destination",
			tool:   "transfer_funds",
			args:   map[string]any{"amount": 500, "destination": "ILLEGAL_ACCOUNT"},
			expect: session.StatusBlocked,
		},
		{
			label:   "routine transfer, declined by user",
			tool:    "transfer_funds",
			args:    map[string]any{"amount": 100, "destination": "Account_A"},
			confirm: false,
			expect:  session.StatusCancelled,
		},
	}

	failures := 0
	for i, step := range steps {
		action := model.ParseProposal(step.tool, step.args)
		out, err := gw.Propose(ctx, sessionID, action)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}

		if out.Status == session.StatusAwaitingConfirmation {
			input := "no"
			if step.confirm {
				input = "CONFIRM"
			}
			out, err = gw.Resolve(ctx, sessionID, input)
			if err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
		}

		icon := "✓"
		if out.Status != step.expect {
			icon = "✗"
			failures++
		}
		fmt.Printf("  %s %-36s %s (%s)\n", icon, step.label, out.Status, out.Reason)
	}

	fmt.Println()
	for _, id := range []string{"USER_ACCOUNT", "Account_A", "Account_B", "Account_C", "Account_D"} {
		bal, err := store.Balance(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("  %-14s $%d\n", id, bal)
	}

	result := audit.Verify(auditPath)
	fmt.Println()
	if result.Valid {
		fmt.Printf("Audit chain: OK (%d entries)\n", result.Lines)
	} else {
		fmt.Printf("Audit chain: FAILED at line %d: %s\n", result.ErrorLine, result.Error)
		failures++
	}

	if failures > 0 {
		fmt.Printf("\nFAIL: %d step(s) did not match the expected outcome.\n", failures)
		os.Exit(1)
	}

	fmt.Println("\nPASS: every unsafe transfer was blocked before execution.")
	return nil
}
