package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peti12352/sentinel-verifier/internal/rules"
)

var rulesPath string

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.Flags().StringVar(&rulesPath, "rules", "", "Path to transaction rules YAML (defaults built in)")
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the effective transaction rules",
	Long: "Loads the rule set (built-in defaults when no file is given) and\n" +
		"prints the effective values together with the configuration hash\n" +
		"that gets stamped into audit entries.",
	RunE: runRules,
}

func runRules(cmd *cobra.Command, args []string) error {
	rs, hash, err := rules.LoadWithHash(rulesPath)
	if err != nil {
		return err
	}

	out := rs.Snapshot()
	out["confirm_timeout"] = rs.ConfirmTimeout.String()
	out["rules_hash"] = hash

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	fmt.Println(string(data))

	return nil
}
