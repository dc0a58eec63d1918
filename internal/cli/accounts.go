package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/peti12352/sentinel-verifier/internal/account"
)

var accountsDB string

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.Flags().StringVar(&accountsDB, "db", "", "Path to SQLite database (in-memory seed when empty)")
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accounts and balances",
	Long: "Prints every known account with its balance and blacklist status.\n" +
		"With --db the SQLite store is opened (and seeded if empty);\n" +
		"otherwise the built-in demo dataset is shown.",
	RunE: runAccounts,
}

func runAccounts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var store account.Store
	if accountsDB != "" {
		s, err := account.OpenSQLite(accountsDB)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	} else {
		store = account.NewMemoryStore(account.DefaultSeed())
	}

	ids, err := store.ListAccounts(ctx)
	if err != nil {
		return err
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tBALANCE\tSTATUS")
	for _, id := range ids {
		bal, err := store.Balance(ctx, id)
		if err != nil {
			return err
		}
		status := "ok"
		if blocked, err := store.IsBlacklisted(ctx, id); err == nil && blocked {
			status = "blacklisted"
		}
		fmt.Fprintf(w, "%s\t$%d\t%s\n", id, bal, status)
	}

	return w.Flush()
}
