// sentinel is a verification gateway for agent-proposed financial
// actions.
// Every proposal is canonicalized, verified against the transaction
// rules, and held for explicit user confirmation before execution.
package main

import "github.com/peti12352/sentinel-verifier/internal/cli"

func main() {
	cli.Execute()
}
