// Command powerseq loads a platform description and synthesises a
// power-sequencing plan for a requested target condition.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "powerseq",
		Short: "Synthesise power-up/power-down sequences from a platform description",
	}
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newEvalCmd())
	root.AddCommand(newTransitionCmd())
	return root
}
