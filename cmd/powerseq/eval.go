package main

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sockeye-project/powerseq/internal/platformdesc"
	"github.com/sockeye-project/powerseq/pkg/seqgen"
)

// newEvalCmd implements the feasibility-only entry point (spec.md §6
// no_output / spec.md §8's permutation-invariance and solution-count
// scenarios): it runs the search without rendering commands and reports
// how many satisfying assignments exist.
func newEvalCmd() *cobra.Command {
	var (
		platformPath    string
		requirementPath string
		advanced        bool
		useZ3           bool
		shuffles        int
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Report how many assignments satisfy a target condition without rendering commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			requirements, err := loadRequirements(requirementPath)
			if err != nil {
				return err
			}

			flags := seqgen.SearchFlags{
				AllSolutions:         true,
				AdvancedBacktracking: advanced,
				UseZ3:                useZ3,
				NoOutput:             true,
			}

			if shuffles > 0 {
				return runShuffleSweep(cmd, platformPath, requirements, flags, shuffles)
			}

			topo, err := loadTopology(platformPath, zerolog.Nop())
			if err != nil {
				return err
			}

			solutions, err := seqgen.Search(context.Background(), topo, requirements, flags, nil)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d solution(s)\n", len(solutions))
			for i, sol := range solutions {
				names := make([]string, 0, len(sol.Values))
				for name := range sol.Values {
					names = append(names, name)
				}
				sort.Strings(names)
				fmt.Fprintf(cmd.OutOrStdout(), "solution %d:\n", i)
				for _, name := range names {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", name, sol.Values[name])
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&platformPath, "platform", "", "path to the platform description YAML")
	cmd.Flags().StringVar(&requirementPath, "requirements", "", "path to the target-condition requirements YAML")
	cmd.Flags().BoolVar(&advanced, "advanced-backtracking", false, "use conflict-directed backjumping instead of naive backtracking")
	cmd.Flags().BoolVar(&useZ3, "use-z3", false, "route the whole search through the SMT adapter")
	cmd.Flags().IntVar(&shuffles, "shuffles", 0, "rebuild the platform N times with shuffled node/wire order and check the solution count stays constant (spec.md §8)")
	cmd.MarkFlagRequired("platform")
	cmd.MarkFlagRequired("requirements")

	return cmd
}

// runShuffleSweep decodes the platform once, then rebuilds it n times with
// independently shuffled Nodes/Wires order, asserting every rebuild yields
// the same solution count (spec.md §8: the search result is independent of
// the caller's wire/node declaration order).
func runShuffleSweep(cmd *cobra.Command, platformPath string, requirements map[string]seqgen.StateSpace, flags seqgen.SearchFlags, n int) error {
	doc, err := decodePlatformDoc(platformPath)
	if err != nil {
		return err
	}

	var first int
	for i := 0; i < n; i++ {
		shuffled := shuffledPlatform(doc, i)
		topo, err := platformdesc.Build(shuffled, platformdesc.NewCatalogue(), zerolog.Nop())
		if err != nil {
			return err
		}

		solutions, err := seqgen.Search(context.Background(), topo, requirements, flags, nil)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "shuffle %d: %d solution(s)\n", i, len(solutions))
		if i == 0 {
			first = len(solutions)
			continue
		}
		if len(solutions) != first {
			return fmt.Errorf("powerseq: solution count is not permutation-invariant: shuffle 0 found %d, shuffle %d found %d", first, i, len(solutions))
		}
	}
	return nil
}

// shuffledPlatform returns a copy of doc with Nodes and Wires independently
// shuffled by a seed-deterministic permutation, so repeated sweeps are
// reproducible.
func shuffledPlatform(doc platformdesc.Platform, seed int) platformdesc.Platform {
	r := rand.New(rand.NewSource(int64(seed)))

	nodes := append([]platformdesc.NodeSpec(nil), doc.Nodes...)
	r.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

	wires := append([]platformdesc.WireSpec(nil), doc.Wires...)
	r.Shuffle(len(wires), func(i, j int) { wires[i], wires[j] = wires[j], wires[i] })

	return platformdesc.Platform{Nodes: nodes, Wires: wires, InitialStates: doc.InitialStates}
}
