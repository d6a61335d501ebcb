package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sockeye-project/powerseq/internal/platformdesc"
	"github.com/sockeye-project/powerseq/pkg/seqgen"
)

// newTransitionCmd implements spec.md §4.7: given a per-consumer target
// power state, it builds each moving consumer's ConsumerSteps from its
// PowerState.Transitions, interleaves them with seqgen.Interleave, renders
// the resulting phases with seqgen.RenderTransition, and commits each
// consumer's new power-state label once its phases have all been applied.
func newTransitionCmd() *cobra.Command {
	var (
		platformPath string
		targetPath   string
		concurrent   bool
		advanced     bool
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "transition",
		Short: "Move one or more consumers to a target power state",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.Nop()
			if verbose {
				logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			}

			topo, err := loadTopology(platformPath, logger)
			if err != nil {
				return err
			}

			targets, err := loadTargetStates(targetPath)
			if err != nil {
				return err
			}

			consumers, err := consumerSteps(topo, targets)
			if err != nil {
				return err
			}
			if len(consumers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "every named consumer is already at its target power state")
				return nil
			}

			flags := seqgen.SearchFlags{
				AdvancedBacktracking:         advanced,
				PreferConcurrentInterleaving: concurrent,
			}

			phases, err := seqgen.Interleave(context.Background(), topo, consumers, flags, nil)
			if err != nil {
				return err
			}

			rendered, err := seqgen.RenderTransition(context.Background(), topo, phases, flags, nil)
			if err != nil {
				return err
			}
			for i, cmds := range rendered {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "#")
				}
				for _, c := range cmds {
					fmt.Fprintln(cmd.OutOrStdout(), c.Text)
				}
			}

			for consumer, state := range targets {
				if err := topo.SetInitialNodeState(consumer, state); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&platformPath, "platform", "", "path to the platform description YAML")
	cmd.Flags().StringVar(&targetPath, "targets", "", "path to the consumer->target-power-state YAML")
	cmd.Flags().BoolVar(&concurrent, "concurrent", true, "advance every consumer with an available step in the same phase")
	cmd.Flags().BoolVar(&advanced, "advanced-backtracking", false, "use conflict-directed backjumping instead of naive backtracking")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log search/event-graph diagnostics to stderr")
	cmd.MarkFlagRequired("platform")
	cmd.MarkFlagRequired("targets")

	return cmd
}

func loadTargetStates(path string) (platformdesc.TargetStatesDoc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("powerseq: opening targets: %w", err)
	}
	defer f.Close()

	var doc platformdesc.TargetStatesDoc
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("powerseq: decoding targets: %w", err)
	}
	return doc, nil
}

// consumerSteps builds one seqgen.ConsumerSteps per named consumer whose
// target differs from topo.CurrentNodeState, in a fixed (sorted) order so
// the interleaver's lattice walk is reproducible across runs.
func consumerSteps(topo *seqgen.Topology, targets platformdesc.TargetStatesDoc) ([]seqgen.ConsumerSteps, error) {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []seqgen.ConsumerSteps
	for _, name := range names {
		target := targets[name]
		comp, ok := topo.Components[name]
		if !ok {
			return nil, fmt.Errorf("powerseq: unknown consumer %q", name)
		}
		current, ok := topo.CurrentNodeState[name]
		if !ok {
			return nil, fmt.Errorf("powerseq: consumer %q has no initial power state set", name)
		}
		if current == target {
			continue
		}
		ps, ok := comp.PowerStates[target]
		if !ok {
			return nil, fmt.Errorf("powerseq: consumer %q has no power state %q", name, target)
		}
		steps, ok := ps.Transitions[current]
		if !ok {
			return nil, fmt.Errorf("powerseq: consumer %q has no transition from %q to %q", name, current, target)
		}
		out = append(out, seqgen.ConsumerSteps{Consumer: name, Steps: steps})
	}
	return out, nil
}
