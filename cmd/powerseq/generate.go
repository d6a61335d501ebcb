package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sockeye-project/powerseq/internal/platformdesc"
	"github.com/sockeye-project/powerseq/pkg/seqgen"
)

func newGenerateCmd() *cobra.Command {
	var (
		platformPath    string
		requirementPath string
		allSolutions    bool
		extend          bool
		advanced        bool
		useZ3           bool
		verbose         bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Synthesise a command sequence reaching a target condition",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.Nop()
			if verbose {
				logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			}

			topo, err := loadTopology(platformPath, logger)
			if err != nil {
				return err
			}

			requirements, err := loadRequirements(requirementPath)
			if err != nil {
				return err
			}

			flags := seqgen.SearchFlags{
				AllSolutions:         allSolutions,
				Extend:               extend,
				AdvancedBacktracking: advanced,
				UseZ3:                useZ3,
			}

			plan, err := seqgen.Sequence(context.Background(), topo, requirements, flags, nil)
			if err != nil {
				return err
			}
			for _, line := range plan.Commands() {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&platformPath, "platform", "", "path to the platform description YAML")
	cmd.Flags().StringVar(&requirementPath, "requirements", "", "path to the target-condition requirements YAML")
	cmd.Flags().BoolVar(&allSolutions, "all-solutions", false, "enumerate every satisfying assignment instead of the first")
	cmd.Flags().BoolVar(&extend, "extend", false, "fold the full platform AMR into the requirements before searching")
	cmd.Flags().BoolVar(&advanced, "advanced-backtracking", false, "use conflict-directed backjumping instead of naive backtracking")
	cmd.Flags().BoolVar(&useZ3, "use-z3", false, "route the whole search through the SMT adapter")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log search/event-graph diagnostics to stderr")
	cmd.MarkFlagRequired("platform")
	cmd.MarkFlagRequired("requirements")

	return cmd
}

func loadTopology(path string, logger zerolog.Logger) (*seqgen.Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("powerseq: opening platform description: %w", err)
	}
	defer f.Close()
	return platformdesc.Load(f, platformdesc.NewCatalogue(), logger)
}

// decodePlatformDoc parses a platform description without building it, so a
// caller can rebuild it repeatedly (e.g. against shuffled node/wire order).
func decodePlatformDoc(path string) (platformdesc.Platform, error) {
	f, err := os.Open(path)
	if err != nil {
		return platformdesc.Platform{}, fmt.Errorf("powerseq: opening platform description: %w", err)
	}
	defer f.Close()
	return platformdesc.Decode(f)
}

func loadRequirements(path string) (map[string]seqgen.StateSpace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("powerseq: opening requirements: %w", err)
	}
	defer f.Close()

	var doc platformdesc.RequirementsDoc
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("powerseq: decoding requirements: %w", err)
	}
	return platformdesc.DecodeRequirements(doc)
}
