package platformdesc

import (
	"fmt"

	"github.com/sockeye-project/powerseq/pkg/seqgen"
)

// DimensionSpec is the YAML-friendly form of a seqgen.Dimension: exactly
// one of Range or Set must be set.
type DimensionSpec struct {
	Range []int `yaml:"range,omitempty"`
	Set   []int `yaml:"set,omitempty"`
}

// OptionSpec is the YAML-friendly form of a seqgen.Option.
type OptionSpec []DimensionSpec

// RequirementsDoc is the YAML document shape for a target condition: one
// disjunctive state-space per conductor (spec.md §4.4's search input).
type RequirementsDoc map[string][]OptionSpec

// DecodeRequirements converts a RequirementsDoc into the
// map[string]seqgen.StateSpace the engine's Search/Sequence entry points
// accept.
func DecodeRequirements(doc RequirementsDoc) (map[string]seqgen.StateSpace, error) {
	out := make(map[string]seqgen.StateSpace, len(doc))
	for conductor, options := range doc {
		if len(options) == 0 {
			return nil, fmt.Errorf("platformdesc: requirement for %q has no options", conductor)
		}
		var space seqgen.StateSpace
		for _, opt := range options {
			o := make(seqgen.Option, 0, len(opt))
			for i, d := range opt {
				dim, err := decodeDimension(conductor, i, d)
				if err != nil {
					return nil, err
				}
				o = append(o, dim)
			}
			space = append(space, o)
		}
		out[conductor] = space
	}
	return out, nil
}

// TargetStatesDoc is the YAML document shape for a transition request: the
// power state each named consumer should end up in (spec.md §4.7's "target
// power state" input).
type TargetStatesDoc map[string]string

func decodeDimension(conductor string, idx int, d DimensionSpec) (seqgen.Dimension, error) {
	switch {
	case len(d.Range) == 2 && len(d.Set) == 0:
		return seqgen.Range(d.Range[0], d.Range[1]), nil
	case len(d.Set) > 0 && len(d.Range) == 0:
		return seqgen.Set(d.Set...), nil
	default:
		return seqgen.Dimension{}, fmt.Errorf("platformdesc: requirement for %q dimension %d must set exactly one of range/set", conductor, idx)
	}
}
