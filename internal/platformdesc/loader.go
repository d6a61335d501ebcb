package platformdesc

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/sockeye-project/powerseq/pkg/seqgen"
)

// Load decodes a YAML platform description from r, builds every node
// through cat, binds the wire list into a Topology, and applies the
// declared initial consumer power states. logger is attached to the
// returned Topology as given, replacing the zerolog.Nop() logger that
// NewTopology installs.
func Load(r io.Reader, cat *Catalogue, logger zerolog.Logger) (*seqgen.Topology, error) {
	doc, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return Build(doc, cat, logger)
}

// Decode parses a YAML platform description from r without building it,
// letting a caller rebuild the same document multiple times (e.g. against
// shuffled node/wire order, for the permutation-invariance check of spec.md
// §8 scenario 6).
func Decode(r io.Reader) (Platform, error) {
	var doc Platform
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Platform{}, fmt.Errorf("platformdesc: decode: %w", err)
	}
	return doc, nil
}

// Build turns an already-decoded Platform document into a bound Topology.
func Build(doc Platform, cat *Catalogue, logger zerolog.Logger) (*seqgen.Topology, error) {
	components := make([]*seqgen.Component, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		comp, err := cat.Build(n)
		if err != nil {
			return nil, err
		}
		components = append(components, comp)
	}

	wires := make([]seqgen.Wire, 0, len(doc.Wires))
	for _, w := range doc.Wires {
		consumers := make([]seqgen.WireConsumer, 0, len(w.Consumers))
		for _, c := range w.Consumers {
			consumers = append(consumers, seqgen.WireConsumer{Component: c.Component, Pin: c.Pin})
		}
		wires = append(wires, seqgen.Wire{
			Name:        w.Name,
			Producer:    w.Producer,
			ProducerPin: w.ProducerPin,
			Consumers:   consumers,
		})
	}

	topo, err := seqgen.NewTopology(components, wires)
	if err != nil {
		return nil, err
	}
	topo.Logger = logger

	for _, is := range doc.InitialStates {
		if err := topo.SetInitialNodeState(is.Component, is.State); err != nil {
			return nil, err
		}
	}
	return topo, nil
}
