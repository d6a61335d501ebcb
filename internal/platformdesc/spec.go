// Package platformdesc loads a declarative platform description (the node
// and wire lists of spec.md §2) from YAML and turns it into a bound
// pkg/seqgen Topology via a small component catalogue. This is the
// "external collaborator" input layer spec.md §1 describes as providing
// the structural description the engine consumes — ambient config-loading
// infrastructure, not part of the engine's own algorithms.
package platformdesc

// NodeSpec describes one component instance: which catalogue Class builds
// it, and the Params a class-specific constructor reads (default output
// voltage, undervoltage threshold, device name for init commands, …).
type NodeSpec struct {
	Name    string         `yaml:"name"`
	Class   string         `yaml:"class"`
	BusAddr string         `yaml:"bus_addr,omitempty"`
	Params  map[string]any `yaml:"params,omitempty"`
}

// ConsumerPinSpec names one (component, pin) endpoint a wire feeds.
type ConsumerPinSpec struct {
	Component string `yaml:"component"`
	Pin       string `yaml:"pin"`
}

// WireSpec names the conductor and binds one producer pin to any number of
// consumer pins (spec.md §3 "Conductor").
type WireSpec struct {
	Name        string            `yaml:"name"`
	Producer    string            `yaml:"producer"`
	ProducerPin string            `yaml:"producer_pin"`
	Consumers   []ConsumerPinSpec `yaml:"consumers"`
}

// InitialState pins one consumer's starting power state, applied after the
// Topology is built (spec.md §3: "Topology.SetInitialNodeState").
type InitialState struct {
	Component string `yaml:"component"`
	State     string `yaml:"state"`
}

// Platform is the full loadable document: the node/wire graph plus the
// starting power state of every stateful consumer.
type Platform struct {
	Nodes         []NodeSpec     `yaml:"nodes"`
	Wires         []WireSpec     `yaml:"wires"`
	InitialStates []InitialState `yaml:"initial_states,omitempty"`
}
