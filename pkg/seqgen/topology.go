package seqgen

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// WireConsumer identifies one (component, pin) endpoint a wire feeds.
type WireConsumer struct {
	Component string
	Pin       string
}

// Wire connects one producer's output pin to any number of consumer input
// pins, all carrying the single named conductor (spec.md §3).
type Wire struct {
	Name        string
	Producer    string
	ProducerPin string
	Consumers   []WireConsumer
}

// Conductor is the bound, concrete form of a Wire: the producer's Output
// possibilities and set renderer, the union of every attached input's
// monitor callbacks, and the conductor's AMR and live state.
type Conductor struct {
	Name          string
	Type          ConductorKind
	AMR           StateSpace
	Possibilities []Possibility
	Monitors      []MonitorFunc
	Set           SetRenderer

	Producer     string
	ProducerPin  string
	Consumers    []WireConsumer

	Current      Option     // nil until the platform has been driven at least once
	CurrentRange StateSpace // the most-recently-chosen restricted range
}

// Topology binds a component catalogue plus a wire list into a concrete
// graph: it computes every conductor's AMR, rewrites possibility
// requirement/complex-constraint keys from producer-local pin names to
// global conductor names, registers monitor callbacks, and tracks the
// platform's current wire and node state (spec.md §3).
//
// Topology is the one piece of mutable shared state in the engine (spec.md
// §5): current_wire_state / current_node_state and the last committed
// assignment live here, mutated only on the single search-apply thread that
// owns this Topology value. The SMT solver is passed to each Search call and
// rendered commands are returned in a Plan; neither is stored on Topology.
type Topology struct {
	Conductors map[string]*Conductor
	Components map[string]*Component

	// CurrentNodeState holds one power-state name per consumer; mutated only
	// after an interleaving has been fully emitted (spec.md §3).
	CurrentNodeState map[string]string

	// LastAssignment is the most recently committed Assignment, consulted
	// by SearchFlags.RestrictedSearch to short-circuit a new Search call
	// that the cached assignment already satisfies.
	LastAssignment *Assignment

	Logger zerolog.Logger

	// pinConductor maps "component/pin" -> conductor name, used to rewrite
	// possibility requirement keys and to resolve a consumer's pins when
	// building its Power States.
	pinConductor map[string]string
}

func pinKey(component, pin string) string { return component + "/" + pin }

// NewTopology binds components and wires into a Topology, applying the four
// construction steps of spec.md §4.2 and checking the invariants of
// spec.md §3. The returned Topology has a disabled (zerolog.Nop) logger by
// default; call topo.Logger = ... to attach one.
func NewTopology(components []*Component, wires []Wire) (*Topology, error) {
	t := &Topology{
		Conductors:       make(map[string]*Conductor),
		Components:       make(map[string]*Component),
		CurrentNodeState: make(map[string]string),
		Logger:           zerolog.Nop(),
		pinConductor:     make(map[string]string),
	}
	for _, c := range components {
		if _, dup := t.Components[c.Name]; dup {
			return nil, &WireError{Conductor: c.Name, Reason: "duplicate component name"}
		}
		t.Components[c.Name] = c
	}

	usedOutputPin := make(map[string]bool)

	for _, w := range wires {
		producer, ok := t.Components[w.Producer]
		if !ok {
			return nil, &WireError{Conductor: w.Name, Reason: fmt.Sprintf("unknown producer component %q", w.Producer)}
		}
		out, ok := producer.Outputs[w.ProducerPin]
		if !ok {
			return nil, &WireError{Conductor: w.Name, Reason: fmt.Sprintf("producer %q has no output pin %q", w.Producer, w.ProducerPin)}
		}
		opKey := pinKey(w.Producer, w.ProducerPin)
		if usedOutputPin[opKey] {
			return nil, &WireError{Conductor: w.Name, Reason: fmt.Sprintf("output pin %s is wired more than once", opKey)}
		}
		usedOutputPin[opKey] = true

		cond := &Conductor{
			Name:        w.Name,
			Type:        out.WireType,
			AMR:         out.DeclaredAMR,
			Set:         out.Set,
			Producer:    w.Producer,
			ProducerPin: w.ProducerPin,
			Consumers:   w.Consumers,
		}

		// Step 1: AMR = intersect(producer AMR, every attached input's AMR).
		for _, cns := range w.Consumers {
			consComp, ok := t.Components[cns.Component]
			if !ok {
				return nil, &WireError{Conductor: w.Name, Reason: fmt.Sprintf("unknown consumer component %q", cns.Component)}
			}
			in, ok := consComp.Inputs[cns.Pin]
			if !ok {
				return nil, &WireError{Conductor: w.Name, Reason: fmt.Sprintf("consumer %q has no input pin %q", cns.Component, cns.Pin)}
			}
			if in.DeclaredType != out.WireType && in.Monitor == nil {
				return nil, &WireError{Conductor: w.Name, Reason: fmt.Sprintf(
					"input %s/%s declares type %s but producer drives %s; only monitor inputs may differ",
					cns.Component, cns.Pin, in.DeclaredType, out.WireType)}
			}
			if in.DeclaredAMR != nil {
				merged, err := Intersect(w.Name, cond.AMR, in.DeclaredAMR)
				if err != nil {
					return nil, err
				}
				cond.AMR = merged
			}
			t.pinConductor[pinKey(cns.Component, cns.Pin)] = w.Name

			// Step 3/4: instantiate monitor adapter, register onto the input.
			if in.Monitor != nil {
				cond.Monitors = append(cond.Monitors, in.Monitor(consComp, w.Name))
			}
		}
		t.pinConductor[opKey] = w.Name

		if cond.AMR.IsEmpty() {
			return nil, &WireError{Conductor: w.Name, Reason: "conductor AMR is empty after intersecting producer and input ranges"}
		}

		// Step 2: rewrite possibility requirement keys and complex-constraint
		// arg specs from producer-local pin names to global conductor names.
		rewritten := make([]Possibility, len(out.Possibilities))
		for i, p := range out.Possibilities {
			rp := p
			if len(p.Requirements) > 0 {
				rp.Requirements = make(map[string]StateSpace, len(p.Requirements))
				for k, v := range p.Requirements {
					rp.Requirements[t.resolveLocalName(w.Producer, k)] = v
				}
			}
			if len(p.Complex) > 0 {
				rp.Complex = make([]ComplexConstraint, len(p.Complex))
				for ci, cc := range p.Complex {
					rcc := cc
					rcc.Args = make([]ArgSpec, len(cc.Args))
					for ai, as := range cc.Args {
						rcc.Args[ai] = ArgSpec{Conductor: t.resolveLocalName(w.Producer, as.Conductor), DimIndex: as.DimIndex}
					}
					rp.Complex[ci] = rcc
				}
			}
			rewritten[i] = rp
		}
		cond.Possibilities = rewritten

		t.Conductors[w.Name] = cond
	}

	if err := t.bindConsumers(); err != nil {
		return nil, err
	}

	return t, nil
}

// resolveLocalName rewrites a requirement/arg-spec key that names one of
// component's own pins into the conductor name that pin is wired to. Keys
// that don't match a local pin of component are assumed to already be
// global conductor names.
func (t *Topology) resolveLocalName(component, key string) string {
	if cond, ok := t.pinConductor[pinKey(component, key)]; ok {
		return cond
	}
	return key
}

// bindConsumers builds every consumer's Power States from its
// PowerStatesFactory, resolving local pin names to conductor names, then
// absolutizes each transition step's delta requirement dict by folding it
// onto the origin power state's AMR and appends the destination AMR as a
// final step (spec.md §3 "Consumer.Power State").
func (t *Topology) bindConsumers() error {
	names := make([]string, 0, len(t.Components))
	for name := range t.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := t.Components[name]
		if c.PowerStatesFactory == nil {
			continue
		}
		resolvedPins := make(map[string]string)
		for pin := range c.Inputs {
			if cond, ok := t.pinConductor[pinKey(name, pin)]; ok {
				resolvedPins[pin] = cond
			}
		}
		for pin := range c.Outputs {
			if cond, ok := t.pinConductor[pinKey(name, pin)]; ok {
				resolvedPins[pin] = cond
			}
		}
		states := c.PowerStatesFactory(resolvedPins)
		for _, ps := range states {
			for origin, steps := range ps.Transitions {
				originState, ok := states[origin]
				if !ok {
					return &WireError{Conductor: name, Reason: fmt.Sprintf("transition from unknown origin power state %q", origin)}
				}
				running := cloneSpaceDict(originState.AMR)
				abs := make([]TransitionStep, 0, len(steps)+1)
				for _, step := range steps {
					for k, v := range step.Delta {
						running[k] = v
					}
					step.Absolute = cloneSpaceDict(running)
					abs = append(abs, step)
				}
				final := TransitionStep{Annotation: "reach " + ps.Name, Absolute: cloneSpaceDict(ps.AMR)}
				abs = append(abs, final)
				ps.Transitions[origin] = abs
			}
		}
		c.PowerStates = states
		if _, ok := t.CurrentNodeState[name]; !ok {
			// Caller sets the true initial state; leave unset here so a
			// missing initial assignment is detectable.
		}
	}
	return nil
}

func cloneSpaceDict(d map[string]StateSpace) map[string]StateSpace {
	out := make(map[string]StateSpace, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// SetInitialNodeState records consumer's starting power state. Must be
// called for every consumer before the first Sequence call.
func (t *Topology) SetInitialNodeState(consumer, state string) error {
	c, ok := t.Components[consumer]
	if !ok {
		return &WireError{Conductor: consumer, Reason: "unknown component"}
	}
	if _, ok := c.PowerStates[state]; !ok {
		return &WireError{Conductor: consumer, Reason: fmt.Sprintf("unknown power state %q", state)}
	}
	t.CurrentNodeState[consumer] = state
	return nil
}

// commitAssignment records a just-applied Assignment as the platform's live
// state (spec.md §3: "current_wire_state and current_wire_state_range are
// updated atomically after each successful sequence application"). Every
// conductor assignment touched gets its Current value and CurrentRange
// (the narrowed, pre-concretize space the search decided, or a single-point
// space around Current when the solving path kept no such range, as in the
// use_z3 whole-problem encoding) updated, and the assignment itself is
// cached for a later RestrictedSearch call.
func (t *Topology) commitAssignment(a Assignment) {
	for name, value := range a.Values {
		cond, ok := t.Conductors[name]
		if !ok {
			continue
		}
		cond.Current = value
		if r, ok := a.Ranges[name]; ok && r != nil {
			cond.CurrentRange = r
		} else {
			cond.CurrentRange = Single(value...)
		}
	}
	t.LastAssignment = &a
}

// restrictedAssignment implements SearchFlags.RestrictedSearch: it reports
// whether the cached LastAssignment still satisfies every requirement in
// seed, in which case a fresh search can be skipped entirely.
func (t *Topology) restrictedAssignment(seed map[string]StateSpace) (Assignment, bool) {
	if t.LastAssignment == nil {
		return Assignment{}, false
	}
	for name, required := range seed {
		value, ok := t.LastAssignment.Values[name]
		if !ok || !Contains(required, value) {
			return Assignment{}, false
		}
	}
	return *t.LastAssignment, true
}

// PlatformAMR returns the dictionary of every conductor's AMR, used when
// SearchFlags.Extend is set (spec.md §6).
func (t *Topology) PlatformAMR() map[string]StateSpace {
	out := make(map[string]StateSpace, len(t.Conductors))
	for name, c := range t.Conductors {
		out[name] = c.AMR
	}
	return out
}

// conductorOrder returns conductor names in a fixed, deterministic order
// (lexicographic), the "arbitrary but fixed order" spec.md §4.4 calls for.
// No topological ordering is applied.
func (t *Topology) conductorOrder() []string {
	names := make([]string, 0, len(t.Conductors))
	for name := range t.Conductors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
