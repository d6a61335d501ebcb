package seqgen

// ConductorKind classifies the electrical/logical role a conductor plays.
type ConductorKind int

const (
	KindPower ConductorKind = iota
	KindLogical
	KindBus
	KindClock
	KindMonitor
)

func (k ConductorKind) String() string {
	switch k {
	case KindPower:
		return "power"
	case KindLogical:
		return "logical"
	case KindBus:
		return "bus"
	case KindClock:
		return "clock"
	case KindMonitor:
		return "monitor"
	default:
		return "unknown"
	}
}

// SetRenderer renders the command string the driver emits when an output is
// asked to set a conductor to value. An Output with no SetRenderer attached
// cannot be the target of an explicit set action (§7 SetError).
type SetRenderer func(value Option) string

// MonitorFunc is the resolved callback a monitor-style Input registers on
// the conductor it taps. It reports whether a wait/confirm command is
// usable for the chosen value and, if so, the command string to emit.
type MonitorFunc func(value Option, full map[string]Option) (usable bool, command string)

// MonitorConstructor builds a MonitorFunc once the attaching component and
// the resolved conductor name are known (spec.md §4.2: "A monitor
// constructor: (component, conductor_name) -> (value, full_state) ->
// (usable, command-string)").
type MonitorConstructor func(comp *Component, conductorName string) MonitorFunc

// Attrs holds a component's live, mutable attributes — the values a
// StateUpdater, DependencyUpdater or DependencySelector reads to decide
// what a possibility currently looks like (e.g. "is this regulator's output
// at its default value?", "what voltage has the user requested?").
type Attrs map[string]any

// Bool reads a boolean attribute, defaulting to false if absent or of the
// wrong type.
func (a Attrs) Bool(key string) bool {
	v, _ := a[key].(bool)
	return v
}

// Int reads an integer attribute, defaulting to 0 if absent or of the wrong
// type.
func (a Attrs) Int(key string) int {
	v, _ := a[key].(int)
	return v
}

// PossibilityKind distinguishes how a Possibility's State and Dependency are
// produced (spec.md §9: "Late-binding updaters ... modelled as tagged
// variants").
type PossibilityKind int

const (
	// KindConstantPossibility uses Possibility.State and Possibility.Dependency
	// as given, with no late binding.
	KindConstantPossibility PossibilityKind = iota
	// KindStateUpdaterPossibility re-derives State (and optionally Dependency)
	// from the component's live Attrs on every search iteration.
	KindStateUpdaterPossibility
	// KindDependencySwitchPossibility selects one of N precomputed
	// DependencyOptions fragments by an integer index read from Attrs.
	KindDependencySwitchPossibility
)

// ArgSpec identifies one dimension of one conductor's assigned value, for
// use as an operand of a ComplexConstraint predicate.
type ArgSpec struct {
	Conductor string
	DimIndex  int
}

// ComplexConstraint is an arbitrary Boolean predicate over the dimensions
// named by Args, evaluated against a resolved assignment (spec.md §4: "used
// for ratio/integer-relation constraints between outputs").
type ComplexConstraint struct {
	Name      string
	Args      []ArgSpec
	Predicate func(values []int) bool
}

// InitiateKind distinguishes an Initiate event caused by an explicit control
// write from one caused implicitly by an upstream change.
type InitiateKind int

const (
	InitiateExplicit InitiateKind = iota
	InitiateImplicit
)

// EventFragment is the ordering-constraint fragment a Possibility attaches
// to its conductor's Initiate/Complete events (spec.md §4.3).
type EventFragment struct {
	Kind InitiateKind

	// Explicit Initiate node sets: names of events that must precede/succeed
	// set_w and w respectively.
	BeforeSet      []string
	BeforeComplete []string
	AfterSet       []string
	AfterComplete  []string

	// Implicit Initiate: given the live, target state dict, returns the set
	// of input conductor names whose change actually causes w to Initiate.
	ImplicitCause func(target map[string]Option) []string
}

// Possibility is one disjunct of a producer Output (spec.md §3 "State
// Possibility").
type Possibility struct {
	Kind PossibilityKind

	// State: re-derived via StateUpdater when Kind ==
	// KindStateUpdaterPossibility and StateUpdater is set; used directly
	// otherwise (see ResolveState).
	State       StateSpace
	StateUpdater func(attrs Attrs) (StateSpace, error)

	// Requirements is the AND of local conditions for this possibility:
	// conductor name -> required state space.
	Requirements map[string]StateSpace

	Complex []ComplexConstraint

	// Dependency is used directly for KindConstantPossibility and
	// KindStateUpdaterPossibility (optionally re-derived via
	// DependencyUpdater). DependencyOptions + DependencySelector are used for
	// KindDependencySwitchPossibility.
	Dependency         EventFragment
	DependencyUpdater  func(attrs Attrs) (EventFragment, error)
	DependencyOptions  []EventFragment
	DependencySelector func(attrs Attrs) int
}

// ResolveState returns this possibility's current state space, applying
// StateUpdater when present.
func (p *Possibility) ResolveState(attrs Attrs) (StateSpace, error) {
	if p.Kind == KindStateUpdaterPossibility && p.StateUpdater != nil {
		return p.StateUpdater(attrs)
	}
	return p.State, nil
}

// ResolveDependency returns this possibility's current event-graph fragment,
// applying DependencyUpdater or DependencySelector when present.
func (p *Possibility) ResolveDependency(attrs Attrs) (EventFragment, error) {
	switch p.Kind {
	case KindDependencySwitchPossibility:
		if p.DependencySelector == nil || len(p.DependencyOptions) == 0 {
			return EventFragment{}, &WireError{Reason: "dependency-switch possibility missing selector or options"}
		}
		idx := p.DependencySelector(attrs)
		if idx < 0 || idx >= len(p.DependencyOptions) {
			return EventFragment{}, &WireError{Reason: "dependency-switch selector index out of range"}
		}
		return p.DependencyOptions[idx], nil
	case KindStateUpdaterPossibility:
		if p.DependencyUpdater != nil {
			return p.DependencyUpdater(attrs)
		}
		return p.Dependency, nil
	default:
		return p.Dependency, nil
	}
}

// Output is a producer pin: it carries the declared wire type, the
// declared AMR, the list of State Possibilities, and the injected renderer
// used to emit an explicit control write.
type Output struct {
	Name        string // local pin name
	WireType    ConductorKind
	DeclaredAMR StateSpace
	Possibilities []Possibility
	Set          SetRenderer
}

// Input is a consumer/monitor pin.
type Input struct {
	Name         string // local pin name
	DeclaredType ConductorKind
	DeclaredAMR  StateSpace
	Monitor      MonitorConstructor // non-nil only for monitor-style taps
}

// TransitionStep is one step of a Power State's incremental transition
// sequence. Delta is relative to the origin power state's AMR at authoring
// time; Absolute is filled in by Topology construction by folding Delta onto
// the origin AMR (spec.md §3).
type TransitionStep struct {
	Annotation string
	Delta      map[string]StateSpace
	Absolute   map[string]StateSpace // populated by Topology.bindConsumers
}

// PowerState is a named operating mode of a consumer.
type PowerState struct {
	Name string
	AMR  map[string]StateSpace
	// Transitions maps origin power-state name -> ordered steps to reach
	// this power state, including a final step carrying this state's own AMR
	// (appended by Topology construction).
	Transitions map[string][]TransitionStep
}

// PowerStatesFactory builds a consumer's named Power States once its pins
// have been resolved to concrete conductor names (local pin name -> bound
// conductor name).
type PowerStatesFactory func(resolvedPins map[string]string) map[string]*PowerState

// Component is one node of the platform: a producer, a consumer, or both.
// Subtype-specific behaviour (spec.md §9 "deep component hierarchies") is a
// small dispatch table — Outputs/Inputs/PowerStatesFactory — rather than
// inheritance, so one Component record can describe any catalogue shape.
type Component struct {
	Name    string
	BusAddr string
	Class   string
	Args    []string

	Outputs map[string]*Output
	Inputs  map[string]*Input

	PowerStatesFactory PowerStatesFactory
	PowerStates        map[string]*PowerState // filled by Topology construction, consumers only

	Attrs Attrs
}

// NewComponent returns an empty Component ready to have Outputs/Inputs
// attached.
func NewComponent(name, busAddr, class string, args ...string) *Component {
	return &Component{
		Name:    name,
		BusAddr: busAddr,
		Class:   class,
		Args:    args,
		Outputs: make(map[string]*Output),
		Inputs:  make(map[string]*Input),
		Attrs:   make(Attrs),
	}
}

// AddOutput attaches an output pin to the component.
func (c *Component) AddOutput(o *Output) *Component {
	c.Outputs[o.Name] = o
	return c
}

// AddInput attaches an input pin to the component.
func (c *Component) AddInput(i *Input) *Component {
	c.Inputs[i.Name] = i
	return c
}
