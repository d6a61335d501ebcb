package seqgen

import (
	"context"
	"testing"
)

// twoLogicalConductorTopology builds a producer driving two independent
// logical conductors, each with a Set renderer, used to exercise command
// emission and commit behaviour.
func twoLogicalConductorTopology(t *testing.T) *Topology {
	t.Helper()

	consumer := NewComponent("c", "0x0", "Sink")
	consumer.AddInput(&Input{Name: "A", DeclaredType: KindLogical, DeclaredAMR: Single(Set(0, 1))})
	consumer.AddInput(&Input{Name: "B", DeclaredType: KindLogical, DeclaredAMR: Single(Set(0, 1))})

	producer := NewComponent("p", "0x0", "Source")
	producer.AddOutput(&Output{
		Name: "OA", WireType: KindLogical, DeclaredAMR: Single(Set(0, 1)),
		Possibilities: []Possibility{{Kind: KindConstantPossibility, State: Single(Set(1)), Dependency: EventFragment{Kind: InitiateExplicit}}},
		Set:           func(v Option) string { return "set ea " + v.String() },
	})
	producer.AddOutput(&Output{
		Name: "OB", WireType: KindLogical, DeclaredAMR: Single(Set(0, 1)),
		Possibilities: []Possibility{{Kind: KindConstantPossibility, State: Single(Set(0)), Dependency: EventFragment{Kind: InitiateExplicit}}},
		Set:           func(v Option) string { return "set eb " + v.String() },
	})

	wires := []Wire{
		{Name: "ea", Producer: "p", ProducerPin: "OA", Consumers: []WireConsumer{{Component: "c", Pin: "A"}}},
		{Name: "eb", Producer: "p", ProducerPin: "OB", Consumers: []WireConsumer{{Component: "c", Pin: "B"}}},
	}
	topo, err := NewTopology([]*Component{consumer, producer}, wires)
	if err != nil {
		t.Fatalf("NewTopology: %v", err)
	}
	return topo
}

func TestSequenceCommitsAssignment(t *testing.T) {
	topo := twoLogicalConductorTopology(t)
	requirements := map[string]StateSpace{"ea": Single(Set(0, 1)), "eb": Single(Set(0, 1))}

	plan, err := Sequence(context.Background(), topo, requirements, SearchFlags{}, nil)
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	if len(plan.Commands()) == 0 {
		t.Fatalf("expected at least one rendered command")
	}

	ea := topo.Conductors["ea"]
	if ea.Current == nil {
		t.Fatalf("expected ea.Current to be populated after Sequence")
	}
	if len(ea.Current) != 1 || ea.Current[0].Set[0] != 1 {
		t.Fatalf("ea.Current = %v, want {1}", ea.Current)
	}
	if ea.CurrentRange == nil || !Contains(ea.CurrentRange, ea.Current) {
		t.Fatalf("expected ea.CurrentRange to contain ea.Current, got %v", ea.CurrentRange)
	}
	if topo.LastAssignment == nil {
		t.Fatalf("expected Sequence to cache LastAssignment")
	}
}

func TestSequenceRestrictedSearchSkipsBacktracker(t *testing.T) {
	topo := twoLogicalConductorTopology(t)
	full := map[string]StateSpace{"ea": Single(Set(0, 1)), "eb": Single(Set(0, 1))}

	if _, err := Sequence(context.Background(), topo, full, SearchFlags{}, nil); err != nil {
		t.Fatalf("first Sequence: %v", err)
	}

	requirements := map[string]StateSpace{"ea": Single(Set(1))}
	solutions, err := Search(context.Background(), topo, requirements, SearchFlags{RestrictedSearch: true}, nil)
	if err != nil {
		t.Fatalf("restricted Search: %v", err)
	}
	if len(solutions) != 1 {
		t.Fatalf("expected exactly the cached assignment, got %d solutions", len(solutions))
	}
	if solutions[0].Values["ea"][0].Set[0] != 1 {
		t.Fatalf("expected the cached ea=1 assignment to be reused, got %v", solutions[0].Values["ea"])
	}

	unsatisfied := map[string]StateSpace{"ea": Single(Set(0))}
	if _, ok := topo.restrictedAssignment(unsatisfied); ok {
		t.Fatalf("expected the cached assignment to be rejected once it no longer satisfies requirements")
	}
}

func TestRenderTransitionRunsSearchAndEventGraphPerPhase(t *testing.T) {
	topo := twoLogicalConductorTopology(t)

	phases := []InterleavedPhase{
		{Advances: map[string]TransitionStep{
			"cpu": {Annotation: "enable ea", Absolute: map[string]StateSpace{"ea": Single(Set(1))}},
		}},
		{Advances: map[string]TransitionStep{
			"fpga": {Annotation: "disable eb", Absolute: map[string]StateSpace{"eb": Single(Set(0))}},
		}},
	}

	rendered, err := RenderTransition(context.Background(), topo, phases, SearchFlags{}, nil)
	if err != nil {
		t.Fatalf("RenderTransition: %v", err)
	}
	if len(rendered) != 2 {
		t.Fatalf("expected one rendered command list per phase, got %d", len(rendered))
	}
	if len(rendered[0]) == 0 || len(rendered[1]) == 0 {
		t.Fatalf("expected commands for both phases, got %v", rendered)
	}

	if topo.Conductors["ea"].Current == nil || topo.Conductors["eb"].Current == nil {
		t.Fatalf("expected RenderTransition to commit each phase's assignment")
	}

	// a second RenderTransition over the same phases should now see both
	// conductors as already at their target and emit no further commands.
	rendered2, err := RenderTransition(context.Background(), topo, phases, SearchFlags{}, nil)
	if err != nil {
		t.Fatalf("RenderTransition (second pass): %v", err)
	}
	for i, phase := range rendered2 {
		if len(phase) != 0 {
			t.Fatalf("phase %d: expected no commands once every conductor is already at target, got %v", i, phase)
		}
	}
}
