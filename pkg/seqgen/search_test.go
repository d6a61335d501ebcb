package seqgen

import (
	"context"
	"testing"
)

// threeConductorTopology mirrors the Node1/Node2 fixture used by the
// original implementation's SMT recovery tests: a producer with three
// unconditional, single-possibility outputs wired one-to-one into a
// consumer's three inputs, whose declared AMRs only partly overlap the
// outputs'.
func threeConductorTopology(t *testing.T) *Topology {
	t.Helper()

	n1 := NewComponent("n1", "0x0", "Node1")
	n1.AddInput(&Input{Name: "I1", DeclaredType: KindPower, DeclaredAMR: Multi(Option{Range(4, 9)}, Option{Range(25, 60)})})
	n1.AddInput(&Input{Name: "I2", DeclaredType: KindLogical, DeclaredAMR: Single(Set(0, 1))})
	n1.AddInput(&Input{Name: "I3", DeclaredType: KindPower, DeclaredAMR: Multi(Option{Set(6, 3, 4)}, Option{Set(8, 1, 4)})})

	n2 := NewComponent("n2", "0x0", "Node2")
	n2.AddOutput(&Output{
		Name:        "O1",
		WireType:    KindPower,
		DeclaredAMR: Multi(Option{Range(0, 25)}, Option{Range(0, 250)}),
		Possibilities: []Possibility{
			{Kind: KindConstantPossibility, State: Multi(Option{Range(5, 5)}, Option{Range(44, 44)})},
		},
	})
	n2.AddOutput(&Output{
		Name:        "O2",
		WireType:    KindLogical,
		DeclaredAMR: Single(Set(0, 1)),
		Possibilities: []Possibility{
			{Kind: KindConstantPossibility, State: Single(Set(0, 1))},
		},
	})
	n2.AddOutput(&Output{
		Name:        "O3",
		WireType:    KindPower,
		DeclaredAMR: Multi(Option{Set(3, 4, 7)}, Option{Set(29, 1, 99)}),
		Possibilities: []Possibility{
			{Kind: KindConstantPossibility, State: Multi(Option{Set(3)}, Option{Set(1)})},
		},
	})

	wires := []Wire{
		{Name: "w1", Producer: "n2", ProducerPin: "O1", Consumers: []WireConsumer{{Component: "n1", Pin: "I1"}}},
		{Name: "w2", Producer: "n2", ProducerPin: "O2", Consumers: []WireConsumer{{Component: "n1", Pin: "I2"}}},
		{Name: "w3", Producer: "n2", ProducerPin: "O3", Consumers: []WireConsumer{{Component: "n1", Pin: "I3"}}},
	}

	topo, err := NewTopology([]*Component{n1, n2}, wires)
	if err != nil {
		t.Fatalf("NewTopology: %v", err)
	}
	return topo
}

func TestSearchRecoverSolution(t *testing.T) {
	topo := threeConductorTopology(t)

	solutions, err := Search(context.Background(), topo, nil, SearchFlags{UseZ3: true}, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(solutions) != 1 {
		t.Fatalf("expected exactly 1 solution, got %d", len(solutions))
	}

	sol := solutions[0].Values
	w1 := sol["w1"][0]
	if !(w1.Lo == 5 && w1.Hi == 5) && !(w1.Lo == 44 && w1.Hi == 44) {
		t.Fatalf("w1 = %v, want (5,5) or (44,44)", w1)
	}
	w2 := sol["w2"][0]
	if len(w2.Set) != 1 || (w2.Set[0] != 0 && w2.Set[0] != 1) {
		t.Fatalf("w2 = %v, want {0} or {1}", w2)
	}
	w3 := sol["w3"][0]
	if len(w3.Set) != 1 || (w3.Set[0] != 3 && w3.Set[0] != 1) {
		t.Fatalf("w3 = %v, want {3} or {1}", w3)
	}
}

func TestSearchUnsatRequirement(t *testing.T) {
	topo := threeConductorTopology(t)

	requirements := map[string]StateSpace{
		"w3": Multi(Option{Set(4)}, Option{Set(1)}),
	}

	_, err := Search(context.Background(), topo, requirements, SearchFlags{UseZ3: true}, nil)
	if err == nil {
		t.Fatalf("expected no satisfying assignment, got a solution")
	}
	if _, ok := err.(*SynthesisError); !ok {
		t.Fatalf("expected *SynthesisError, got %T: %v", err, err)
	}
}

func TestSearchNaiveWithNoRequirementsFindsOneSolution(t *testing.T) {
	topo := threeConductorTopology(t)

	naive, err := Search(context.Background(), topo, nil, SearchFlags{}, nil)
	if err != nil {
		t.Fatalf("naive Search: %v", err)
	}
	if len(naive) != 1 {
		t.Fatalf("expected exactly 1 solution, got %d", len(naive))
	}
}

// threeConductorComponentsAndWires returns the same components/wires
// threeConductorTopology binds, unassembled, so a test can feed NewTopology
// different orderings of the same inputs.
func threeConductorComponentsAndWires() ([]*Component, []Wire) {
	n1 := NewComponent("n1", "0x0", "Node1")
	n1.AddInput(&Input{Name: "I1", DeclaredType: KindPower, DeclaredAMR: Multi(Option{Range(4, 9)}, Option{Range(25, 60)})})
	n1.AddInput(&Input{Name: "I2", DeclaredType: KindLogical, DeclaredAMR: Single(Set(0, 1))})
	n1.AddInput(&Input{Name: "I3", DeclaredType: KindPower, DeclaredAMR: Multi(Option{Set(6, 3, 4)}, Option{Set(8, 1, 4)})})

	n2 := NewComponent("n2", "0x0", "Node2")
	n2.AddOutput(&Output{
		Name:        "O1",
		WireType:    KindPower,
		DeclaredAMR: Multi(Option{Range(0, 25)}, Option{Range(0, 250)}),
		Possibilities: []Possibility{
			{Kind: KindConstantPossibility, State: Multi(Option{Range(5, 5)}, Option{Range(44, 44)})},
		},
	})
	n2.AddOutput(&Output{
		Name:        "O2",
		WireType:    KindLogical,
		DeclaredAMR: Single(Set(0, 1)),
		Possibilities: []Possibility{
			{Kind: KindConstantPossibility, State: Single(Set(0, 1))},
		},
	})
	n2.AddOutput(&Output{
		Name:        "O3",
		WireType:    KindPower,
		DeclaredAMR: Multi(Option{Set(3, 4, 7)}, Option{Set(29, 1, 99)}),
		Possibilities: []Possibility{
			{Kind: KindConstantPossibility, State: Multi(Option{Set(3)}, Option{Set(1)})},
		},
	})

	components := []*Component{n1, n2}
	wires := []Wire{
		{Name: "w1", Producer: "n2", ProducerPin: "O1", Consumers: []WireConsumer{{Component: "n1", Pin: "I1"}}},
		{Name: "w2", Producer: "n2", ProducerPin: "O2", Consumers: []WireConsumer{{Component: "n1", Pin: "I2"}}},
		{Name: "w3", Producer: "n2", ProducerPin: "O3", Consumers: []WireConsumer{{Component: "n1", Pin: "I3"}}},
	}
	return components, wires
}

// TestSearchResultIndependentOfNodeWireConstructionOrder covers spec.md §8's
// permutation-invariance property at the construction boundary, not just the
// requirement map: the same nodes and wires, declared in different orders,
// must bind into topologies that yield the same solution count.
func TestSearchResultIndependentOfNodeWireConstructionOrder(t *testing.T) {
	orderings := [][2][]int{
		{{0, 1}, {0, 1, 2}},
		{{1, 0}, {2, 1, 0}},
		{{0, 1}, {2, 0, 1}},
	}

	var first int
	for i, ord := range orderings {
		components, wires := threeConductorComponentsAndWires()

		orderedComponents := make([]*Component, len(ord[0]))
		for j, idx := range ord[0] {
			orderedComponents[j] = components[idx]
		}
		orderedWires := make([]Wire, len(ord[1]))
		for j, idx := range ord[1] {
			orderedWires[j] = wires[idx]
		}

		topo, err := NewTopology(orderedComponents, orderedWires)
		if err != nil {
			t.Fatalf("ordering %d: NewTopology: %v", i, err)
		}

		solutions, err := Search(context.Background(), topo, nil, SearchFlags{UseZ3: true}, nil)
		if err != nil {
			t.Fatalf("ordering %d: Search: %v", i, err)
		}
		if i == 0 {
			first = len(solutions)
			continue
		}
		if len(solutions) != first {
			t.Fatalf("ordering %d: solution count depends on node/wire construction order: %d vs %d", i, len(solutions), first)
		}
	}
}

func TestSearchResultIndependentOfRequirementOrder(t *testing.T) {
	topo := threeConductorTopology(t)

	orderings := []map[string]StateSpace{
		{"w1": Multi(Option{Range(0, 25)}, Option{Range(0, 250)}), "w2": Single(Set(0, 1))},
		{"w2": Single(Set(0, 1)), "w1": Multi(Option{Range(0, 25)}, Option{Range(0, 250)})},
	}

	var first string
	for i, reqs := range orderings {
		solutions, err := Search(context.Background(), topo, reqs, SearchFlags{AdvancedBacktracking: true}, nil)
		if err != nil {
			t.Fatalf("ordering %d: %v", i, err)
		}
		if len(solutions) != 1 {
			t.Fatalf("ordering %d: expected 1 solution, got %d", i, len(solutions))
		}
		got := solutions[0].Values["w1"].String() + " " + solutions[0].Values["w2"].String()
		if i == 0 {
			first = got
		} else if got != first {
			t.Fatalf("result depends on requirement map order: %q vs %q", first, got)
		}
	}
}
