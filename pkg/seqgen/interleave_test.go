package seqgen

import (
	"context"
	"testing"
)

func twoStepSequences() []ConsumerSteps {
	return []ConsumerSteps{
		{Consumer: "cpu", Steps: []TransitionStep{
			{Annotation: "cpu step 1"},
			{Annotation: "cpu step 2"},
		}},
		{Consumer: "fpga", Steps: []TransitionStep{
			{Annotation: "fpga step 1"},
		}},
	}
}

func TestInterleaveConcurrentPreferenceMergesPhases(t *testing.T) {
	phases, err := Interleave(context.Background(), nil, twoStepSequences(), SearchFlags{PreferConcurrentInterleaving: true}, nil)
	if err != nil {
		t.Fatalf("Interleave: %v", err)
	}
	total := 0
	for _, p := range phases {
		total += len(p.Advances)
	}
	if total != 3 {
		t.Fatalf("expected 3 total step advances across phases, got %d", total)
	}
	if len(phases) == 0 {
		t.Fatalf("expected at least one phase")
	}
	// the first phase should advance both consumers concurrently, since both
	// have a step available at the origin.
	if len(phases[0].Advances) != 2 {
		t.Fatalf("expected the first phase to advance both consumers concurrently, got %v", phases[0].Advances)
	}
}

func TestInterleaveSequentialPreferenceOnlyAdvancesOne(t *testing.T) {
	phases, err := Interleave(context.Background(), nil, twoStepSequences(), SearchFlags{PreferConcurrentInterleaving: false}, nil)
	if err != nil {
		t.Fatalf("Interleave: %v", err)
	}
	for _, p := range phases {
		if len(p.Advances) > 1 {
			t.Fatalf("sequential mode should never advance more than one consumer per phase, got %v", p.Advances)
		}
	}
	total := 0
	for _, p := range phases {
		total += len(p.Advances)
	}
	if total != 3 {
		t.Fatalf("expected every step to still be emitted exactly once, got %d", total)
	}
}

func TestInterleaveEmptyInput(t *testing.T) {
	phases, err := Interleave(context.Background(), nil, nil, SearchFlags{}, nil)
	if err != nil {
		t.Fatalf("Interleave: %v", err)
	}
	if len(phases) != 0 {
		t.Fatalf("expected no phases for no consumers, got %v", phases)
	}
}

func TestInterleaveSingleConsumerIsOneStepPerPhase(t *testing.T) {
	phases, err := Interleave(context.Background(), nil, []ConsumerSteps{
		{Consumer: "cpu", Steps: []TransitionStep{{Annotation: "a"}, {Annotation: "b"}, {Annotation: "c"}}},
	}, SearchFlags{PreferConcurrentInterleaving: true}, nil)
	if err != nil {
		t.Fatalf("Interleave: %v", err)
	}
	if len(phases) != 3 {
		t.Fatalf("expected 3 phases for a single 3-step consumer, got %d", len(phases))
	}
}

// twoConductorStepTopology builds a topology with two independent logical
// conductors "ea" and "eb", each driven by a single consumer that can only
// turn its own conductor on — used to exercise Interleave's feasibility
// probe against genuine per-step Absolute requirement dicts.
func twoConductorStepTopology(t *testing.T) *Topology {
	t.Helper()

	consumer := NewComponent("c", "0x0", "Sink")
	consumer.AddInput(&Input{Name: "A", DeclaredType: KindLogical, DeclaredAMR: Single(Set(0, 1))})
	consumer.AddInput(&Input{Name: "B", DeclaredType: KindLogical, DeclaredAMR: Single(Set(0, 1))})

	producer := NewComponent("p", "0x0", "Source")
	producer.AddOutput(&Output{
		Name: "OA", WireType: KindLogical, DeclaredAMR: Single(Set(0, 1)),
		Possibilities: []Possibility{{Kind: KindConstantPossibility, State: Single(Set(0, 1))}},
	})
	producer.AddOutput(&Output{
		Name: "OB", WireType: KindLogical, DeclaredAMR: Single(Set(0, 1)),
		Possibilities: []Possibility{{Kind: KindConstantPossibility, State: Single(Set(0, 1))}},
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

func TestInterleaveProbesFeasibilityOfEachMove(t *testing.T) {
	topo := twoConductorStepTopology(t)

	consumers := []ConsumerSteps{
		{Consumer: "cpu", Steps: []TransitionStep{
			{Annotation: "enable ea", Absolute: map[string]StateSpace{"ea": Single(Set(1))}},
		}},
		{Consumer: "fpga", Steps: []TransitionStep{
			{Annotation: "enable eb", Absolute: map[string]StateSpace{"eb": Single(Set(1))}},
		}},
	}

	phases, err := Interleave(context.Background(), topo, consumers, SearchFlags{PreferConcurrentInterleaving: true}, nil)
	if err != nil {
		t.Fatalf("Interleave: %v", err)
	}
	total := 0
	for _, p := range phases {
		total += len(p.Advances)
	}
	if total != 2 {
		t.Fatalf("expected both consumers' single step to be emitted, got %d advances across %v", total, phases)
	}
}

func TestInterleaveRejectsInfeasibleMove(t *testing.T) {
	topo := twoConductorStepTopology(t)
	// ea's restricted range has already been narrowed to {0}: a step
	// requiring ea=1 can never probe feasible against it.
	topo.Conductors["ea"].CurrentRange = Single(Set(0))

	consumers := []ConsumerSteps{
		{Consumer: "cpu", Steps: []TransitionStep{
			{Annotation: "enable ea", Absolute: map[string]StateSpace{"ea": Single(Set(1))}},
		}},
	}

	_, err := Interleave(context.Background(), topo, consumers, SearchFlags{}, nil)
	if err == nil {
		t.Fatalf("expected an infeasible-move error")
	}
	if _, ok := err.(*SynthesisError); !ok {
		t.Fatalf("expected *SynthesisError, got %T: %v", err, err)
	}
}
