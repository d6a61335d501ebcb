package seqgen

import (
	"context"
	"sort"
	"strings"

	"github.com/sockeye-project/powerseq/pkg/seqgen/smt"
)

// Command is one rendered driver action.
type Command struct {
	Event     string // the event ID this command was emitted for
	Conductor string
	Text      string
}

// Plan is the complete output of Sequence: the chosen Assignment, the event
// graph it was derived from, and the rendered command phases (spec.md §4.6,
// §6 "the engine's output is a sequence of phases").
type Plan struct {
	Assignment  Assignment
	Graph       *EventGraph
	Phases      [][]Command
	EventGraphs []*EventGraph // populated only when SearchFlags.ReturnGraph is set
}

// Commands flattens Phases into the full ordered command list, with a "#"
// marker between phases matching the teacher's practice of visually
// delimiting concurrent batches in rendered output.
func (p *Plan) Commands() []string {
	var out []string
	for i, phase := range p.Phases {
		if i > 0 {
			out = append(out, "#")
		}
		for _, cmd := range phase {
			out = append(out, cmd.Text)
		}
	}
	return out
}

// Sequence is the engine's public entry point (spec.md §4, §7): it searches
// for an assignment satisfying requirements, builds the event graph for the
// chosen assignment, and renders it into phased commands. Unless
// flags.NoOutput is set, every rendered phase actually issues commands;
// with it set, the search and graph-building still run so a caller can
// validate feasibility without driving hardware.
func Sequence(ctx context.Context, topo *Topology, requirements map[string]StateSpace, flags SearchFlags, solver smt.Solver) (*Plan, error) {
	solutions, err := Search(ctx, topo, requirements, flags, solver)
	if err != nil {
		return nil, err
	}

	assignment := solutions[0]
	graph, err := BuildEventGraph(topo, assignment, flags)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Assignment: assignment, Graph: graph}
	if flags.ReturnGraph {
		plan.EventGraphs = append(plan.EventGraphs, graph)
	}

	if flags.NoOutput {
		topo.Logger.Debug().Msg("no_output set, skipping command rendering")
		return plan, nil
	}

	phases, err := renderGraph(topo, assignment, graph)
	if err != nil {
		return nil, err
	}
	plan.Phases = phases
	topo.commitAssignment(assignment)
	return plan, nil
}

// renderGraph walks graph.Ranks in order, rendering one Command per "set"
// event and one per usable monitor of a "complete" event, which may be none
// (spec.md §4.6: "the driver invokes the producer's set renderer" / "the
// consumer's monitor renderer"). "initiate" events are pure ordering markers
// and never render a command.
func renderGraph(topo *Topology, assignment Assignment, graph *EventGraph) ([][]Command, error) {
	phases := make([][]Command, 0, len(graph.Ranks))
	for _, rank := range graph.Ranks {
		var phase []Command
		for _, event := range rank {
			name := graph.ConductorOf[event]
			if name == "" {
				continue
			}
			cond, ok := topo.Conductors[name]
			if !ok {
				return nil, &WireError{Conductor: name, Reason: "event graph references unknown conductor"}
			}
			switch {
			case strings.HasPrefix(event, "set:"):
				if cond.Set == nil {
					return nil, &SetError{Conductor: name}
				}
				value, ok := assignment.Values[name]
				if !ok {
					return nil, &SetError{Conductor: name}
				}
				phase = append(phase, Command{Event: event, Conductor: name, Text: cond.Set(value)})
			case strings.HasPrefix(event, "complete:"):
				value := assignment.Values[name]
				for _, mon := range cond.Monitors {
					usable, text := mon(value, assignment.Values)
					if usable {
						phase = append(phase, Command{Event: event, Conductor: name, Text: text})
					}
				}
			}
		}
		if len(phase) > 0 {
			phases = append(phases, phase)
		}
	}
	return phases, nil
}

// RenderTransition turns one consumer set's interleaved phase list (spec.md
// §4.7 step 5, "for each transition on the path, apply §4.4 + §4.6 as a
// whole-platform change") into Commands: each phase's joint requirement
// dict — the union of every advancing consumer's reached-step Absolute
// state — is run through the same Search-then-BuildEventGraph pipeline
// Sequence uses for a fresh synthesis, so a transition gets the same
// possibility selection, ordering, and concretization guarantees as a
// top-level call, rather than rendering the phase's raw Absolute values
// directly.
func RenderTransition(ctx context.Context, topo *Topology, phases []InterleavedPhase, flags SearchFlags, solver smt.Solver) ([][]Command, error) {
	out := make([][]Command, 0, len(phases))
	for _, phase := range phases {
		names := make([]string, 0, len(phase.Advances))
		for name := range phase.Advances {
			names = append(names, name)
		}
		sort.Strings(names)

		requirements := map[string]StateSpace{}
		for _, consumer := range names {
			if err := UniteDict(requirements, phase.Advances[consumer].Absolute); err != nil {
				return nil, &SynthesisError{Reason: err.Error()}
			}
		}
		if len(requirements) == 0 {
			out = append(out, nil)
			continue
		}

		solutions, err := Search(ctx, topo, requirements, flags, solver)
		if err != nil {
			return nil, err
		}
		assignment := solutions[0]

		graph, err := BuildEventGraph(topo, assignment, flags)
		if err != nil {
			return nil, err
		}

		rendered, err := renderGraph(topo, assignment, graph)
		if err != nil {
			return nil, err
		}
		topo.commitAssignment(assignment)

		var cmds []Command
		for _, rank := range rendered {
			cmds = append(cmds, rank...)
		}
		out = append(out, cmds)
	}
	return out, nil
}
