package seqgen

import "sort"

// Event name helpers. Possibility authors reference other conductors'
// events through these fully-qualified IDs rather than bare conductor
// names, so the graph builder never has to guess which of a conductor's
// three events (initiate/set/complete) a dependency fragment means
// (spec.md §4.3).
func InitiateEvent(conductor string) string { return "initiate:" + conductor }
func SetEvent(conductor string) string      { return "set:" + conductor }
func CompleteEvent(conductor string) string { return "complete:" + conductor }

// EventGraph is the DAG of per-conductor initiate/set/complete events built
// from the accepted possibilities' EventFragments, plus its topological
// rank decomposition (spec.md §4.3, §4.6).
type EventGraph struct {
	// Nodes is the full event-ID set, in a fixed (sorted) order.
	Nodes []string
	// edges[a] contains every b with "a must happen before b".
	edges map[string][]string
	// ConductorOf maps an event ID back to the conductor it belongs to.
	ConductorOf map[string]string
	// Ranks is the topological decomposition into concurrently-executable
	// phases: Ranks[0] has no predecessors, Ranks[1] depends only on
	// Ranks[0], and so on.
	Ranks [][]string
}

// Successors returns the events that must happen after e.
func (g *EventGraph) Successors(e string) []string { return g.edges[e] }

// eventBuilder accumulates nodes/edges while resolving fragments.
type eventBuilder struct {
	nodes map[string]bool
	edges map[string][]string
	owner map[string]string
}

func newEventBuilder() *eventBuilder {
	return &eventBuilder{
		nodes: map[string]bool{},
		edges: map[string][]string{},
		owner: map[string]string{},
	}
}

func (b *eventBuilder) addNode(id, conductor string) {
	b.nodes[id] = true
	b.owner[id] = conductor
}

func (b *eventBuilder) addEdge(before, after string) {
	b.nodes[before] = true
	b.nodes[after] = true
	b.edges[before] = append(b.edges[before], after)
}

// changed reports whether target differs from cond's previously committed
// Current value. A conductor that has never been driven (Current == nil) is
// always changing — there is no baseline to compare against.
func changed(cond *Conductor, target Option, known bool) bool {
	if cond.Current == nil {
		return true
	}
	if !known {
		return true
	}
	return !optionEqual(cond.Current, target)
}

func optionEqual(a, b Option) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind {
			return false
		}
		switch a[i].Kind {
		case DimRange:
			if a[i].Lo != b[i].Lo || a[i].Hi != b[i].Hi {
				return false
			}
		case DimSet:
			if len(a[i].Set) != len(b[i].Set) {
				return false
			}
			for j := range a[i].Set {
				if a[i].Set[j] != b[i].Set[j] {
					return false
				}
			}
		}
	}
	return true
}

// BuildEventGraph constructs the event DAG for one accepted Assignment,
// given the subset of conductors whose state actually changed from the
// topology's last committed assignment (spec.md §4.6). A conductor is
// "changing" when it has never been driven (Conductor.Current is nil) or
// its chosen value differs from Current; conductors that are not changing
// are excluded from the graph unless flags.RecordUnchanged is set, in
// which case they appear as an isolated three-node chain.
func BuildEventGraph(topo *Topology, assignment Assignment, flags SearchFlags) (*EventGraph, error) {
	b := newEventBuilder()

	for name, idx := range assignment.Chosen {
		cond, ok := topo.Conductors[name]
		if !ok {
			return nil, &WireError{Conductor: name, Reason: "assignment references unknown conductor"}
		}
		if idx < 0 || idx >= len(cond.Possibilities) {
			return nil, &WireError{Conductor: name, Reason: "assignment chose an out-of-range possibility"}
		}

		target, known := assignment.Values[name]
		initiate, set, complete := InitiateEvent(name), SetEvent(name), CompleteEvent(name)

		if !changed(cond, target, known) {
			if flags.RecordUnchanged {
				b.addNode(initiate, name)
				b.addNode(set, name)
				b.addNode(complete, name)
				b.addEdge(initiate, set)
				b.addEdge(set, complete)
			}
			continue
		}

		poss := &cond.Possibilities[idx]
		attrs := topo.Components[cond.Producer].Attrs

		frag, err := poss.ResolveDependency(attrs)
		if err != nil {
			return nil, err
		}

		if frag.Kind == InitiateImplicit && frag.ImplicitCause != nil {
			for _, c := range frag.ImplicitCause(assignment.Values) {
				b.addEdge(CompleteEvent(c), initiate)
			}
		}

		b.addNode(initiate, name)
		b.addNode(set, name)
		b.addNode(complete, name)
		b.addEdge(initiate, set)
		b.addEdge(set, complete)

		for _, before := range frag.BeforeSet {
			b.addEdge(before, set)
		}
		for _, before := range frag.BeforeComplete {
			b.addEdge(before, complete)
		}
		for _, after := range frag.AfterSet {
			b.addEdge(set, after)
		}
		for _, after := range frag.AfterComplete {
			b.addEdge(complete, after)
		}
	}

	return toposort(b)
}

// toposort runs Kahn's algorithm over the builder's accumulated graph,
// peeling one indegree-zero rank at a time (spec.md §4.6: "all events in
// one rank may be emitted concurrently"). A non-empty remainder after no
// further rank can be peeled means the fragment set described a cycle —
// reported as a SynthesisError rather than silently dropped (spec.md
// §4.3 edge case).
func toposort(b *eventBuilder) (*EventGraph, error) {
	nodes := make([]string, 0, len(b.nodes))
	for n := range b.nodes {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	indegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		indegree[n] = 0
	}
	for _, outs := range b.edges {
		for _, to := range outs {
			indegree[to]++
		}
	}

	remaining := map[string]bool{}
	for _, n := range nodes {
		remaining[n] = true
	}

	var ranks [][]string
	for len(remaining) > 0 {
		var rank []string
		for _, n := range nodes {
			if remaining[n] && indegree[n] == 0 {
				rank = append(rank, n)
			}
		}
		if len(rank) == 0 {
			var stuck []string
			for n := range remaining {
				stuck = append(stuck, n)
			}
			sort.Strings(stuck)
			return nil, &SynthesisError{Reason: "event ordering constraints form a cycle", Conductors: conductorsOf(b, stuck)}
		}
		sort.Strings(rank)
		ranks = append(ranks, rank)
		for _, n := range rank {
			delete(remaining, n)
			for _, to := range b.edges[n] {
				if remaining[to] {
					indegree[to]--
				}
			}
		}
	}

	return &EventGraph{Nodes: nodes, edges: b.edges, ConductorOf: b.owner, Ranks: ranks}, nil
}

func conductorsOf(b *eventBuilder, events []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range events {
		c := b.owner[e]
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
