package seqgen

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sockeye-project/powerseq/pkg/seqgen/smt"
)

// ConsumerSteps is one consumer's ordered transition-step sequence from its
// current power state to its target power state (spec.md §4.7 input: the
// per-consumer TransitionStep list taken from PowerState.Transitions).
type ConsumerSteps struct {
	Consumer string
	Steps    []TransitionStep
}

// InterleavedPhase is one emitted phase of the combined plan: every
// consumer that advances by exactly one of its own steps within this phase,
// keyed by consumer name.
type InterleavedPhase struct {
	Advances map[string]TransitionStep
}

// lattice point: one step index per consumer, in ConsumerSteps order.
type point []int

func (p point) key() string {
	var b strings.Builder
	for i, v := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", v)
	}
	return b.String()
}

func (p point) done(lens []int) bool {
	for i, v := range p {
		if v < lens[i] {
			return false
		}
	}
	return true
}

type parentEdge struct {
	from    string
	advance []int // consumer indices advanced to reach this point from 'from'
}

// Interleave merges N consumers' independent transition-step sequences into
// a single ordered phase list, searching the product lattice of per-
// consumer step indices for a path from all-zero to all-complete (spec.md
// §4.7). A lattice neighbour is only accepted as reachable once its joint
// requirement — every consumer's last-reached step, moving and stationary
// alike — probes SMT-feasible, augmented with each stationary consumer's
// current restricted range on topo. Grounded on the teacher's BFSSearch
// queue-draining shape (search.go) applied here to lattice points instead
// of substitution frames.
func Interleave(ctx context.Context, topo *Topology, consumers []ConsumerSteps, flags SearchFlags, solver smt.Solver) ([]InterleavedPhase, error) {
	n := len(consumers)
	if n == 0 {
		return nil, nil
	}
	lens := make([]int, n)
	for i, c := range consumers {
		lens[i] = len(c.Steps)
	}

	start := make(point, n)
	startKey := start.key()

	visited := map[string]bool{startKey: true}
	parent := map[string]parentEdge{}
	queue := []point{start}

	var targetKey string
	targetPoint := make(point, n)
	copy(targetPoint, lens)
	targetKey = targetPoint.key()

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curKey := cur.key()

		for _, advance := range candidateMoves(cur, lens, flags.PreferConcurrentInterleaving) {
			next := make(point, n)
			copy(next, cur)
			for _, idx := range advance {
				next[idx]++
			}
			nextKey := next.key()

			if visited[nextKey] && !flags.PreferConcurrentInterleaving {
				// always overwrite: in this mode every move advances a
				// single consumer and the last parent found wins,
				// producing sequential-looking paths.
				parent[nextKey] = parentEdge{from: curKey, advance: advance}
				continue
			}
			if visited[nextKey] {
				// PreferConcurrentInterleaving: keep the first parent found,
				// which candidateMoves ordered to be the largest available
				// advance.
				continue
			}

			ok, err := feasible(ctx, topo, solver, consumers, next)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			visited[nextKey] = true
			parent[nextKey] = parentEdge{from: curKey, advance: advance}
			queue = append(queue, next)
		}
	}

	if !visited[targetKey] {
		return nil, &SynthesisError{Reason: "no interleaving reaches every consumer's target power state"}
	}

	return extractPath(consumers, parent, startKey, targetKey), nil
}

// feasible implements spec.md §4.7 steps 3-4: it folds every consumer's
// last-reached step requirement (moving consumers land on next's index,
// stationary consumers stay on cur's, which next already carries forward)
// into one joint requirement dict, narrows each touched conductor further
// by its current restricted range on topo (the "augmented with every
// non-participating consumer's current AMR" clause), and probes the result
// for SMT feasibility. A dict-level conflict (UniteDict/Intersect failing)
// is reported as infeasible rather than propagated, matching how Search
// treats an Intersect conflict as a candidate to reject, not a hard error.
func feasible(ctx context.Context, topo *Topology, solver smt.Solver, consumers []ConsumerSteps, next point) (bool, error) {
	merged := map[string]StateSpace{}
	for i, v := range next {
		if v == 0 {
			continue
		}
		step := consumers[i].Steps[v-1]
		if len(step.Absolute) == 0 {
			continue
		}
		if err := UniteDict(merged, step.Absolute); err != nil {
			return false, nil
		}
	}
	if topo != nil {
		for name, space := range merged {
			cond, ok := topo.Conductors[name]
			if !ok {
				continue
			}
			bound := cond.CurrentRange
			if bound == nil {
				bound = cond.AMR
			}
			narrowed, err := Intersect(name, space, bound)
			if err != nil {
				return false, nil
			}
			merged[name] = narrowed
		}
	}
	if len(merged) == 0 {
		return true, nil
	}

	if solver == nil {
		solver = smt.New()
	}
	solver.Push()
	defer solver.Pop()

	for _, space := range merged {
		dims := canonicalDims(space)
		vs := make([]smt.Var, len(dims))
		for i, d := range dims {
			vs[i] = declareVar(solver, d)
		}
		assertSpace(solver, vs, space)
	}

	_, ok, err := solver.Solve(ctx)
	if err != nil {
		return false, &SMTError{Reason: err.Error()}
	}
	return ok, nil
}

// candidateMoves enumerates the advances worth trying from p, ordered so
// that the "advance every consumer that still has a step" move comes first
// — the one prefer_concurrent_interleaving keeps when a lattice point is
// reached more than one way — followed by every single-consumer advance.
func candidateMoves(p point, lens []int, preferConcurrent bool) [][]int {
	var movable []int
	for i, v := range p {
		if v < lens[i] {
			movable = append(movable, i)
		}
	}
	if len(movable) == 0 {
		return nil
	}

	var moves [][]int
	if preferConcurrent && len(movable) > 1 {
		all := append([]int(nil), movable...)
		moves = append(moves, all)
	}
	for _, i := range movable {
		moves = append(moves, []int{i})
	}
	return moves
}

func extractPath(consumers []ConsumerSteps, parent map[string]parentEdge, startKey, targetKey string) []InterleavedPhase {
	type hop struct{ advance []int }
	var hops []hop
	for k := targetKey; k != startKey; {
		e := parent[k]
		hops = append(hops, hop{advance: e.advance})
		k = e.from
	}
	// reverse
	for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
		hops[i], hops[j] = hops[j], hops[i]
	}

	idx := make([]int, len(consumers))
	phases := make([]InterleavedPhase, 0, len(hops))
	for _, h := range hops {
		phase := InterleavedPhase{Advances: map[string]TransitionStep{}}
		sortedAdvance := append([]int(nil), h.advance...)
		sort.Ints(sortedAdvance)
		for _, ci := range sortedAdvance {
			step := consumers[ci].Steps[idx[ci]]
			phase.Advances[consumers[ci].Consumer] = step
			idx[ci]++
		}
		phases = append(phases, phase)
	}
	return phases
}
