package seqgen

import (
	"context"
	"fmt"
	"sort"

	"github.com/sockeye-project/powerseq/pkg/seqgen/smt"
)

// Assignment is one satisfying mapping of conductor name to its chosen
// concrete value (a single-dimension-tuple Option), plus which possibility
// index was selected for each conductor (needed by the event graph builder
// to know which Possibility's dependency fragment applies).
type Assignment struct {
	Values map[string]Option
	Chosen map[string]int

	// Ranges holds, per conductor decided by the backtracker, the narrowed
	// StateSpace the search settled on before the final concretize pass
	// picked one point out of it. Nil for an Assignment produced by the
	// use_z3 whole-problem encoding, which has no separate narrowed-range
	// phase.
	Ranges map[string]StateSpace
}

// decisionFrame is one level of the backtracking stack: the conductor
// decided at this level, the candidate possibilities still to try, and
// enough state to undo everything this level did.
type decisionFrame struct {
	conductor    string
	candidates   []int
	tryIdx       int
	required     StateSpace

	// touched is the set of already-decided conductors this frame's chosen
	// possibility referenced (via Requirements or an already-decided
	// target) — the "worth-a-try" set conflict-directed backjumping
	// consults (spec.md §4.4 step 2e).
	touched map[string]bool

	// undo state
	addedPending   []string                   // pending keys created by this frame
	narrowedPending map[string]StateSpace     // pending keys this frame intersected, previous value
	narrowedDecided map[string]StateSpace     // decided conductors this frame further narrowed, previous value
}

// searchState is the mutable state threaded through one backtracking run.
type searchState struct {
	topo  *Topology
	flags SearchFlags

	pending            map[string]StateSpace
	pendingContributor map[string]map[string]bool // pending key -> set of decided conductors that contributed a constraint

	decidedOrder []string
	decidedReq   map[string]StateSpace
	decidedPoss  map[string]int

	frames []decisionFrame

	complex []pendingComplex
}

type pendingComplex struct {
	owner string
	c     ComplexConstraint
}

// Search implements spec.md §4.4's backtracking state-generation engine. It
// returns every satisfying Assignment (if flags.AllSolutions) or at most
// one, selecting exactly one State Possibility per conductor referenced
// (directly or transitively) by requirements, then concretising remaining
// ranges via solver.
func Search(ctx context.Context, topo *Topology, requirements map[string]StateSpace, flags SearchFlags, solver smt.Solver) ([]Assignment, error) {
	seed := cloneSpaceDict(requirements)
	if flags.Extend {
		if err := UniteDict(seed, topo.PlatformAMR()); err != nil {
			return nil, &SynthesisError{Reason: err.Error()}
		}
	}

	if flags.RestrictedSearch {
		if cached, ok := topo.restrictedAssignment(seed); ok {
			topo.Logger.Debug().Msg("restricted search: cached assignment still satisfies requirements")
			return []Assignment{cached}, nil
		}
	}

	if flags.UseZ3 {
		values, chosen, err := solveSMTOnly(topo, seed, solver)
		if err != nil {
			return nil, err
		}
		return []Assignment{{Values: values, Chosen: chosen}}, nil
	}

	st := &searchState{
		topo:               topo,
		flags:              flags,
		pending:            seed,
		pendingContributor: make(map[string]map[string]bool),
		decidedReq:         make(map[string]StateSpace),
		decidedPoss:        make(map[string]int),
	}

	var solutions []Assignment
	for {
		sol, found, err := st.runToCompletion(ctx)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		values, err := st.concretize(ctx, solver)
		if err != nil {
			return nil, err
		}
		solutions = append(solutions, Assignment{Values: values, Chosen: cloneIntDict(st.decidedPoss), Ranges: sol})
		if !flags.AllSolutions {
			break
		}
		if !st.forceNextAlternative() {
			break
		}
	}

	if len(solutions) == 0 {
		return nil, &SynthesisError{Reason: "no assignment satisfies the requested requirements"}
	}
	topo.Logger.Debug().Int("solutions", len(solutions)).Msg("search complete")
	return solutions, nil
}

func cloneIntDict(d map[string]int) map[string]int {
	out := make(map[string]int, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// runToCompletion drives the worklist until pending is empty (a full
// assignment was found) or the search space is exhausted from the current
// frame stack (no solution reachable from here).
func (st *searchState) runToCompletion(ctx context.Context) (map[string]StateSpace, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		if len(st.pending) == 0 {
			return cloneSpaceDict(st.decidedReq), true, nil
		}

		name := st.nextPendingKey()
		required := st.pending[name]
		delete(st.pending, name)

		cond, ok := st.topo.Conductors[name]
		if !ok {
			return nil, false, &WireError{Conductor: name, Reason: "referenced conductor does not exist in topology"}
		}

		candidates, err := st.filterCandidates(cond, required)
		if err != nil {
			return nil, false, err
		}
		if len(candidates) == 0 {
			st.pending[name] = required // restore, so backjump state stays consistent
			conflict := map[string]bool{name: true}
			for c := range st.pendingContributor[name] {
				conflict[c] = true
			}
			if !st.backtrack(conflict) {
				return nil, false, nil
			}
			continue
		}

		frame := decisionFrame{conductor: name, candidates: candidates, required: required}
		if ok, err := st.tryFrame(&frame); err != nil {
			return nil, false, err
		} else if !ok {
			// every candidate immediately conflicted; treat like an empty
			// candidate list one level up.
			conflict := map[string]bool{name: true}
			if !st.backtrack(conflict) {
				return nil, false, nil
			}
			continue
		}
		st.frames = append(st.frames, frame)
	}
}

// nextPendingKey picks the lexicographically smallest pending conductor
// name — an arbitrary but fixed order (spec.md §4.4 step 2a), chosen so the
// result set is independent of any caller-supplied map iteration order
// (spec.md §8 permutation-invariance property).
func (st *searchState) nextPendingKey() string {
	keys := make([]string, 0, len(st.pending))
	for k := range st.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}

func (st *searchState) filterCandidates(cond *Conductor, required StateSpace) ([]int, error) {
	attrs := st.topo.Components[cond.Producer].Attrs
	var out []int
	for i, p := range cond.Possibilities {
		state, err := p.ResolveState(attrs)
		if err != nil {
			return nil, err
		}
		if _, err := Intersect(cond.Name, required, state); err == nil {
			out = append(out, i)
		}
	}
	return out, nil
}

// tryFrame attempts candidates[frame.tryIdx:] in order until one applies
// cleanly, advancing frame.tryIdx past the ones it tried. Returns false if
// every remaining candidate conflicts.
func (st *searchState) tryFrame(frame *decisionFrame) (bool, error) {
	cond := st.topo.Conductors[frame.conductor]
	attrs := st.topo.Components[cond.Producer].Attrs

	for frame.tryIdx < len(frame.candidates) {
		idx := frame.candidates[frame.tryIdx]
		frame.tryIdx++
		poss := cond.Possibilities[idx]

		state, err := poss.ResolveState(attrs)
		if err != nil {
			return false, err
		}
		combined, err := Intersect(cond.Name, frame.required, state)
		if err != nil {
			continue // conflicted against this frame's own required state
		}

		touched := map[string]bool{}
		addedPending := []string{}
		narrowedPending := map[string]StateSpace{}
		narrowedDecided := map[string]StateSpace{}
		conflicted := false

		for key, val := range poss.Requirements {
			if key == cond.Name {
				merged, err := Intersect(cond.Name, combined, val)
				if err != nil {
					conflicted = true
					break
				}
				combined = merged
				continue
			}
			if existing, isDecided := st.decidedReq[key]; isDecided {
				merged, err := Intersect(key, existing, val)
				if err != nil {
					conflicted = true
					break
				}
				if _, seen := narrowedDecided[key]; !seen {
					narrowedDecided[key] = existing
				}
				st.decidedReq[key] = merged
				touched[key] = true
				continue
			}
			if existingPending, isPending := st.pending[key]; isPending {
				merged, err := Intersect(key, existingPending, val)
				if err != nil {
					conflicted = true
					break
				}
				if _, seen := narrowedPending[key]; !seen {
					narrowedPending[key] = existingPending
				}
				st.pending[key] = merged
			} else {
				st.pending[key] = val
				addedPending = append(addedPending, key)
			}
			st.addContributor(key, cond.Name)
			for c := range st.pendingContributor[key] {
				touched[c] = true
			}
		}

		if conflicted {
			st.undoPartial(addedPending, narrowedPending, narrowedDecided)
			continue
		}

		st.decidedReq[cond.Name] = combined
		st.decidedPoss[cond.Name] = idx
		st.decidedOrder = append(st.decidedOrder, cond.Name)
		for _, cc := range poss.Complex {
			st.complex = append(st.complex, pendingComplex{owner: cond.Name, c: cc})
		}

		frame.touched = touched
		frame.addedPending = addedPending
		frame.narrowedPending = narrowedPending
		frame.narrowedDecided = narrowedDecided
		return true, nil
	}
	return false, nil
}

func (st *searchState) addContributor(key, contributor string) {
	if st.pendingContributor[key] == nil {
		st.pendingContributor[key] = map[string]bool{}
	}
	st.pendingContributor[key][contributor] = true
}

func (st *searchState) undoPartial(addedPending []string, narrowedPending, narrowedDecided map[string]StateSpace) {
	for _, k := range addedPending {
		delete(st.pending, k)
	}
	for k, v := range narrowedPending {
		st.pending[k] = v
	}
	for k, v := range narrowedDecided {
		st.decidedReq[k] = v
	}
}

// undoFrame fully reverts a committed frame: the conductor it decided goes
// back to pending with its original required state, and every pending/
// decided mutation it made is rolled back.
func (st *searchState) undoFrame(f decisionFrame) {
	delete(st.decidedReq, f.conductor)
	delete(st.decidedPoss, f.conductor)
	if n := len(st.decidedOrder); n > 0 && st.decidedOrder[n-1] == f.conductor {
		st.decidedOrder = st.decidedOrder[:n-1]
	}
	st.undoPartial(f.addedPending, f.narrowedPending, f.narrowedDecided)
	st.pending[f.conductor] = f.required
	// drop complex constraints this frame's possibility contributed
	var kept []pendingComplex
	for _, pc := range st.complex {
		if pc.owner != f.conductor {
			kept = append(kept, pc)
		}
	}
	st.complex = kept
}

// backtrack pops frames until one can try another candidate that could
// plausibly resolve conflictSet, then resumes trying it. In naive mode it
// always pops exactly the most recent frame (spec.md §4.4 step 2e,
// "naive"). In advanced mode it skips frames whose touched set is disjoint
// from conflictSet — the "worth-a-try" filter — implementing
// conflict-directed backjumping. Returns false once the stack is
// exhausted (no solution).
func (st *searchState) backtrack(conflictSet map[string]bool) bool {
	for len(st.frames) > 0 {
		top := st.frames[len(st.frames)-1]

		if st.flags.AdvancedBacktracking && !setsIntersect(top.touched, conflictSet) && top.conductor != oneOf(conflictSet) {
			// this frame's decision is irrelevant to the conflict; drop it
			// without retrying alternatives here, and fold its own
			// conductor into the conflict set so an ancestor that touched
			// *it* is still found.
			st.frames = st.frames[:len(st.frames)-1]
			st.undoFrame(top)
			conflictSet[top.conductor] = true
			continue
		}

		st.frames = st.frames[:len(st.frames)-1]
		st.undoFrame(top)

		ok, err := st.tryFrame(&top)
		if err != nil {
			// a frame-local error degrades to "no more candidates" here;
			// malformed-metadata errors were already surfaced during the
			// first attempt and would have propagated then.
			ok = false
		}
		if ok {
			st.frames = append(st.frames, top)
			return true
		}
		// exhausted this frame too; keep popping, widening the conflict set.
		conflictSet[top.conductor] = true
	}
	return false
}

func setsIntersect(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

func oneOf(s map[string]bool) string {
	for k := range s {
		return k
	}
	return ""
}

// forceNextAlternative is used by all_solutions mode: having just recorded
// a solution, pretend the top frame conflicted so the search resumes at
// the next untried alternative.
func (st *searchState) forceNextAlternative() bool {
	return st.backtrack(map[string]bool{})
}

// concretize runs the final SMT pass (spec.md §4.4 step 3): it builds one
// Int/Bool variable per dimension of each decided conductor's decidedReq
// space (shaped after its first option), constrains the variables to that
// space, asserts every collected complex constraint, solves, and takes each
// dimension's value from the model. SelectState is not applied: with
// PropagationSolver the model holds the first admissible value in domain
// order, so a range dimension gets its lowest feasible value, not its
// midpoint.
func (st *searchState) concretize(ctx context.Context, solver smt.Solver) (map[string]Option, error) {
	if solver == nil {
		solver = smt.New()
	}
	solver.Push()
	defer solver.Pop()

	vars := map[string][]smt.Var{}
	for name, space := range st.decidedReq {
		dims := canonicalDims(space)
		vs := make([]smt.Var, len(dims))
		for i, d := range dims {
			vs[i] = declareVar(solver, d)
		}
		vars[name] = vs
		assertSpace(solver, vs, space)
	}

	for _, pc := range st.complex {
		args := make([]smt.Var, len(pc.c.Args))
		for i, a := range pc.c.Args {
			vs, ok := vars[a.Conductor]
			if !ok || a.DimIndex >= len(vs) {
				return nil, &SMTError{Conductor: a.Conductor, Reason: "complex constraint references unknown conductor/dimension"}
			}
			args[i] = vs[a.DimIndex]
		}
		solver.Assert(smt.Predicate(pc.c.Name, args, pc.c.Predicate))
	}

	model, ok, err := solver.Solve(ctx)
	if err != nil {
		return nil, &SMTError{Reason: err.Error()}
	}
	if !ok {
		return nil, &SynthesisError{Reason: "SMT pass found no concretisation of the accepted possibilities"}
	}

	out := make(map[string]Option, len(st.decidedReq))
	for name, space := range st.decidedReq {
		dims := canonicalDims(space)
		vs := vars[name]
		opt := make(Option, len(dims))
		for i, d := range dims {
			v := model.Value(vs[i])
			switch d.Kind {
			case DimRange:
				opt[i] = Range(v, v)
			case DimSet:
				opt[i] = Dimension{Kind: DimSet, Set: []int{v}}
			}
		}
		out[name] = opt
	}
	return out, nil
}

// canonicalDims returns the dimension shape of space's first option — all
// options of a conductor's possibilities must agree in shape (spec.md §3).
func canonicalDims(space StateSpace) Option {
	if len(space) == 0 {
		return nil
	}
	return space[0]
}

func declareVar(solver smt.Solver, d Dimension) smt.Var {
	switch d.Kind {
	case DimSet:
		if isBinaryZeroOne(d.Set) {
			return solver.NewBoolVar()
		}
		return solver.NewIntVar(smt.Domain{Values: append([]int(nil), d.Set...)})
	default:
		return solver.NewIntVar(smt.Domain{Lo: d.Lo, Hi: d.Hi})
	}
}

func assertSpace(solver smt.Solver, vars []smt.Var, space StateSpace) {
	var options []smt.Expr
	for _, opt := range space {
		var dimExprs []smt.Expr
		for i, d := range opt {
			dimExprs = append(dimExprs, smt.InDomain(vars[i], toSMTDomain(d)))
		}
		options = append(options, smt.And(dimExprs...))
	}
	if len(options) == 1 {
		solver.Assert(options[0])
		return
	}
	solver.Assert(smt.Or(options...))
}

func toSMTDomain(d Dimension) smt.Domain {
	if d.Kind == DimSet {
		return smt.Domain{Values: append([]int(nil), d.Set...)}
	}
	return smt.Domain{Lo: d.Lo, Hi: d.Hi}
}

// solveSMTOnly implements the use_z3 flag's whole-problem encoding: every
// conductor's disjunction of possibilities becomes a single Or over
// (selector == index AND state membership AND requirement constraints)
// clauses (spec.md §4.5 "Encoding").
func solveSMTOnly(topo *Topology, seed map[string]StateSpace, solver smt.Solver) (map[string]Option, map[string]int, error) {
	if solver == nil {
		solver = smt.New()
	}
	solver.Push()
	defer solver.Pop()

	names := topo.conductorOrder()
	vars := map[string][]smt.Var{}
	selectors := map[string]smt.Var{}

	for _, name := range names {
		cond := topo.Conductors[name]
		dims := canonicalDims(cond.AMR)
		vs := make([]smt.Var, len(dims))
		for i, d := range dims {
			vs[i] = declareVar(solver, d)
		}
		vars[name] = vs
		if len(cond.Possibilities) > 0 {
			selectors[name] = solver.NewIntVar(smt.Domain{Lo: 0, Hi: len(cond.Possibilities) - 1})
		}
	}

	for _, name := range names {
		cond := topo.Conductors[name]
		attrs := topo.Components[cond.Producer].Attrs
		vs := vars[name]
		sel := selectors[name]
		var clauses []smt.Expr
		for idx, p := range cond.Possibilities {
			state, err := p.ResolveState(attrs)
			if err != nil {
				return nil, nil, err
			}
			var dimExprs []smt.Expr
			dimExprs = append(dimExprs, smt.Selector(sel, idx))
			dimExprs = append(dimExprs, stateMembership(vs, state))
			for key, val := range p.Requirements {
				if key == name {
					dimExprs = append(dimExprs, stateMembership(vs, val))
					continue
				}
				other, ok := vars[key]
				if !ok {
					return nil, nil, &WireError{Conductor: name, Reason: fmt.Sprintf("requirement references unknown conductor %q", key)}
				}
				dimExprs = append(dimExprs, stateMembership(other, val))
			}
			for _, cc := range p.Complex {
				args := make([]smt.Var, len(cc.Args))
				for i, a := range cc.Args {
					other, ok := vars[a.Conductor]
					if !ok || a.DimIndex >= len(other) {
						return nil, nil, &SMTError{Conductor: a.Conductor, Reason: "complex constraint references unknown conductor/dimension"}
					}
					args[i] = other[a.DimIndex]
				}
				dimExprs = append(dimExprs, smt.Predicate(cc.Name, args, cc.Predicate))
			}
			clauses = append(clauses, smt.And(dimExprs...))
		}
		if len(clauses) == 0 {
			continue
		}
		solver.Assert(smt.Or(clauses...))
	}

	for name, space := range seed {
		vs, ok := vars[name]
		if !ok {
			return nil, nil, &WireError{Conductor: name, Reason: "requirement references unknown conductor"}
		}
		solver.Assert(stateMembership(vs, space))
	}

	model, ok, err := solver.Solve(context.Background())
	if err != nil {
		return nil, nil, &SMTError{Reason: err.Error()}
	}
	if !ok {
		return nil, nil, &SynthesisError{Reason: "SMT-only search found no satisfying assignment"}
	}

	out := make(map[string]Option, len(names))
	chosen := make(map[string]int, len(selectors))
	for _, name := range names {
		if sel, ok := selectors[name]; ok {
			chosen[name] = model.Value(sel)
		}
		vs := vars[name]
		dims := canonicalDims(topo.Conductors[name].AMR)
		opt := make(Option, len(dims))
		for i, d := range dims {
			v := model.Value(vs[i])
			if d.Kind == DimSet {
				opt[i] = Dimension{Kind: DimSet, Set: []int{v}}
			} else {
				opt[i] = Range(v, v)
			}
		}
		out[name] = opt
	}
	return out, chosen, nil
}

func stateMembership(vars []smt.Var, space StateSpace) smt.Expr {
	var options []smt.Expr
	for _, opt := range space {
		var dimExprs []smt.Expr
		for i, d := range opt {
			if i >= len(vars) {
				continue
			}
			dimExprs = append(dimExprs, smt.InDomain(vars[i], toSMTDomain(d)))
		}
		options = append(options, smt.And(dimExprs...))
	}
	if len(options) == 1 {
		return options[0]
	}
	return smt.Or(options...)
}
