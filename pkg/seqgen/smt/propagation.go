package smt

import "context"

// PropagationSolver is the bundled default Solver: a small backtracking
// search over explicit variable domains, with constraint checking rather
// than a true SAT/SMT decision procedure. It exists so pkg/seqgen works
// out of the box with no external solver process; a real binding (Z3,
// cvc5, ...) implements the same Solver interface and can be substituted
// without any change to the engine (spec.md §4.5, §1 "the SMT solver is
// consumed through a thin adapter interface").
//
// Grounded on the teacher's pluggable-solver pattern (fd_solver.go's
// FDSolver/BaseSolver: a solver-specific struct satisfying a narrow
// interface, swappable by the caller) and its iterative trail/undo search
// shape (search.go's DFSSearch).
type PropagationSolver struct {
	kinds   []VarKind
	domains []Domain
	frames  [][]Expr
}

// New returns an empty PropagationSolver.
func New() *PropagationSolver {
	return &PropagationSolver{frames: [][]Expr{nil}}
}

func (s *PropagationSolver) NewIntVar(d Domain) Var {
	id := len(s.kinds)
	s.kinds = append(s.kinds, VarInt)
	s.domains = append(s.domains, d)
	return Var{id: id, Kind: VarInt}
}

func (s *PropagationSolver) NewBoolVar() Var {
	id := len(s.kinds)
	s.kinds = append(s.kinds, VarBool)
	s.domains = append(s.domains, Domain{Values: []int{0, 1}})
	return Var{id: id, Kind: VarBool}
}

func (s *PropagationSolver) Push() {
	s.frames = append(s.frames, nil)
}

func (s *PropagationSolver) Pop() {
	if len(s.frames) > 1 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

func (s *PropagationSolver) Assert(e Expr) {
	last := len(s.frames) - 1
	s.frames[last] = append(s.frames[last], e)
}

func (s *PropagationSolver) allExprs() []Expr {
	var out []Expr
	for _, f := range s.frames {
		out = append(out, f...)
	}
	return out
}

// Solve runs a depth-first search over narrowed per-variable domains,
// checking every asserted expression once a variable it references is
// fully determined.
func (s *PropagationSolver) Solve(ctx context.Context) (Model, bool, error) {
	exprs := s.allExprs()
	effective := s.narrowDomains(exprs)

	order := make([]int, len(s.kinds))
	for i := range order {
		order[i] = i
	}

	assign := make(map[int]int, len(s.kinds))
	ok, err := s.search(ctx, order, 0, assign, effective, exprs)
	if err != nil {
		return Model{}, false, err
	}
	if !ok {
		return Model{}, false, nil
	}
	return Model{values: assign}, true, nil
}

// narrowDomains intersects each variable's registered domain with any
// top-level equality/membership/selector assertions made directly about it.
// This is a best-effort propagation pass (spec.md §4.5 "Encoding"); it does
// not attempt to propagate through Or or Predicate nodes, which the search
// below checks exhaustively instead.
func (s *PropagationSolver) narrowDomains(exprs []Expr) []Domain {
	out := make([]Domain, len(s.domains))
	copy(out, s.domains)
	var walk func(e Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case eqConst:
			out[x.V.id] = intersectDomain(out[x.V.id], Domain{Values: []int{x.Val}})
		case selectorExpr:
			out[x.V.id] = intersectDomain(out[x.V.id], Domain{Values: []int{x.Index}})
		case inDomain:
			out[x.V.id] = intersectDomain(out[x.V.id], x.D)
		case andExpr:
			for _, sub := range x.Exprs {
				walk(sub)
			}
		}
	}
	for _, e := range exprs {
		walk(e)
	}
	return out
}

func intersectDomain(a, b Domain) Domain {
	vals := []int{}
	a.Iterate(func(v int) bool {
		if b.Has(v) {
			vals = append(vals, v)
		}
		return true
	})
	return Domain{Values: vals}
}

func (s *PropagationSolver) search(ctx context.Context, order []int, pos int, assign map[int]int, domains []Domain, exprs []Expr) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if pos == len(order) {
		for _, e := range exprs {
			if !evalExpr(e, assign) {
				return false, nil
			}
		}
		return true, nil
	}
	id := order[pos]
	found := false
	domains[id].Iterate(func(v int) bool {
		assign[id] = v
		if partiallyConsistent(exprs, assign) {
			ok, err := s.search(ctx, order, pos+1, assign, domains, exprs)
			if err != nil {
				found = false
				return false
			}
			if ok {
				found = true
				return false
			}
		}
		delete(assign, id)
		return true
	})
	return found, nil
}

// partiallyConsistent rejects an assignment early when a conjunctive
// sub-expression is already fully determined and false; it never rejects
// based on Or/Predicate nodes that still have unassigned variables.
func partiallyConsistent(exprs []Expr, assign map[int]int) bool {
	for _, e := range exprs {
		if !partialCheck(e, assign) {
			return false
		}
	}
	return true
}

func partialCheck(e Expr, assign map[int]int) bool {
	switch x := e.(type) {
	case eqConst:
		v, ok := assign[x.V.id]
		return !ok || v == x.Val
	case selectorExpr:
		v, ok := assign[x.V.id]
		return !ok || v == x.Index
	case inDomain:
		v, ok := assign[x.V.id]
		return !ok || x.D.Has(v)
	case andExpr:
		for _, sub := range x.Exprs {
			if !partialCheck(sub, assign) {
				return false
			}
		}
		return true
	case orExpr, predicateExpr:
		return true // checked fully only once every referenced var is assigned, in evalExpr at the leaf.
	default:
		return true
	}
}

func evalExpr(e Expr, assign map[int]int) bool {
	switch x := e.(type) {
	case eqConst:
		return assign[x.V.id] == x.Val
	case selectorExpr:
		return assign[x.V.id] == x.Index
	case inDomain:
		return x.D.Has(assign[x.V.id])
	case andExpr:
		for _, sub := range x.Exprs {
			if !evalExpr(sub, assign) {
				return false
			}
		}
		return true
	case orExpr:
		if len(x.Exprs) == 0 {
			return true
		}
		for _, sub := range x.Exprs {
			if evalExpr(sub, assign) {
				return true
			}
		}
		return false
	case predicateExpr:
		vals := make([]int, len(x.Vars))
		for i, v := range x.Vars {
			vals[i] = assign[v.id]
		}
		return x.Fn(vals)
	default:
		return false
	}
}
