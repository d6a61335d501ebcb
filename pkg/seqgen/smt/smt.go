// Package smt defines the thin adapter interface the state-generation
// engine uses to delegate intra-possibility range/complex-constraint solving
// to an external SMT-style solver (spec.md §4.5), plus a bundled default
// implementation (PropagationSolver) that needs no external binary.
//
// The package intentionally knows nothing about the engine's StateSpace
// type: it works over its own minimal Var/Domain/Expr vocabulary so that a
// real binding (e.g. a Z3 FFI wrapper) can implement Solver without
// depending on package seqgen, and seqgen can depend on smt without a cycle.
package smt

import (
	"context"
	"fmt"
)

// VarKind distinguishes the two solver variable sorts spec.md §4.5 calls
// for: Int (ranges and numeric sets) and Bool ({0,1} logical signals).
type VarKind int

const (
	VarInt VarKind = iota
	VarBool
)

// Var is a handle to one solver variable.
type Var struct {
	id   int
	Kind VarKind
}

// Domain is the admissible value set for one Int variable: either a
// contiguous range [Lo, Hi] or, when Values is non-nil, an explicit
// enumeration (used for numeric sets and VIDs).
type Domain struct {
	Lo, Hi int
	Values []int
}

// Has reports whether v lies in the domain.
func (d Domain) Has(v int) bool {
	if d.Values != nil {
		for _, x := range d.Values {
			if x == v {
				return true
			}
		}
		return false
	}
	return v >= d.Lo && v <= d.Hi
}

// Iterate calls f for every value in the domain, ascending.
func (d Domain) Iterate(f func(int) bool) {
	if d.Values != nil {
		for _, v := range d.Values {
			if !f(v) {
				return
			}
		}
		return
	}
	for v := d.Lo; v <= d.Hi; v++ {
		if !f(v) {
			return
		}
	}
}

// Expr is a constraint over previously-created Vars. The concrete node
// types below are the only ones a Solver implementation needs to handle;
// Predicate is the escape hatch complex constraints use, since an arbitrary
// Go func cannot be shipped across an FFI boundary to a real SMT binding;
// the Solver interface has no method through which a binding can decline it.
type Expr interface{ isExpr() }

type eqConst struct {
	V   Var
	Val int
}

func (eqConst) isExpr() {}

// Eq asserts v == val.
func Eq(v Var, val int) Expr { return eqConst{V: v, Val: val} }

type inDomain struct {
	V Var
	D Domain
}

func (inDomain) isExpr() {}

// InDomain asserts v's value lies in d.
func InDomain(v Var, d Domain) Expr { return inDomain{V: v, D: d} }

type andExpr struct{ Exprs []Expr }

func (andExpr) isExpr() {}

// And conjoins exprs.
func And(exprs ...Expr) Expr { return andExpr{Exprs: exprs} }

type orExpr struct{ Exprs []Expr }

func (orExpr) isExpr() {}

// Or disjoins exprs.
func Or(exprs ...Expr) Expr { return orExpr{Exprs: exprs} }

type selectorExpr struct {
	V     Var
	Index int
}

func (selectorExpr) isExpr() {}

// Selector asserts the "which possibility chosen" variable v equals index
// (spec.md §4.5 "each conductor additionally has an Int 'which possibility
// chosen' selector").
func Selector(v Var, index int) Expr { return selectorExpr{V: v, Index: index} }

type predicateExpr struct {
	Name string
	Vars []Var
	Fn   func(values []int) bool
}

func (predicateExpr) isExpr() {}

// Predicate asserts fn(values-of-vars) where values are the vars' current
// model values, used for the ratio/integer-relation complex constraints of
// spec.md §4's ComplexConstraint.
func Predicate(name string, vars []Var, fn func(values []int) bool) Expr {
	return predicateExpr{Name: name, Vars: vars, Fn: fn}
}

// Model is a satisfying assignment.
type Model struct {
	values map[int]int
}

// Value returns the value assigned to v.
func (m Model) Value(v Var) int { return m.values[v.id] }

// Solver is the adapter interface the engine programs against (spec.md
// §4.5: "the SMT solver is consumed through a thin adapter interface").
// Implementations must support the push/pop discipline documented on Push:
// every caller that adds constraints temporarily must Pop on every exit
// path (spec.md §5).
type Solver interface {
	// NewIntVar allocates a fresh Int variable constrained to d.
	NewIntVar(d Domain) Var
	// NewBoolVar allocates a fresh Bool variable.
	NewBoolVar() Var

	// Push saves the current set of assertions as a restore point.
	Push()
	// Pop restores the assertions to the most recent Push.
	Pop()

	// Assert adds e to the current frame's constraint set.
	Assert(e Expr)

	// Solve attempts to find a model satisfying every asserted expression.
	// Returns (model, true, nil) on SAT, (Model{}, false, nil) on UNSAT, or
	// a non-nil error for an internal inconsistency (spec.md §7 SMTError is
	// raised by the caller, which has the conductor-name context this
	// package lacks).
	Solve(ctx context.Context) (Model, bool, error)
}

// ErrNoModel is a sentinel for callers that want to distinguish "solver
// never ran" from "solver returned UNSAT". Nothing in this package returns
// it; Model.Value on an unpopulated Model returns 0.
var ErrNoModel = fmt.Errorf("smt: no model available")
