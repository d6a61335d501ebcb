package smt

import (
	"context"
	"testing"
)

func TestPropagationSolverSimpleEquality(t *testing.T) {
	s := New()
	v := s.NewIntVar(Domain{Lo: 1, Hi: 10})
	s.Assert(Eq(v, 5))

	model, ok, err := s.Solve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected SAT")
	}
	if got := model.Value(v); got != 5 {
		t.Fatalf("v = %d, want 5", got)
	}
}

func TestPropagationSolverUnsat(t *testing.T) {
	s := New()
	v := s.NewIntVar(Domain{Lo: 1, Hi: 3})
	s.Assert(Eq(v, 5))

	_, ok, err := s.Solve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected UNSAT")
	}
}

func TestPropagationSolverPredicateRatio(t *testing.T) {
	s := New()
	a := s.NewIntVar(Domain{Lo: 1, Hi: 10})
	b := s.NewIntVar(Domain{Lo: 1, Hi: 10})
	s.Assert(Eq(a, 4))
	s.Assert(Predicate("double", []Var{a, b}, func(values []int) bool {
		return values[1] == values[0]*2
	}))

	model, ok, err := s.Solve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected SAT")
	}
	if got := model.Value(b); got != 8 {
		t.Fatalf("b = %d, want 8", got)
	}
}

func TestPropagationSolverPushPop(t *testing.T) {
	s := New()
	v := s.NewIntVar(Domain{Lo: 1, Hi: 10})
	s.Push()
	s.Assert(Eq(v, 7))
	if _, ok, _ := s.Solve(context.Background()); !ok {
		t.Fatalf("expected SAT with pushed constraint")
	}
	s.Pop()
	s.Assert(Eq(v, 1))
	model, ok, _ := s.Solve(context.Background())
	if !ok || model.Value(v) != 1 {
		t.Fatalf("expected popped frame to be discarded, got ok=%v value=%d", ok, model.Value(v))
	}
}

func TestPropagationSolverOr(t *testing.T) {
	s := New()
	v := s.NewIntVar(Domain{Lo: 1, Hi: 10})
	s.Assert(Or(Eq(v, 2), Eq(v, 9)))

	model, ok, err := s.Solve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected SAT")
	}
	if got := model.Value(v); got != 2 && got != 9 {
		t.Fatalf("v = %d, want 2 or 9", got)
	}
}
