package seqgen

import "testing"

func TestIntersectCommutative(t *testing.T) {
	a := Single(Range(0, 10))
	b := Single(Range(5, 20))

	ab, err := Intersect("w", a, b)
	if err != nil {
		t.Fatalf("a,b: %v", err)
	}
	ba, err := Intersect("w", b, a)
	if err != nil {
		t.Fatalf("b,a: %v", err)
	}
	if ab.String() != ba.String() {
		t.Fatalf("intersect not commutative: %s vs %s", ab, ba)
	}
}

func TestIntersectAssociative(t *testing.T) {
	a := Single(Range(0, 100))
	b := Single(Range(20, 80))
	c := Single(Range(40, 60))

	ab, err := Intersect("w", a, b)
	if err != nil {
		t.Fatalf("ab: %v", err)
	}
	abc, err := Intersect("w", ab, c)
	if err != nil {
		t.Fatalf("(ab)c: %v", err)
	}

	bc, err := Intersect("w", b, c)
	if err != nil {
		t.Fatalf("bc: %v", err)
	}
	abc2, err := Intersect("w", a, bc)
	if err != nil {
		t.Fatalf("a(bc): %v", err)
	}

	if abc.String() != abc2.String() {
		t.Fatalf("intersect not associative: %s vs %s", abc, abc2)
	}
}

func TestIntersectIdempotent(t *testing.T) {
	a := Single(Range(3, 9), Set(1, 2, 3))
	aa, err := Intersect("w", a, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aa.String() != a.String() {
		t.Fatalf("intersect(a,a) = %s, want %s", aa, a)
	}
}

func TestIntersectShapeMismatch(t *testing.T) {
	a := Single(Range(0, 10))
	b := Single(Set(0, 1))
	if _, err := Intersect("w", a, b); err == nil {
		t.Fatalf("expected shape-mismatch error")
	}
}

func TestIntersectEmptyResult(t *testing.T) {
	a := Single(Range(0, 5))
	b := Single(Range(10, 20))
	if _, err := Intersect("w", a, b); err == nil {
		t.Fatalf("expected empty-result error")
	}
}

func TestStateDifferenceExcludesSplinterOverlap(t *testing.T) {
	a := Option{Range(0, 100)}
	b := Option{Range(40, 60)}

	splinters := StateDifference(a, b)
	if len(splinters) != 2 {
		t.Fatalf("expected 2 splinters, got %d: %v", len(splinters), splinters)
	}
	for _, s := range splinters {
		space := Multi(s)
		for _, v := range []int{40, 50, 60} {
			if Contains(space, Option{Range(v, v)}) {
				t.Fatalf("splinter %v should not contain excluded value %d", s, v)
			}
		}
	}
}

func TestStateDifferenceSetDimension(t *testing.T) {
	a := Option{Dimension{Kind: DimSet, Set: []int{0, 1, 2, 3}}}
	b := Option{Dimension{Kind: DimSet, Set: []int{1, 2}}}

	splinters := StateDifference(a, b)
	if len(splinters) != 1 {
		t.Fatalf("expected 1 splinter, got %d", len(splinters))
	}
	got := splinters[0][0].Set
	want := []int{0, 3}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("splinter set = %v, want %v", got, want)
	}
}

func TestSelectStateRangeMidpoint(t *testing.T) {
	opt, err := SelectState(Single(Range(10, 20)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opt[0].Lo != 15 || opt[0].Hi != 15 {
		t.Fatalf("got %v, want midpoint 15", opt[0])
	}
}

func TestSelectStatePrefersZeroForBinarySet(t *testing.T) {
	opt, err := SelectState(Single(Set(0, 1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opt[0].Set) != 1 || opt[0].Set[0] != 0 {
		t.Fatalf("got %v, want {0}", opt[0].Set)
	}
}

func TestSelectStateMinForNonBinarySet(t *testing.T) {
	opt, err := SelectState(Single(Set(5, 2, 9)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opt[0].Set) != 1 || opt[0].Set[0] != 2 {
		t.Fatalf("got %v, want {2}", opt[0].Set)
	}
}

func TestStateUnionHullsRanges(t *testing.T) {
	a := Single(Range(0, 10))
	b := Single(Range(20, 30))
	u, err := StateUnion("w", a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u[0][0].Lo != 0 || u[0][0].Hi != 30 {
		t.Fatalf("got %v, want (0,30)", u[0][0])
	}
}

func TestUniteDictMergesInPlace(t *testing.T) {
	d := map[string]StateSpace{"a": Single(Range(0, 10))}
	e := map[string]StateSpace{"a": Single(Range(5, 20)), "b": Single(Set(1))}

	if err := UniteDict(d, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d["a"][0][0].Lo != 5 || d["a"][0][0].Hi != 10 {
		t.Fatalf("merged a = %v", d["a"])
	}
	if d["b"][0][0].Set[0] != 1 {
		t.Fatalf("b not copied: %v", d["b"])
	}
}

func TestMultiOptionIntersectPreservesDisjunction(t *testing.T) {
	a := Multi(Option{Set(0, 1, 2)}, Option{Set(10, 11)})
	b := Single(Set(1, 11))

	out, err := Intersect("w", a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 surviving options, got %d: %v", len(out), out)
	}
}
