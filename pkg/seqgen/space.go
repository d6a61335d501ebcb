// Package seqgen implements the constraint engine and command sequencer that
// synthesises power-up/power-down/reconfiguration sequences for a platform of
// power supplies, regulators, reference generators, clock sources, monitors
// and active consumers. The overall flow is: Topology -> Search -> event
// graph (BuildEventGraph) -> interleaver (Interleave) -> command rendering
// (Sequence, RenderTransition, Plan.Commands).
package seqgen

import (
	"fmt"
	"sort"
)

// DimensionKind distinguishes the two shapes a conductor dimension can take.
type DimensionKind int

const (
	// DimRange is a closed integer range [Lo, Hi], Lo <= Hi.
	DimRange DimensionKind = iota
	// DimSet is a finite non-empty set of integers (logical signals, VIDs).
	DimSet
)

// Dimension is one coordinate of a State Possibility's option tuple: either a
// closed integer range or a finite set of integers. Dimensions are immutable;
// every operation returns a new Dimension.
type Dimension struct {
	Kind DimensionKind
	Lo   int   // valid when Kind == DimRange
	Hi   int   // valid when Kind == DimRange
	Set  []int // valid when Kind == DimSet; kept sorted and de-duplicated
}

// Range constructs a closed-range dimension [lo, hi].
func Range(lo, hi int) Dimension {
	return Dimension{Kind: DimRange, Lo: lo, Hi: hi}
}

// Set constructs a set dimension from the given values (sorted and
// de-duplicated on construction).
func Set(values ...int) Dimension {
	return Dimension{Kind: DimSet, Set: sortedUnique(values)}
}

func sortedUnique(values []int) []int {
	if len(values) == 0 {
		return nil
	}
	cp := append([]int(nil), values...)
	sort.Ints(cp)
	out := cp[:1]
	for _, v := range cp[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// IsEmpty reports whether the dimension denotes the infeasible value (an
// empty range, lo > hi, or an empty set).
func (d Dimension) IsEmpty() bool {
	switch d.Kind {
	case DimRange:
		return d.Lo > d.Hi
	case DimSet:
		return len(d.Set) == 0
	default:
		return true
	}
}

// sameShape reports whether two dimensions are of the same kind, which is
// required before most binary operations (spec.md §3: "Dimensions across
// options of one conductor must agree in shape").
func sameShape(a, b Dimension) bool {
	return a.Kind == b.Kind
}

// Has reports whether value lies within the dimension.
func (d Dimension) Has(value int) bool {
	switch d.Kind {
	case DimRange:
		return value >= d.Lo && value <= d.Hi
	case DimSet:
		for _, v := range d.Set {
			if v == value {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// intersectDim computes the per-dimension intersection. The dimensions must
// share a shape; shape mismatches are reported by the caller (Intersect),
// which has the conductor context needed for a useful error.
func intersectDim(a, b Dimension) Dimension {
	switch a.Kind {
	case DimRange:
		lo, hi := a.Lo, a.Hi
		if b.Lo > lo {
			lo = b.Lo
		}
		if b.Hi < hi {
			hi = b.Hi
		}
		return Range(lo, hi)
	case DimSet:
		bSet := make(map[int]struct{}, len(b.Set))
		for _, v := range b.Set {
			bSet[v] = struct{}{}
		}
		var out []int
		for _, v := range a.Set {
			if _, ok := bSet[v]; ok {
				out = append(out, v)
			}
		}
		return Dimension{Kind: DimSet, Set: out}
	default:
		return Dimension{}
	}
}

// unionDim computes the per-dimension union: range hull for ranges, set
// union for sets, per spec.md §4.1 state_union.
func unionDim(a, b Dimension) Dimension {
	switch a.Kind {
	case DimRange:
		lo, hi := a.Lo, a.Hi
		if b.Lo < lo {
			lo = b.Lo
		}
		if b.Hi > hi {
			hi = b.Hi
		}
		return Range(lo, hi)
	case DimSet:
		return Dimension{Kind: DimSet, Set: sortedUnique(append(append([]int(nil), a.Set...), b.Set...))}
	default:
		return Dimension{}
	}
}

func (d Dimension) String() string {
	switch d.Kind {
	case DimRange:
		return fmt.Sprintf("(%d,%d)", d.Lo, d.Hi)
	case DimSet:
		return fmt.Sprintf("%v", d.Set)
	default:
		return "?"
	}
}

// Option is one disjunct of a StateSpace: a tuple of dimensions.
type Option []Dimension

func (o Option) isEmpty() bool {
	for _, d := range o {
		if d.IsEmpty() {
			return true
		}
	}
	return false
}

func (o Option) String() string {
	s := "("
	for i, d := range o {
		if i > 0 {
			s += ","
		}
		s += d.String()
	}
	return s + ")"
}

// StateSpace is the value of one conductor: a disjunction of Options,
// semantically ORed (spec.md §3). A single-option space is a StateSpace of
// length 1.
type StateSpace []Option

// Single constructs a single-option state space.
func Single(dims ...Dimension) StateSpace {
	return StateSpace{Option(dims)}
}

// Multi constructs a multi-option (disjunctive) state space.
func Multi(options ...Option) StateSpace {
	return StateSpace(options)
}

// IsPossibility reports whether s is a (possibly single-option) list of
// options, i.e. is well-formed as a StateSpace. Per spec.md §4.1 this is
// effectively always true for a StateSpace value; the predicate exists to
// distinguish a genuine StateSpace from the "unknown format" inputs
// SelectState rejects.
func IsPossibility(s StateSpace) bool {
	return s != nil
}

// IsEmpty reports whether every option of s is infeasible, i.e. s denotes no
// value at all.
func (s StateSpace) IsEmpty() bool {
	if len(s) == 0 {
		return true
	}
	for _, opt := range s {
		if !opt.isEmpty() {
			return false
		}
	}
	return true
}

// shapeOf returns the dimension kinds of s's first non-empty option, used to
// validate shape agreement across options and across operands.
func (s StateSpace) shapeOf() []DimensionKind {
	for _, opt := range s {
		kinds := make([]DimensionKind, len(opt))
		for i, d := range opt {
			kinds[i] = d.Kind
		}
		return kinds
	}
	return nil
}

func shapesEqual(a, b []DimensionKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Intersect returns the largest state space contained in both a and b,
// preserving multi-option disjunction: every pairwise intersection of an
// option from a with an option from b that is non-empty becomes an option of
// the result. Returns a StateSpaceError with Reason "empty result" if every
// pairwise intersection is empty.
func Intersect(conductor string, a, b StateSpace) (StateSpace, error) {
	if !shapesEqual(a.shapeOf(), b.shapeOf()) {
		return nil, &StateSpaceError{Conductor: conductor, Op: "intersect", A: a, B: b, Reason: "shape mismatch"}
	}
	var out StateSpace
	for _, oa := range a {
		for _, ob := range b {
			if len(oa) != len(ob) {
				continue
			}
			merged := make(Option, len(oa))
			for i := range oa {
				merged[i] = intersectDim(oa[i], ob[i])
			}
			if !merged.isEmpty() {
				out = append(out, merged)
			}
		}
	}
	if len(out) == 0 {
		return nil, &StateSpaceError{Conductor: conductor, Op: "intersect", A: a, B: b, Reason: "empty result"}
	}
	return out, nil
}

// UniteDict intersects two conductor-name -> StateSpace dictionaries
// in place into d: for every key present in e, d[key] is replaced by
// Intersect(d[key], e[key]) (or e[key] verbatim if d lacked the key).
// Returns a StateSpaceError naming the offending conductor on the first
// empty intersection.
func UniteDict(d map[string]StateSpace, e map[string]StateSpace) error {
	for k, v := range e {
		existing, ok := d[k]
		if !ok {
			d[k] = v
			continue
		}
		merged, err := Intersect(k, existing, v)
		if err != nil {
			return err
		}
		d[k] = merged
	}
	return nil
}

// StateUnion returns the union of two same-shape state spaces: per
// dimension, range hull for ranges and set union for sets (spec.md §4.1).
func StateUnion(conductor string, a, b StateSpace) (StateSpace, error) {
	if !shapesEqual(a.shapeOf(), b.shapeOf()) {
		return nil, &StateSpaceError{Conductor: conductor, Op: "union", A: a, B: b, Reason: "shape mismatch"}
	}
	if a.IsEmpty() {
		return b, nil
	}
	if b.IsEmpty() {
		return a, nil
	}
	// Union is computed option-wise over the hull of all options on each
	// side: the spec defines state_union over two single-option tuples, so
	// for multi-option operands we hull each side into one representative
	// option first.
	oa := hullOptions(a)
	ob := hullOptions(b)
	merged := make(Option, len(oa))
	for i := range oa {
		merged[i] = unionDim(oa[i], ob[i])
	}
	if merged.isEmpty() {
		return nil, &StateSpaceError{Conductor: conductor, Op: "union", A: a, B: b, Reason: "empty result"}
	}
	return Single(merged...), nil
}

func hullOptions(s StateSpace) Option {
	hull := append(Option(nil), s[0]...)
	for _, opt := range s[1:] {
		for i := range hull {
			hull[i] = unionDim(hull[i], opt[i])
		}
	}
	return hull
}

// StateDifference returns the list of "splinters" of the single-option tuple
// a that exclude the single-option tuple b (spec.md §4.1). Each splinter
// holds every dimension of a unchanged except one, which is narrowed to
// exclude b's corresponding dimension; this yields, for range dimensions, up
// to two splinters per excluded dimension (below and above b's range) and,
// for set dimensions, one splinter with b's values removed. A set dimension
// already disjoint from b's (or wholly inside it) contributes no splinter; a
// range dimension disjoint from b's yields one splinter equal to a.
func StateDifference(a, b Option) []Option {
	var out []Option
	for i := range a {
		da, db := a[i], b[i]
		switch da.Kind {
		case DimRange:
			if db.Lo > da.Lo {
				hi := db.Lo - 1
				if hi > da.Hi {
					hi = da.Hi
				}
				if da.Lo <= hi {
					out = append(out, replaceDim(a, i, Range(da.Lo, hi)))
				}
			}
			if db.Hi < da.Hi {
				lo := db.Hi + 1
				if lo < da.Lo {
					lo = da.Lo
				}
				if lo <= da.Hi {
					out = append(out, replaceDim(a, i, Range(lo, da.Hi)))
				}
			}
		case DimSet:
			excl := make(map[int]struct{}, len(db.Set))
			for _, v := range db.Set {
				excl[v] = struct{}{}
			}
			var remaining []int
			for _, v := range da.Set {
				if _, ok := excl[v]; !ok {
					remaining = append(remaining, v)
				}
			}
			if len(remaining) > 0 && len(remaining) != len(da.Set) {
				out = append(out, replaceDim(a, i, Dimension{Kind: DimSet, Set: remaining}))
			}
		}
	}
	return out
}

func replaceDim(o Option, idx int, d Dimension) Option {
	cp := append(Option(nil), o...)
	cp[idx] = d
	return cp
}

// SelectState picks one concrete representative Option out of s following
// the documented selection policy (spec.md §4.1): for a range dimension,
// the integer midpoint (lo+hi)/2; for a set dimension equal to {0,1},
// 0 ("prefer off"); otherwise, the dimension's minimum element. SelectState
// always operates on the first option of a multi-option space — callers
// that must choose among options do so before calling SelectState.
func SelectState(s StateSpace) (Option, error) {
	if !IsPossibility(s) || len(s) == 0 {
		return nil, fmt.Errorf("seqgen: select_state: unknown state format")
	}
	opt := s[0]
	out := make(Option, len(opt))
	for i, d := range opt {
		switch d.Kind {
		case DimRange:
			if d.IsEmpty() {
				return nil, fmt.Errorf("seqgen: select_state: empty range dimension %d", i)
			}
			out[i] = Range(d.Lo+(d.Hi-d.Lo)/2, d.Lo+(d.Hi-d.Lo)/2)
		case DimSet:
			if len(d.Set) == 0 {
				return nil, fmt.Errorf("seqgen: select_state: empty set dimension %d", i)
			}
			if isBinaryZeroOne(d.Set) {
				out[i] = Dimension{Kind: DimSet, Set: []int{0}}
			} else {
				min := d.Set[0]
				for _, v := range d.Set[1:] {
					if v < min {
						min = v
					}
				}
				out[i] = Dimension{Kind: DimSet, Set: []int{min}}
			}
		default:
			return nil, fmt.Errorf("seqgen: select_state: unknown dimension kind")
		}
	}
	return out, nil
}

func isBinaryZeroOne(set []int) bool {
	if len(set) != 2 {
		return false
	}
	return (set[0] == 0 && set[1] == 1) || (set[0] == 1 && set[1] == 0)
}

// Contains reports whether value (one option's worth of concrete dimension
// values) lies inside s, i.e. whether some option of s contains every
// coordinate of value.
func Contains(s StateSpace, value Option) bool {
	for _, opt := range s {
		if len(opt) != len(value) {
			continue
		}
		ok := true
		for i := range opt {
			if !dimContains(opt[i], value[i]) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func dimContains(container, v Dimension) bool {
	switch container.Kind {
	case DimRange:
		if v.Kind != DimRange {
			return false
		}
		return v.Lo >= container.Lo && v.Hi <= container.Hi
	case DimSet:
		if v.Kind != DimSet {
			return false
		}
		for _, x := range v.Set {
			if !container.Has(x) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (s StateSpace) String() string {
	out := ""
	for i, o := range s {
		if i > 0 {
			out += "|"
		}
		out += o.String()
	}
	return out
}
