package seqgen

// SearchFlags carries the options every top-level call accepts (spec.md §6).
// Every optional field has an explicit default (spec.md §9 "Dynamic keyword
// arguments on possibility constructors map to a flags struct with named
// optional fields"); the zero value of SearchFlags is the conservative
// default (first solution, naive backtracking, no SMT-only mode).
type SearchFlags struct {
	// AllSolutions enumerates every satisfying assignment instead of
	// stopping at the first.
	AllSolutions bool
	// Extend augments the caller's requirements with the full platform AMR
	// before searching.
	Extend bool
	// IgnoreNodes names consumers whose current-power-state AMR is to be
	// kept out of the search requirements. Search does not read it: no
	// consumer's power-state AMR is folded into the requirements.
	IgnoreNodes []string
	// RecordUnchanged includes unchanged conductors in the emitted phases.
	RecordUnchanged bool
	// NoOutput suppresses command emission; the search and event graph
	// still run, useful for validating feasibility only.
	NoOutput bool
	// AdvancedBacktracking enables conflict-directed backjumping; when
	// false, the engine uses naive chronological backtracking.
	AdvancedBacktracking bool
	// UseZ3 routes the entire search through the SMT adapter instead of the
	// backtracker; advanced backtracking still uses the SMT adapter for
	// intra-possibility complex constraints regardless of this flag.
	UseZ3 bool
	// Visualize requests the caller render the chosen assignment/graph;
	// the engine itself does nothing with this flag beyond accepting it
	// (visualization is an external collaborator, spec.md §1).
	Visualize bool
	// ReturnGraph requests that Sequence populate the returned Plan's
	// EventGraphs field with the event graph it rendered (one per call).
	ReturnGraph bool
	// PreferConcurrentInterleaving selects the interleaver's parent-
	// selection policy: true keeps the first parent found (favouring
	// diagonal moves that advance multiple consumers at once); false
	// always overwrites the parent, producing strictly dominated,
	// sequential-looking paths (spec.md §4.7, §9 open question — both
	// behaviours are retained behind this flag).
	PreferConcurrentInterleaving bool
	// RestrictedSearch accepts the topology's cached last Assignment
	// without running the backtracker at all, provided every requirement
	// in the call is still satisfied by that cached assignment's values
	// (spec.md §4.4 "restricted search").
	RestrictedSearch bool
}

// DefaultSearchFlags returns the zero-value flag set, i.e. first-solution,
// naive backtracking, no extension, no SMT-only mode.
func DefaultSearchFlags() SearchFlags {
	return SearchFlags{}
}
