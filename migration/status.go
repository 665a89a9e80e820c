// Package migration implements the schema-version gate and the
// cache-regeneration/legacy-ancestry-rebuild operations spec.md §9 and
// original_source/src/migration.hh group under "migrations of ancestry
// format and so on": detect whether an opened database's stamped schema
// lags the code's SchemaVersion, and give maintenance tooling a way to
// rebuild derived caches (heights, branch leaves, roster checksums) or
// import a flat, pre-cset revision history into this engine's roster
// model.
package migration

// RegenType is a bitmask of derived caches that may need rebuilding,
// mirroring original_source/src/migration.hh's regen_cache_type exactly
// (including which bit is the "rebuild everything" catch-all).
type RegenType int

const (
	RegenNone      RegenType = 0
	RegenRosters   RegenType = 1
	RegenHeights   RegenType = 2
	RegenBranches  RegenType = 4
	RegenFileSizes RegenType = 8
	RegenAll       RegenType = RegenRosters | RegenHeights | RegenBranches | RegenFileSizes
)

// Has reports whether t includes bit.
func (t RegenType) Has(bit RegenType) bool { return t&bit != 0 }

// Status reports what a schema check found, mirroring
// original_source/src/migration.hh's migration_status: either nothing to
// do, a set of caches to regenerate, or a flag-day name requiring
// operator intervention before migrating further. CheckSchema only ever
// reports the flag-day case (for an unrecognized stamp) and never sets
// Regen, since this core has exactly one schema generation.
type Status struct {
	Regen       RegenType
	FlagDayName string
}

// NeedRegen reports whether any cache needs rebuilding.
func (s Status) NeedRegen() bool { return s.Regen != RegenNone }

// NeedFlagDay reports whether a flag-day (operator-visible, irreversible
// migration step) is pending.
func (s Status) NeedFlagDay() bool { return s.FlagDayName != "" }
