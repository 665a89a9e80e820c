package migration

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/vcsforge/core/store"
)

// CheckSchema reads the stamped schema_version db_var and reports what a
// caller holding a maintenance-opened handle (store.Open(path, true))
// should do before treating the database as current. This core has
// exactly one schema generation (store.SchemaVersion), so the only two
// outcomes are "already current" and "unrecognized version" — there is
// no ladder of historical migrations to walk, unlike the original's
// hash-indexed list of SQL upgrade steps.
func CheckSchema(db *sql.DB) (Status, error) {
	stamped, err := store.ReadSchemaVersion(db)
	if err != nil {
		return Status{}, errors.Wrap(err, "migration: read schema version")
	}
	if stamped == "" || stamped == store.SchemaVersion {
		return Status{}, nil
	}
	// An unrecognized stamp is not safely regen-able in place: the
	// operator must run an explicit import (Importer.ImportHistory) or
	// restore from a compatible dump rather than have us guess at a
	// silent table rewrite.
	return Status{FlagDayName: "schema " + stamped + " predates " + store.SchemaVersion}, nil
}

// Finish stamps the database as current, run once CheckSchema's reported
// work (an import, a regen pass, or both) has completed.
func Finish(db *sql.DB) error {
	return store.WriteSchemaVersion(db, store.SchemaVersion)
}
