package store

import (
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// CreatorCode is the 32-bit marker written to the engine's user_version
// pragma so a database file can be recognized as belonging to this
// system before any table is touched (spec.md §6.1).
const CreatorCode = 0x4d544e43 // "MTNC"

// SchemaVersion identifies the current logical schema (§6.1's tables).
// A database opened with a different stamped version must go through
// the migration path (spec.md §9) unless the caller requests maintenance
// mode.
const SchemaVersion = "core-schema-v1"

const ddl = `
CREATE TABLE IF NOT EXISTS public_keys (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id       TEXT PRIMARY KEY,
	data     BLOB NOT NULL,
	checksum BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS file_deltas (
	id       TEXT NOT NULL,
	base     TEXT NOT NULL,
	delta    BLOB NOT NULL,
	checksum BLOB NOT NULL,
	PRIMARY KEY (id, base)
);
CREATE TABLE IF NOT EXISTS file_sizes (
	id   TEXT PRIMARY KEY,
	size INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rosters (
	id       TEXT PRIMARY KEY,
	checksum BLOB NOT NULL,
	data     BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS roster_deltas (
	id       TEXT NOT NULL,
	base     TEXT NOT NULL,
	checksum BLOB NOT NULL,
	delta    BLOB NOT NULL,
	PRIMARY KEY (id, base)
);

CREATE TABLE IF NOT EXISTS revisions (
	id   TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS revision_ancestry (
	parent TEXT NOT NULL,
	child  TEXT NOT NULL,
	PRIMARY KEY (parent, child)
);
CREATE INDEX IF NOT EXISTS revision_ancestry_child ON revision_ancestry(child);

CREATE TABLE IF NOT EXISTS heights (
	revision TEXT PRIMARY KEY,
	height   BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS next_roster_node_number (
	node INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS revision_certs (
	hash        TEXT PRIMARY KEY,
	revision_id TEXT NOT NULL,
	name        TEXT NOT NULL,
	value       TEXT NOT NULL,
	keypair_id  TEXT NOT NULL,
	signature   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS revision_certs_revision ON revision_certs(revision_id);

CREATE TABLE IF NOT EXISTS branch_leaves (
	branch      TEXT NOT NULL,
	revision_id TEXT NOT NULL,
	PRIMARY KEY (branch, revision_id)
);
CREATE TABLE IF NOT EXISTS branch_epochs (
	hash   TEXT PRIMARY KEY,
	branch TEXT NOT NULL UNIQUE,
	epoch  BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS db_vars (
	domain TEXT NOT NULL,
	name   TEXT NOT NULL,
	value  BLOB NOT NULL,
	PRIMARY KEY (domain, name)
);
`

// Open opens (creating if necessary) a SQLite-backed object database at
// path, stamps the creator code and schema version on a fresh file, and
// verifies both on an existing one. maintenance bypasses the version
// check for migration tooling (spec.md §6.1/§9).
func Open(path string, maintenance bool) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&" // path is already a URI with its own query string
	}
	db, err := sql.Open("sqlite3", path+sep+"_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrapf(err, "store: open %s", path)
	}
	db.SetMaxOpenConns(1) // the engine serializes writers itself (§5)

	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "store: create schema")
	}

	var userVersion int
	if err := db.QueryRow("PRAGMA user_version").Scan(&userVersion); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "store: read user_version")
	}
	if userVersion == 0 {
		if _, err := db.Exec("PRAGMA user_version = " + strconv.Itoa(CreatorCode)); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "store: stamp creator code")
		}
	} else if userVersion != CreatorCode && !maintenance {
		_ = db.Close()
		return nil, errors.Errorf("store: %s is not one of ours (user_version=%d)", path, userVersion)
	}

	stamped, err := dbVarGet(db, "core", "schema_version")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if stamped == "" {
		if err := dbVarSet(db, "core", "schema_version", []byte(SchemaVersion)); err != nil {
			_ = db.Close()
			return nil, err
		}
	} else if stamped != SchemaVersion && !maintenance {
		_ = db.Close()
		return nil, errors.Errorf("store: schema version %q requires migration (have %q)", stamped, SchemaVersion)
	}

	return db, nil
}

// ReadSchemaVersion reads the stamped schema_version db_var, used by the
// migration package's schema gate to decide what, if anything, needs
// regenerating before a maintenance-opened database is used normally.
func ReadSchemaVersion(db *sql.DB) (string, error) {
	return dbVarGet(db, "core", "schema_version")
}

// WriteSchemaVersion stamps the schema_version db_var, used by migration
// once it has finished bringing a database up to SchemaVersion.
func WriteSchemaVersion(db *sql.DB, version string) error {
	return dbVarSet(db, "core", "schema_version", []byte(version))
}

// ReadDeltaDirection reads the database-wide delta_direction db_var
// (spec.md §4.1 calls delta-direction "a database-wide variable"),
// returning "" if no value has been stamped yet.
func ReadDeltaDirection(db *sql.DB) (DeltaDirection, error) {
	v, err := dbVarGet(db, "core", "delta_direction")
	return DeltaDirection(v), err
}

// WriteDeltaDirection stamps the database-wide delta_direction db_var.
func WriteDeltaDirection(db *sql.DB, dir DeltaDirection) error {
	return dbVarSet(db, "core", "delta_direction", []byte(dir))
}

func dbVarGet(db *sql.DB, domain, name string) (string, error) {
	var value []byte
	err := db.QueryRow("SELECT value FROM db_vars WHERE domain = ? AND name = ?", domain, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "store: read db_var")
	}
	return string(value), nil
}

func dbVarSet(db *sql.DB, domain, name string, value []byte) error {
	_, err := db.Exec("INSERT OR REPLACE INTO db_vars (domain, name, value) VALUES (?, ?, ?)", domain, name, value)
	return errors.Wrap(err, "store: write db_var")
}
