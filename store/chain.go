package store

import (
	"database/sql"
	"fmt"

	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
)

// chainStore implements the reconstruction-path algorithm spec.md §4.1
// describes against one pair of (bases, deltas) tables: to materialize
// id, walk the deltas relation id -> base breadth-first until a bases
// row is found, then apply the collected deltas in reverse (base-to-leaf)
// order. Shared by ContentStore (files/file_deltas) and RosterStore
// (rosters/roster_deltas).
type chainStore struct {
	db         *sql.DB
	baseTable  string
	deltaTable string
}

func newChainStore(db *sql.DB, baseTable, deltaTable string) *chainStore {
	return &chainStore{db: db, baseTable: baseTable, deltaTable: deltaTable}
}

func (c *chainStore) hasBase(id string) (bool, error) {
	var n int
	err := c.db.QueryRow(fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE id = ?", c.baseTable), id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *chainStore) hasDelta(id string) (bool, error) {
	var n int
	err := c.db.QueryRow(fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE id = ?", c.deltaTable), id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// exists reports whether id is reachable at all (as a base or via a
// delta row), without validating the whole chain terminates.
func (c *chainStore) exists(id string) (bool, error) {
	if ok, err := c.hasBase(id); err != nil || ok {
		return ok, err
	}
	return c.hasDelta(id)
}

type baseRow struct {
	data     []byte
	checksum []byte
}

func (c *chainStore) getBase(id string) (*baseRow, error) {
	var data, checksum []byte
	err := c.db.QueryRow(fmt.Sprintf("SELECT data, checksum FROM %s WHERE id = ?", c.baseTable), id).Scan(&data, &checksum)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &baseRow{data: data, checksum: checksum}, nil
}

type deltaRow struct {
	base     string
	delta    []byte
	checksum []byte
}

func (c *chainStore) getDelta(id string) (*deltaRow, error) {
	var base string
	var delta, checksum []byte
	err := c.db.QueryRow(fmt.Sprintf("SELECT base, delta, checksum FROM %s WHERE id = ?", c.deltaTable), id).Scan(&base, &delta, &checksum)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &deltaRow{base: base, delta: delta, checksum: checksum}, nil
}

// get reconstructs id's bytes: a breadth-first walk of id -> base links
// terminating at a base row, then the deltas are applied in reverse
// (base-outward) order. A chain that never reaches a base is Corrupt.
func (c *chainStore) get(id string) ([]byte, error) {
	type step struct {
		id    string
		delta *deltaRow
	}
	var path []step
	cur := id
	visited := map[string]bool{}
	for {
		if visited[cur] {
			return nil, coreerr.New(coreerr.Corrupt, "store: delta cycle detected reconstructing %s", id)
		}
		visited[cur] = true

		base, err := c.getBase(cur)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Internal, err, "store: read base %s", cur)
		}
		if base != nil {
			sum := hash.Sum(base.data)
			if string(sum[:]) != string(base.checksum) {
				return nil, coreerr.New(coreerr.Corrupt, "store: checksum mismatch on base %s", cur)
			}
			data := base.data
			for i := len(path) - 1; i >= 0; i-- {
				d, err := DecodeDelta(path[i].delta.delta)
				if err != nil {
					return nil, coreerr.Wrap(coreerr.Corrupt, err, "store: decode delta %s", path[i].id)
				}
				sum := hash.Sum(path[i].delta.delta)
				if string(sum[:]) != string(path[i].delta.checksum) {
					return nil, coreerr.New(coreerr.Corrupt, "store: checksum mismatch on delta %s", path[i].id)
				}
				data, err = d.Apply(data)
				if err != nil {
					return nil, coreerr.Wrap(coreerr.Corrupt, err, "store: apply delta %s", path[i].id)
				}
			}
			// Only file ids are hashes of their own bytes; roster rows
			// are keyed by the RevisionId they belong to.
			if c.baseTable == "files" {
				want := hash.Sum(data)
				gotId, err := hash.ParseHash(id)
				if err == nil && want != gotId {
					return nil, coreerr.New(coreerr.Corrupt, "store: reconstructed %s does not hash to itself", id)
				}
			}
			return data, nil
		}

		delta, err := c.getDelta(cur)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Internal, err, "store: read delta %s", cur)
		}
		if delta == nil {
			return nil, coreerr.New(coreerr.NotFound, "store: no such object %s", id)
		}
		path = append(path, step{id: cur, delta: delta})
		cur = delta.base
	}
}

// putFull inserts a base row, idempotently: a second call with the same
// id and identical bytes is a no-op.
func (c *chainStore) putFull(id string, data []byte) error {
	sum := hash.Sum(data)
	existing, err := c.getBase(id)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err, "store: check existing base %s", id)
	}
	if existing != nil {
		return nil
	}
	_, err = c.db.Exec(fmt.Sprintf("INSERT INTO %s (id, data, checksum) VALUES (?, ?, ?)", c.baseTable), id, data, sum[:])
	return coreerr.Wrap(coreerr.Internal, err, "store: insert base %s", id)
}

// putDelta records that idNew reconstructs via delta from idBase. idBase
// must already have a base or delta row; exists does not walk its chain
// to a base, and a looping chain is reported as Corrupt by get.
func (c *chainStore) putDelta(idNew, idBase string, delta Delta) error {
	ok, err := c.exists(idBase)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err, "store: check base %s for delta insert", idBase)
	}
	if !ok {
		return coreerr.New(coreerr.Invalid, "store: delta base %s does not exist", idBase)
	}
	enc := delta.Encode()
	sum := hash.Sum(enc)
	_, err = c.db.Exec(fmt.Sprintf("INSERT OR REPLACE INTO %s (id, base, delta, checksum) VALUES (?, ?, ?, ?)", c.deltaTable),
		idNew, idBase, enc, sum[:])
	return coreerr.Wrap(coreerr.Internal, err, "store: insert delta %s<-%s", idNew, idBase)
}

// drop removes id's base row, provided some other reachable chain still
// terminates correctly is the caller's responsibility (§4.1: "deltas
// pointing at it may remain as long as another reachable chain exists").
func (c *chainStore) drop(id string) error {
	_, err := c.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.baseTable), id)
	return coreerr.Wrap(coreerr.Internal, err, "store: drop base %s", id)
}
