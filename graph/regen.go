package graph

import (
	"github.com/pkg/errors"

	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/revision"
)

// RecalcHeights rebuilds the heights table from scratch by walking the
// persisted revision_ancestry in topological order and re-running
// assignHeight for every revision — the heights analogue of the
// original's regen_heights cache bit (migration.hh's regen_cache_type),
// used after a bulk import or a direct database edit leaves the cache
// stale or absent.
func (g *Graph) RecalcHeights() error {
	ids, err := g.allRevisionIds()
	if err != nil {
		return err
	}

	tx, err := g.db.Begin()
	if err != nil {
		return errors.Wrap(err, "graph: begin recalc heights")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec("DELETE FROM heights"); err != nil {
		return errors.Wrap(err, "graph: clear heights")
	}

	remaining := ids
	done := map[hash.RevisionId]bool{}
	for len(remaining) > 0 {
		var next []hash.RevisionId
		progressed := false
		for _, id := range remaining {
			parents, err := g.Parents(id)
			if err != nil {
				return err
			}
			ready := true
			for _, p := range parents {
				if !p.Hash.IsNull() && !done[p] {
					ready = false
					break
				}
			}
			if !ready {
				next = append(next, id)
				continue
			}
			h, err := g.assignHeight(tx, parents)
			if err != nil {
				return err
			}
			if _, err := tx.Exec("INSERT INTO heights (revision, height) VALUES (?, ?)", id.String(), revision.Encode(h)); err != nil {
				return errors.Wrap(err, "graph: insert recalculated height")
			}
			done[id] = true
			progressed = true
		}
		if !progressed {
			return coreerr.New(coreerr.Corrupt, "graph: ancestry cycle or dangling parent prevents height recalculation (%d revisions stuck)", len(next))
		}
		remaining = next
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "graph: commit recalc heights")
	}
	committed = true
	return nil
}

func (g *Graph) allRevisionIds() ([]hash.RevisionId, error) {
	rows, err := g.db.Query("SELECT id FROM revisions")
	if err != nil {
		return nil, errors.Wrap(err, "graph: list revisions")
	}
	defer rows.Close()
	var out []hash.RevisionId
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		h, err := hash.ParseHash(s)
		if err != nil {
			return nil, err
		}
		out = append(out, hash.RevisionId{Hash: h})
	}
	return out, rows.Err()
}
