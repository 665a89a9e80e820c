package graph

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/revision"
)

// Height returns id's assigned RevHeight.
func (g *Graph) Height(id hash.RevisionId) (revision.Height, error) {
	var data []byte
	err := g.db.QueryRow("SELECT height FROM heights WHERE revision = ?", id.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, coreerr.New(coreerr.NotFound, "graph: no height for %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "graph: read height")
	}
	return revision.DecodeHeight(data)
}

// usedHeights loads every height currently assigned, used by Assign's
// "used" predicate.
func (g *Graph) usedHeights(tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.Query("SELECT height FROM heights")
	if err != nil {
		return nil, errors.Wrap(err, "graph: list heights")
	}
	defer rows.Close()
	used := map[string]bool{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		h, err := revision.DecodeHeight(data)
		if err != nil {
			return nil, err
		}
		used[h.String()] = true
	}
	return used, rows.Err()
}

// assignHeight implements spec.md §3.7/§4.2's RevHeight rule: the child
// index of max(height(p)) over parents, or Root() for a root revision,
// walking successive child indices until one is unused.
func (g *Graph) assignHeight(tx *sql.Tx, parents []hash.RevisionId) (revision.Height, error) {
	used, err := g.usedHeights(tx)
	if err != nil {
		return nil, err
	}
	var parentHeights []revision.Height
	for _, p := range parents {
		if p.Hash.IsNull() {
			continue
		}
		h, err := g.heightTx(tx, p)
		if err != nil {
			return nil, err
		}
		parentHeights = append(parentHeights, h)
	}
	return revision.Assign(parentHeights, func(h revision.Height) bool { return used[h.String()] }), nil
}

func (g *Graph) heightTx(tx *sql.Tx, id hash.RevisionId) (revision.Height, error) {
	var data []byte
	err := tx.QueryRow("SELECT height FROM heights WHERE revision = ?", id.String()).Scan(&data)
	if err != nil {
		return nil, errors.Wrapf(err, "graph: read height for parent %s", id)
	}
	return revision.DecodeHeight(data)
}
