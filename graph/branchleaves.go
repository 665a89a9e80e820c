package graph

import (
	"github.com/pkg/errors"

	"github.com/vcsforge/core/certs"
	"github.com/vcsforge/core/hash"
)

// BranchCertName is the cert name that drives branch_leaves maintenance
// (spec.md §4.2): a revision is considered a head of branch B iff it
// carries a cert named "branch" with value B.
const BranchCertName = certs.CertName("branch")

// UpdateBranchLeaves implements spec.md §4.2's branch_leaves maintenance,
// run after a branch cert is accepted into the cert store:
//
//  1. let B = cert.Value, R = cert.Ident
//  2. let P = Parents(R)
//  3. for each p in P: if (B, p) is a leaf, remove it
//  4. remove any other (B, x) where x is an ancestor of R
//  5. if no remaining leaf dominates R (has R as an ancestor), insert (B, R)
func (g *Graph) UpdateBranchLeaves(branch string, r hash.RevisionId) error {
	parents, err := g.Parents(r)
	if err != nil {
		return err
	}
	tx, err := g.db.Begin()
	if err != nil {
		return errors.Wrap(err, "graph: begin branch-leaves update")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, p := range parents {
		if p.Hash.IsNull() {
			continue
		}
		if _, err := tx.Exec("DELETE FROM branch_leaves WHERE branch = ? AND revision_id = ?", branch, p.String()); err != nil {
			return errors.Wrap(err, "graph: remove superseded branch leaf")
		}
	}

	rows, err := tx.Query("SELECT revision_id FROM branch_leaves WHERE branch = ?", branch)
	if err != nil {
		return errors.Wrap(err, "graph: list branch leaves")
	}
	var remaining []hash.RevisionId
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return err
		}
		h, err := hash.ParseHash(s)
		if err != nil {
			rows.Close()
			return err
		}
		remaining = append(remaining, hash.RevisionId{Hash: h})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	survivors := remaining[:0:0]
	for _, x := range remaining {
		if x == r {
			continue
		}
		isAncestor, err := g.IsAncestor(x, r)
		if err != nil {
			return err
		}
		if isAncestor {
			if _, err := tx.Exec("DELETE FROM branch_leaves WHERE branch = ? AND revision_id = ?", branch, x.String()); err != nil {
				return errors.Wrap(err, "graph: remove ancestor branch leaf")
			}
			continue
		}
		survivors = append(survivors, x)
	}

	// database.cc's record_as_branch_leaf "are we really a leaf" check
	// (tests/branch_leaves_sync_bug): an out-of-order cert arrival can mean
	// R is already dominated by a surviving leaf, in which case R must not
	// be (re-)inserted as a leaf itself.
	dominated := false
	for _, x := range survivors {
		isAncestor, err := g.IsAncestor(r, x)
		if err != nil {
			return err
		}
		if isAncestor {
			dominated = true
			break
		}
	}

	if !dominated {
		if _, err := tx.Exec("INSERT OR IGNORE INTO branch_leaves (branch, revision_id) VALUES (?, ?)", branch, r.String()); err != nil {
			return errors.Wrap(err, "graph: insert branch leaf")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "graph: commit branch-leaves update")
	}
	committed = true
	return nil
}

// BranchLeaves returns the current heads of branch.
func (g *Graph) BranchLeaves(branch string) ([]hash.RevisionId, error) {
	return g.queryIds("SELECT revision_id FROM branch_leaves WHERE branch = ?", branch)
}

// RecalcBranchLeaves implements spec.md §4.2's maintenance recomputation:
// recalc_branch_leaves(B) = erase_ancestors(revs with branch=B). Used to
// repair the index after a direct database edit or a bulk import.
func (g *Graph) RecalcBranchLeaves(branch string) error {
	revs, err := g.revisionsWithBranchCert(branch)
	if err != nil {
		return err
	}
	var leaves []hash.RevisionId
	for _, candidate := range revs {
		isAncestorOfAny := false
		for _, other := range revs {
			if other == candidate {
				continue
			}
			yes, err := g.IsAncestor(candidate, other)
			if err != nil {
				return err
			}
			if yes {
				isAncestorOfAny = true
				break
			}
		}
		if !isAncestorOfAny {
			leaves = append(leaves, candidate)
		}
	}

	tx, err := g.db.Begin()
	if err != nil {
		return errors.Wrap(err, "graph: begin recalc branch leaves")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.Exec("DELETE FROM branch_leaves WHERE branch = ?", branch); err != nil {
		return errors.Wrap(err, "graph: clear branch leaves")
	}
	for _, l := range leaves {
		if _, err := tx.Exec("INSERT INTO branch_leaves (branch, revision_id) VALUES (?, ?)", branch, l.String()); err != nil {
			return errors.Wrap(err, "graph: reinsert branch leaf")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "graph: commit recalc branch leaves")
	}
	committed = true
	return nil
}

func (g *Graph) revisionsWithBranchCert(branch string) ([]hash.RevisionId, error) {
	rows, err := g.db.Query(
		"SELECT DISTINCT revision_id FROM revision_certs WHERE name = ? AND value = ?",
		string(BranchCertName), branch,
	)
	if err != nil {
		return nil, errors.Wrap(err, "graph: query branch certs")
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
