// Epoch bookkeeping: a supplemented feature (SPEC_FULL.md §4) drawn from
// original_source/src/database.cc's set_epoch/check_sane_history. A
// branch's epoch is a random EpochId stamped when the branch is created
// or deliberately rewritten; a netsync-style peer compares its last-known
// epoch for a branch against the server's current one before trusting
// any ancestry claim, so a rewritten branch can't silently splice
// unrelated history under an old replica's nose.
package graph

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
)

// SetEpoch stamps branch with a new epoch, replacing any prior one.
func (g *Graph) SetEpoch(branch string, epoch hash.EpochId) error {
	_, err := g.db.Exec(
		"INSERT OR REPLACE INTO branch_epochs (hash, branch, epoch) VALUES (?, ?, ?)",
		epoch.String(), branch, epoch.Hash[:],
	)
	return errors.Wrap(err, "graph: set epoch")
}

// CheckEpoch returns branch's current epoch, or NotFound if none has
// ever been set.
func (g *Graph) CheckEpoch(branch string) (hash.EpochId, error) {
	var data []byte
	err := g.db.QueryRow("SELECT epoch FROM branch_epochs WHERE branch = ?", branch).Scan(&data)
	if err == sql.ErrNoRows {
		return hash.EpochId{}, coreerr.New(coreerr.NotFound, "graph: no epoch set for branch %q", branch)
	}
	if err != nil {
		return hash.EpochId{}, errors.Wrap(err, "graph: read epoch")
	}
	var h hash.Hash
	copy(h[:], data)
	return hash.EpochId{Hash: h}, nil
}

// EpochMatches reports whether peerEpoch is still valid for branch — the
// narrow interface a netsync-style collaborator uses to refuse ancestry
// claims made against a branch that has since been re-epoched.
func (g *Graph) EpochMatches(branch string, peerEpoch hash.EpochId) (bool, error) {
	current, err := g.CheckEpoch(branch)
	if err != nil {
		if coreerr.Is(err, coreerr.NotFound) {
			return true, nil // no epoch stamped yet, nothing to violate
		}
		return false, err
	}
	return current == peerEpoch, nil
}
