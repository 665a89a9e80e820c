package migration

import (
	"github.com/sirupsen/logrus"

	"github.com/vcsforge/core/graph"
	"github.com/vcsforge/core/store"
)

// Regenerate runs the derived-cache rebuilds named by types, in the
// fixed order original_source/src/migration.hh's regenerate_caches
// implies (rosters before heights before branches, since heights and
// branch-leaf recomputation both assume the roster/revision tables they
// scan are already sane). branches lists every branch name to recompute
// leaves for — the cache has no "list all branches" index of its own, so
// the caller (typically a cert-store scan for distinct "branch" cert
// values) supplies it. content supplies RegenFileSizes's reconstruction
// sweep; it may be nil if RegenFileSizes is not set.
func Regenerate(g *graph.Graph, rosters *store.RosterStore, content *store.ContentStore, logger *logrus.Logger, types RegenType, branches []string) error {
	if types.Has(RegenRosters) {
		result, err := rosters.CheckAll()
		if err != nil {
			return err
		}
		logger.Infof("migration: regen_rosters checked %d, %d corrupt", result.Checked, len(result.Corrupt))
		if !result.OK() {
			logger.Warnf("migration: regen_rosters found unrecoverable rosters: %v", result.Corrupt)
		}
	}
	if types.Has(RegenHeights) {
		if err := g.RecalcHeights(); err != nil {
			return err
		}
		logger.Infof("migration: regen_heights complete")
	}
	if types.Has(RegenBranches) {
		for _, b := range branches {
			if err := g.RecalcBranchLeaves(b); err != nil {
				return err
			}
		}
		logger.Infof("migration: regen_branches recalculated %d branches", len(branches))
	}
	if types.Has(RegenFileSizes) {
		if content == nil {
			logger.Warnf("migration: regen_file_sizes requested but no ContentStore supplied, skipping")
		} else {
			result, err := content.RegenerateFileSizes()
			if err != nil {
				return err
			}
			logger.Infof("migration: regen_file_sizes rebuilt %d entries, %d corrupt", result.Checked, len(result.Corrupt))
		}
	}
	return nil
}
