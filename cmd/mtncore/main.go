package main

// mtncore is the maintenance CLI for a vcsforge/core database: schema
// version checking, the db_check integrity sweep, derived-cache
// regeneration, and the fix_bad_certs trust-filter rerun.

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/vcsforge/core/certs"
	"github.com/vcsforge/core/config"
	"github.com/vcsforge/core/graph"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/migration"
	"github.com/vcsforge/core/store"
)

const versionString = "mtncore 0.1 (vcsforge/core maintenance CLI)"

func main() {
	var (
		action = kingpin.Arg(
			"action",
			"Maintenance action to run: check, schema, regen, or fix-certs.",
		).Required().String()
		dbPath = kingpin.Flag(
			"db",
			"Path to the sqlite database file.",
		).Required().Short('d').String()
		configFile = kingpin.Flag(
			"config",
			"YAML configuration file (defaults applied if omitted).",
		).Short('c').String()
		maintenance = kingpin.Flag(
			"maintenance",
			"Open the database bypassing the creator-code check.",
		).Bool()
		finish = kingpin.Flag(
			"finish",
			"schema action only: stamp the database as current after checking.",
		).Bool()
		all = kingpin.Flag(
			"all",
			"regen action only: rebuild every derived cache.",
		).Bool()
		regenRosters = kingpin.Flag(
			"rosters",
			"regen action only: re-validate every roster.",
		).Bool()
		regenHeights = kingpin.Flag(
			"heights",
			"regen action only: rebuild the heights table from scratch.",
		).Bool()
		regenBranches = kingpin.Flag(
			"branches",
			"regen action only: recompute branch_leaves for --branch.",
		).Bool()
		regenFileSizes = kingpin.Flag(
			"file-sizes",
			"regen action only: rebuild the file_sizes cache.",
		).Bool()
		branches = kingpin.Flag(
			"branch",
			"regen action only: branch name to recompute leaves for (repeatable).",
		).Strings()
		trustedKeys = kingpin.Flag(
			"trusted-key",
			"fix-certs action only: a trusted signer key id (repeatable).",
		).Strings()
		revisionArgs = kingpin.Flag(
			"revision",
			"fix-certs action only: revision id to re-filter certs for (repeatable).",
		).Strings()
		profileMode = kingpin.Flag(
			"profile",
			"Enable profiling: cpu, mem, block, or none.",
		).Default("none").String()
		debug = kingpin.Flag(
			"debug",
			"Enable debug-level logging.",
		).Bool()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(versionString).Author("vcsforge")
	kingpin.CommandLine.Help = "Runs schema/db_check/regen/fix-certs maintenance operations against a core database.\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	switch *profileMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile).Stop()
	case "block":
		defer profile.Start(profile.BlockProfile).Stop()
	case "none":
	default:
		fmt.Fprintf(os.Stderr, "unrecognized --profile %q: must be cpu, mem, block, or none\n", *profileMode)
		os.Exit(1)
	}

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug {
		logger.Level = logrus.DebugLevel
	}

	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadConfigFile(*configFile)
		if err != nil {
			logger.Errorf("error loading config file: %v", err)
			os.Exit(1)
		}
	}

	db, err := store.Open(*dbPath, *maintenance)
	if err != nil {
		logger.Errorf("error opening database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	content := store.NewContentStore(db, logger, cfg.StoreConfig())
	rosters := store.NewRosterStore(db, logger, cfg.StoreConfig())
	certStore := certs.New(logger)
	if err := store.LoadKeys(db, certStore); err != nil {
		logger.Errorf("error loading keys: %v", err)
		os.Exit(1)
	}
	if err := store.LoadCerts(db, certStore); err != nil {
		logger.Errorf("error loading certs: %v", err)
		os.Exit(1)
	}
	g := graph.New(db, logger, content, rosters, certStore)
	defer g.Close()

	switch *action {
	case "check":
		runCheck(logger, g)
	case "schema":
		runSchema(logger, db, *finish)
	case "regen":
		runRegen(logger, g, rosters, content, regenOpts{
			all:       *all,
			rosters:   *regenRosters,
			heights:   *regenHeights,
			branches:  *regenBranches,
			fileSizes: *regenFileSizes,
		}, *branches)
	case "fix-certs":
		runFixCerts(logger, db, certStore, cfg, *trustedKeys, *revisionArgs)
	default:
		logger.Errorf("unrecognized action %q: must be check, schema, regen, or fix-certs", *action)
		os.Exit(1)
	}
}

func runCheck(logger *logrus.Logger, g *graph.Graph) {
	report, err := g.CheckDatabase()
	if err != nil {
		logger.Errorf("check failed: %v", err)
		os.Exit(1)
	}
	logger.Infof("files: checked %d, corrupt %d", report.Files.Checked, len(report.Files.Corrupt))
	logger.Infof("rosters: checked %d, corrupt %d", report.Rosters.Checked, len(report.Rosters.Corrupt))
	logger.Infof("ancestry: %d problems", len(report.Ancestry))
	logger.Infof("heights: %d problems", len(report.Heights))
	logger.Infof("certs: %d problems", len(report.Certs))
	for _, p := range report.Files.Corrupt {
		logger.Warnf("corrupt file: %s", p)
	}
	for _, p := range report.Rosters.Corrupt {
		logger.Warnf("corrupt roster: %s", p)
	}
	for _, p := range report.Ancestry {
		logger.Warnf("ancestry problem: %s", p)
	}
	for _, p := range report.Heights {
		logger.Warnf("height problem: %s", p)
	}
	for _, p := range report.Certs {
		logger.Warnf("cert problem: %s", p)
	}
	if !report.OK() {
		os.Exit(1)
	}
}

func runSchema(logger *logrus.Logger, db *sql.DB, finish bool) {
	status, err := migration.CheckSchema(db)
	if err != nil {
		logger.Errorf("schema check failed: %v", err)
		os.Exit(1)
	}
	if status.NeedFlagDay() {
		logger.Errorf("flag day required: %s", status.FlagDayName)
		os.Exit(1)
	}
	logger.Infof("schema is current (%s)", store.SchemaVersion)
	if finish {
		if err := migration.Finish(db); err != nil {
			logger.Errorf("error stamping schema: %v", err)
			os.Exit(1)
		}
		logger.Infof("stamped schema as current")
	}
}

type regenOpts struct {
	all                                   bool
	rosters, heights, branches, fileSizes bool
}

func runRegen(logger *logrus.Logger, g *graph.Graph, rosters *store.RosterStore, content *store.ContentStore, opts regenOpts, branchNames []string) {
	types := migration.RegenNone
	switch {
	case opts.all:
		types = migration.RegenAll
	default:
		if opts.rosters {
			types |= migration.RegenRosters
		}
		if opts.heights {
			types |= migration.RegenHeights
		}
		if opts.branches {
			types |= migration.RegenBranches
		}
		if opts.fileSizes {
			types |= migration.RegenFileSizes
		}
	}
	if types == migration.RegenNone {
		logger.Warnf("regen: nothing selected, pass --all or one of --rosters/--heights/--branches/--file-sizes")
		return
	}
	if types.Has(migration.RegenBranches) && len(branchNames) == 0 {
		logger.Errorf("regen: --branches requires at least one --branch name")
		os.Exit(1)
	}
	if err := migration.Regenerate(g, rosters, content, logger, types, branchNames); err != nil {
		logger.Errorf("regen failed: %v", err)
		os.Exit(1)
	}
	logger.Infof("regen complete")
}

func runFixCerts(logger *logrus.Logger, db *sql.DB, certStore *certs.Store, cfg *config.Config, trustedKeys, revisions []string) {
	if len(revisions) == 0 {
		logger.Errorf("fix-certs: at least one --revision is required")
		os.Exit(1)
	}
	trusted := map[string]bool{}
	for _, k := range trustedKeys {
		trusted[k] = true
	}
	trustFn := cfg.TrustFn(trusted)

	total := 0
	for _, rs := range revisions {
		h, err := hash.ParseHash(rs)
		if err != nil {
			logger.Errorf("fix-certs: bad revision id %q: %v", rs, err)
			os.Exit(1)
		}
		ident := hash.RevisionId{Hash: h}
		removed := certStore.FixBadCerts(ident, trustFn)
		if removed > 0 {
			if err := store.SyncCertsFor(db, ident, certStore.CertsFor(ident)); err != nil {
				logger.Errorf("fix-certs: error syncing %s: %v", ident, err)
				os.Exit(1)
			}
		}
		logger.Infof("fix-certs: %s removed %d bad certs", ident, removed)
		total += removed
	}
	logger.Infof("fix-certs: removed %d certs total", total)
}
