package main

// graphdump program
// Opens a vcsforge/core database and writes the following:
//   * a graph file (graphviz dot format) showing revision ancestry
//   * optionally, a rendered PNG of the same graph

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/vcsforge/core/certs"
	"github.com/vcsforge/core/config"
	"github.com/vcsforge/core/graph"
	"github.com/vcsforge/core/store"
)

const versionString = "graphdump 0.1 (vcsforge/core maintenance CLI)"

func main() {
	var (
		dbPath = kingpin.Arg(
			"db",
			"Path to the sqlite database file to graph.",
		).Required().String()
		outputDot = kingpin.Flag(
			"output",
			"Graphviz dot file to write the revision ancestry graph to.",
		).Short('o').String()
		outputPng = kingpin.Flag(
			"png",
			"PNG file to render the same graph to.",
		).Short('p').String()
		maintenance = kingpin.Flag(
			"maintenance",
			"Open the database bypassing the creator-code check.",
		).Bool()
		debug = kingpin.Flag(
			"debug",
			"Enable debug-level logging.",
		).Default("0").Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(versionString).Author("vcsforge")
	kingpin.CommandLine.Help = "Renders a vcsforge/core database's revision ancestry as a graphviz graph\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	if *outputDot == "" && *outputPng == "" {
		logger.Error("at least one of --output or --png is required")
		os.Exit(1)
	}

	startTime := time.Now()
	logger.Infof("%v", versionString)
	logger.Infof("Starting %s, db: %v", startTime, *dbPath)
	logger.Infof("OS: %s/%s", runtime.GOOS, runtime.GOARCH)

	db, err := store.Open(*dbPath, *maintenance)
	if err != nil {
		logger.Errorf("error opening database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := config.Default()
	content := store.NewContentStore(db, logger, cfg.StoreConfig())
	rosters := store.NewRosterStore(db, logger, cfg.StoreConfig())
	certStore := certs.New(logger)
	g := graph.New(db, logger, content, rosters, certStore)
	defer g.Close()

	dotGraph, err := g.ExportDot()
	if err != nil {
		logger.Errorf("error exporting graph: %v", err)
		os.Exit(1)
	}
	dotSource := dotGraph.String()

	if *outputDot != "" {
		f, err := os.OpenFile(*outputDot, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			logger.Errorf("error creating %s: %v", *outputDot, err)
			os.Exit(1)
		}
		if _, err := f.Write([]byte(dotSource)); err != nil {
			logger.Errorf("error writing %s: %v", *outputDot, err)
			f.Close()
			os.Exit(1)
		}
		f.Close()
		logger.Infof("wrote dot graph to %s", *outputDot)
	}

	if *outputPng != "" {
		if err := renderPNG(dotSource, *outputPng); err != nil {
			logger.Errorf("error rendering %s: %v", *outputPng, err)
			os.Exit(1)
		}
		logger.Infof("wrote png graph to %s", *outputPng)
	}
}

// renderPNG parses a dot-format graph and renders it to a PNG file using
// the same library the teacher's cmd/gitgraph left for a caller to pipe
// its dot output into (graphviz), generalized here to render straight
// from vcsforge/core's in-process export rather than requiring a
// separate `dot -Tpng` step.
func renderPNG(dotSource, path string) error {
	gv := graphviz.New()
	defer gv.Close()

	parsed, err := graphviz.ParseBytes([]byte(dotSource))
	if err != nil {
		return fmt.Errorf("parsing exported dot graph: %w", err)
	}
	defer parsed.Close()

	return gv.RenderFilename(parsed, graphviz.PNG, path)
}
