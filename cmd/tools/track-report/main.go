// Command track-report renders an HTML chart of a journaled estimation
// run: per-kind speed samples with the fused estimate overlaid.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/skyward-data/groundtrack.report/internal/db"
	"github.com/skyward-data/groundtrack.report/internal/report"
	"github.com/skyward-data/groundtrack.report/internal/units"
)

var (
	dbFile       = flag.String("db", "groundtrack.db", "Journal database file")
	runID        = flag.String("run", "", "Run to render (empty renders the latest run)")
	outFile      = flag.String("out", "track-report.html", "Output HTML file")
	displayUnits = flag.String("units", units.KMPS, "Display units: mps, kmps, kph, mph")
)

func main() {
	flag.Parse()

	if !units.IsValid(*displayUnits) {
		log.Fatalf("invalid units %q (want one of %s)", *displayUnits, units.ValidString())
	}

	journal, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open journal: %v", err)
	}
	defer journal.Close()

	var run db.RunRecord
	if *runID != "" {
		id, err := uuid.Parse(*runID)
		if err != nil {
			log.Fatalf("invalid run id %q: %v", *runID, err)
		}
		run, err = journal.GetRun(id)
		if err != nil {
			log.Fatalf("failed to load run %s: %v", id, err)
		}
	} else {
		run, err = journal.LatestRun()
		if err != nil {
			log.Fatalf("failed to load latest run: %v", err)
		}
	}

	samples, err := journal.SamplesForRun(run.RunID)
	if err != nil {
		log.Fatalf("failed to load samples for run %s: %v", run.RunID, err)
	}
	if len(samples) == 0 {
		log.Printf("run %s has no journaled samples; rendering an empty chart", run.RunID)
	}

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *outFile, err)
	}
	defer f.Close()

	if err := report.RenderRun(f, run, samples, *displayUnits); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("wrote %s (run %s, %d samples)", *outFile, run.RunID, len(samples))
}
