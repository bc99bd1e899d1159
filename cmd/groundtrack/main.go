// Command groundtrack runs one speed-estimation window against the
// simulated orbit camera, serves the monitoring API while it runs, and
// writes the fused ground-track speed when the window closes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/skyward-data/groundtrack.report/internal/api"
	"github.com/skyward-data/groundtrack.report/internal/config"
	"github.com/skyward-data/groundtrack.report/internal/db"
	"github.com/skyward-data/groundtrack.report/internal/estimate"
	"github.com/skyward-data/groundtrack.report/internal/frame"
	"github.com/skyward-data/groundtrack.report/internal/monitoring"
	"github.com/skyward-data/groundtrack.report/internal/timeutil"
	"github.com/skyward-data/groundtrack.report/internal/units"
	"github.com/skyward-data/groundtrack.report/internal/window"
)

var (
	configPath    = flag.String("config", "", "Path to estimator config JSON (empty uses the default search path)")
	listen        = flag.String("listen", ":8080", "Listen address for the monitoring API")
	dbFile        = flag.String("db", "groundtrack.db", "Journal database file (empty disables journaling)")
	migrationsDir = flag.String("migrations", "migrations", "Journal migrations directory")
	displayUnits  = flag.String("units", "", "Display units override: mps, kmps, kph, mph")
	duration      = flag.Duration("duration", 0, "Window duration override (e.g. 90s)")
	resultFile    = flag.String("result", "result.txt", "Final speed output file (empty disables)")
	seed          = flag.Int64("seed", 1, "Simulator random seed")
	geotagDrop    = flag.Int("geotag-drop", 0, "Drop every Nth simulated geotag (0 = never)")
	geotagJitter  = flag.Float64("geotag-jitter", 25, "Stddev of simulated geotag noise in meters")
	matchNoise    = flag.Float64("match-noise", 0.01, "Relative noise on simulated pixel displacement")
	debug         = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if *debug {
		monitoring.EnableDebug()
	}

	var cfg *config.EstimatorConfig
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	} else {
		cfg = config.MustLoadDefaultConfig()
	}
	if *duration != 0 {
		d := duration.String()
		cfg.WindowDuration = &d
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	unitsOut := cfg.GetDisplayUnits()
	if *displayUnits != "" {
		if !units.IsValid(*displayUnits) {
			log.Fatalf("invalid units %q (want one of %s)", *displayUnits, units.ValidString())
		}
		unitsOut = *displayUnits
	}

	var journal *db.DB
	if *dbFile != "" {
		var err error
		journal, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open journal: %v", err)
		}
		if err := journal.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("failed to migrate journal: %v", err)
		}
	}

	clock := timeutil.RealClock{}
	sim := frame.NewSim(frame.SimConfig{
		Interval:           cfg.GetCaptureInterval(),
		GeotagJitterMeters: *geotagJitter,
		GeotagDropEvery:    *geotagDrop,
		DisplacementNoise:  *matchNoise,
	}, clock, *seed)

	var ctrl *window.Controller
	sink := func(r estimate.Rejection) {
		if journal == nil {
			return
		}
		if err := journal.RecordRejection(ctrl.RunID(), r, time.Now()); err != nil {
			monitoring.Logf("failed to journal rejection: %v", err)
		}
	}
	ctrl = window.New(cfg, sim, sim.Matcher(), clock, sink)
	if journal != nil {
		ctrl.SetSampleHook(func(seq int, s estimate.SpeedSample) {
			if err := journal.RecordSample(ctrl.RunID(), seq, s); err != nil {
				monitoring.Logf("failed to journal sample %d: %v", seq, err)
			}
		})
		if err := journal.CreateRun(ctrl.RunID(), time.Now()); err != nil {
			log.Fatalf("failed to create journal run: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	runDone := make(chan struct{})

	// Monitoring API for the duration of the run.
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(ctrl, journal, unitsOut).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		select {
		case <-ctx.Done():
		case <-runDone:
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				monitoring.Logf("HTTP server force close error: %v", err)
			}
		}
	}()

	res, runErr := ctrl.Run(ctx)
	close(runDone)
	stop()

	if journal != nil {
		display := ""
		if res != nil {
			display = units.Format(res.FinalSpeedMPS, unitsOut)
		}
		if err := journal.FinalizeRun(ctrl.RunID(), time.Now(), res, ctrl.RejectionCount(), ctrl.GeotagOnly(), display); err != nil {
			monitoring.Logf("failed to finalize journal run: %v", err)
		}
	}

	noEstimate := errors.Is(runErr, window.ErrNoValidEstimate)
	switch {
	case noEstimate:
		monitoring.Logf("run %s produced no valid estimate (%d rejections)", ctrl.RunID(), ctrl.RejectionCount())
	case runErr != nil:
		log.Fatalf("run failed: %v", runErr)
	default:
		display := units.Format(res.FinalSpeedMPS, unitsOut)
		monitoring.Logf("final speed: %s (%d samples, variance %.4g)", display, res.SampleCount, res.CombinedVariance)
		if *resultFile != "" {
			if err := os.WriteFile(*resultFile, []byte(display+"\n"), 0644); err != nil {
				monitoring.Logf("failed to write %s: %v", *resultFile, err)
			}
		}
		fmt.Println(display)
	}

	wg.Wait()
	if journal != nil {
		journal.Close()
	}
	if noEstimate {
		os.Exit(1)
	}
}
