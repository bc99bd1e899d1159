// Package api exposes the estimation run over HTTP for live monitoring
// and post-run reporting. Speeds are stored in m/s and converted to the
// configured display unit at this edge.
package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/skyward-data/groundtrack.report/internal/db"
	"github.com/skyward-data/groundtrack.report/internal/estimate"
	"github.com/skyward-data/groundtrack.report/internal/monitoring"
	"github.com/skyward-data/groundtrack.report/internal/report"
	"github.com/skyward-data/groundtrack.report/internal/units"
	"github.com/skyward-data/groundtrack.report/internal/window"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// StatusProvider is the live view the window controller exposes.
type StatusProvider interface {
	RunID() uuid.UUID
	State() window.State
	Latest() *estimate.FusionResult
	Samples() []estimate.SpeedSample
	RejectionCount() int
	GeotagOnly() bool
}

type Server struct {
	provider StatusProvider
	db       *db.DB
	units    string
}

// NewServer builds the API server. The journal db may be nil when running
// without persistence; journal-backed routes then report 404.
func NewServer(provider StatusProvider, journal *db.DB, displayUnits string) *Server {
	return &Server{
		provider: provider,
		db:       journal,
		units:    displayUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/samples", s.listSamples)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/report", s.showReport)
	mux.HandleFunc("/api/chart", s.showChart)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, "ok")
}

// estimateView is the wire shape of a fusion result, with the speed
// converted for display.
type estimateView struct {
	Speed            float64                                    `json:"speed"`
	Units            string                                     `json:"units"`
	Display          string                                     `json:"display"`
	SpeedMPS         float64                                    `json:"speed_mps"`
	CombinedVariance float64                                    `json:"combined_variance"`
	SampleCount      int                                        `json:"sample_count"`
	PoolSize         int                                        `json:"pool_size"`
	WindowStart      time.Time                                  `json:"window_start"`
	WindowEnd        time.Time                                  `json:"window_end"`
	Kinds            map[estimate.SourceKind]estimate.KindStats `json:"kinds"`
}

func (s *Server) estimateToView(res *estimate.FusionResult) *estimateView {
	if res == nil {
		return nil
	}
	return &estimateView{
		Speed:            units.Convert(res.FinalSpeedMPS, s.units),
		Units:            s.units,
		Display:          units.Format(res.FinalSpeedMPS, s.units),
		SpeedMPS:         res.FinalSpeedMPS,
		CombinedVariance: res.CombinedVariance,
		SampleCount:      res.SampleCount,
		PoolSize:         res.PoolSize,
		WindowStart:      res.WindowStart,
		WindowEnd:        res.WindowEnd,
		Kinds:            res.Kinds,
	}
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status := map[string]interface{}{
		"run_id":      s.provider.RunID().String(),
		"state":       s.provider.State(),
		"geotag_only": s.provider.GeotagOnly(),
		"rejections":  s.provider.RejectionCount(),
		"estimate":    s.estimateToView(s.provider.Latest()),
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
		return
	}
}

// sampleView is the wire shape of one accepted sample.
type sampleView struct {
	Source         estimate.SourceKind `json:"source"`
	Speed          float64             `json:"speed"`
	SpeedMPS       float64             `json:"speed_mps"`
	DistanceMeters float64             `json:"distance_m"`
	ElapsedSeconds float64             `json:"elapsed_s"`
	MatchedPoints  int                 `json:"matched_points,omitempty"`
	At             time.Time           `json:"at"`
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	samples := s.provider.Samples()
	views := make([]sampleView, len(samples))
	for i, smp := range samples {
		views[i] = sampleView{
			Source:         smp.Source,
			Speed:          units.Convert(smp.SpeedMPS, s.units),
			SpeedMPS:       smp.SpeedMPS,
			DistanceMeters: smp.DistanceMeters,
			ElapsedSeconds: smp.ElapsedSeconds,
			MatchedPoints:  smp.MatchedPoints,
			At:             smp.At,
		}
	}

	if err := json.NewEncoder(w).Encode(views); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write samples")
		return
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "No journal configured")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	runs, err := s.db.Runs(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	if runs == nil {
		runs = []db.RunRecord{}
	}

	if err := json.NewEncoder(w).Encode(runs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write runs")
		return
	}
}

// showReport returns one journaled run with its samples and rejections.
// Defaults to the latest run; ?run_id= selects a specific one.
func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "No journal configured")
		return
	}

	var rec db.RunRecord
	var err error
	if id := r.URL.Query().Get("run_id"); id != "" {
		runID, perr := uuid.Parse(id)
		if perr != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'run_id' parameter")
			return
		}
		rec, err = s.db.GetRun(runID)
	} else {
		rec, err = s.db.LatestRun()
	}
	if errors.Is(err, sql.ErrNoRows) {
		s.writeJSONError(w, http.StatusNotFound, "No runs journaled")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve run: %v", err))
		return
	}

	samples, err := s.db.SamplesForRun(rec.RunID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve samples: %v", err))
		return
	}
	rejections, err := s.db.RejectionsForRun(rec.RunID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve rejections: %v", err))
		return
	}
	if samples == nil {
		samples = []db.SampleRecord{}
	}
	if rejections == nil {
		rejections = []db.RejectionRecord{}
	}

	report := map[string]interface{}{
		"run":        rec,
		"samples":    samples,
		"rejections": rejections,
	}
	if rec.FinalSpeedMPS != nil {
		report["display"] = units.Format(*rec.FinalSpeedMPS, s.units)
	}

	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write report")
		return
	}
}

// showChart renders the go-echarts HTML chart for one journaled run.
// Defaults to the latest run; ?run_id= selects a specific one.
func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	// Errors are JSON like the rest of the API; the header is replaced
	// before the first write on the success path.
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "No journal configured")
		return
	}

	var rec db.RunRecord
	var err error
	if id := r.URL.Query().Get("run_id"); id != "" {
		runID, perr := uuid.Parse(id)
		if perr != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'run_id' parameter")
			return
		}
		rec, err = s.db.GetRun(runID)
	} else {
		rec, err = s.db.LatestRun()
	}
	if errors.Is(err, sql.ErrNoRows) {
		s.writeJSONError(w, http.StatusNotFound, "No runs journaled")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve run: %v", err))
		return
	}

	samples, err := s.db.SamplesForRun(rec.RunID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve samples: %v", err))
		return
	}

	var buf bytes.Buffer
	if err := report.RenderRun(&buf, rec, samples, s.units); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	config := map[string]interface{}{
		"units": s.units,
	}

	if err := json.NewEncoder(w).Encode(config); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}
