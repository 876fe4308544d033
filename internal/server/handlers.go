package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/headline-goat/janus/internal/experiment"
	"github.com/headline-goat/janus/internal/ingest"
	"github.com/headline-goat/janus/internal/stats"
	"github.com/headline-goat/janus/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		s.log.Error("health check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRowContext(r.Context(), "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	if err := row.Scan(&dbSize); err != nil {
		dbSize = -1
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

// AnalyzeOptions override the server's engine defaults for one request.
type AnalyzeOptions struct {
	KeyMetrics       []string `json:"keymetrics" validate:"omitempty,dive,required"`
	SampleSize       int      `json:"sample_size" validate:"omitempty,gte=100,lte=5000000"`
	Seed             uint64   `json:"seed"`
	CredibleLevel    float64  `json:"credible_level" validate:"omitempty,gt=0,lt=1"`
	BootstrapEnabled bool     `json:"bootstrap_enabled"`
	BootstrapSamples int      `json:"bootstrap_samples" validate:"omitempty,gte=1,lte=100000"`
}

// VariantInput is the aggregate form of one variant.
type VariantInput struct {
	Name        string  `json:"name" validate:"required"`
	Exposures   int     `json:"exposures" validate:"gte=0"`
	Conversions int     `json:"conversions" validate:"gte=0,ltefield=Exposures"`
	TotalValue  float64 `json:"total_value" validate:"gte=0"`
}

type AnalyzeRequest struct {
	Name     string         `json:"name"`
	Baseline string         `json:"baseline" validate:"required"`
	Variants []VariantInput `json:"variants" validate:"required,min=1,dive"`
	AnalyzeOptions
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	aggs := make([]experiment.Aggregate, len(req.Variants))
	for i, v := range req.Variants {
		aggs[i] = experiment.Aggregate{
			Name:        v.Name,
			Exposures:   v.Exposures,
			Conversions: v.Conversions,
			TotalValue:  v.TotalValue,
		}
	}

	report, err := s.evaluate(r.Context(), "json", nameOr(req.Name, "adhoc"), s.config(req.Baseline, req.AnalyzeOptions), nil, aggs)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleAnalyzeCSV evaluates an uploaded CSV. The multipart field "file"
// holds per-exposure rows, or summary rows when format=summary. Options come
// from form or query values.
func (s *Server) handleAnalyzeCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()

	baseline := r.FormValue("baseline")
	if baseline == "" {
		writeError(w, http.StatusBadRequest, "baseline is required")
		return
	}
	opts, err := s.parseOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg := s.config(baseline, opts)
	name := nameOr(r.FormValue("name"), "upload")

	var report *experiment.Report
	switch r.FormValue("format") {
	case "", "rows":
		rows, err := ingest.ReadRows(file, ingest.Columns{
			Alternative: r.FormValue("alternative_column"),
			Converted:   r.FormValue("converted_column"),
			Value:       r.FormValue("value_column"),
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		report, err = s.evaluate(r.Context(), "csv", name, cfg, rows, nil)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
	case "summary":
		summary, err := ingest.ReadSummary(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		report, err = s.evaluateSummary(r.Context(), "csv", name, cfg, summary)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "format must be rows or summary")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type experimentResponse struct {
	Name         string    `json:"name"`
	Baseline     string    `json:"baseline,omitempty"`
	Alternatives int       `json:"alternatives"`
	Periods      int       `json:"periods"`
	Exposures    int       `json:"exposures"`
	Conversions  int       `json:"conversions"`
	Value        float64   `json:"value"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	list, err := s.store.ListExperiments(r.Context())
	if err != nil {
		s.log.Error("failed to list experiments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list experiments")
		return
	}

	out := make([]experimentResponse, 0, len(list))
	for _, e := range list {
		out = append(out, experimentResponse{
			Name:         e.Name,
			Baseline:     e.Baseline,
			Alternatives: e.Alternatives,
			Periods:      e.Periods,
			Exposures:    e.Exposures,
			Conversions:  e.Conversions,
			Value:        e.Value,
			CreatedAt:    e.CreatedAt,
			UpdatedAt:    e.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleExperiment routes /api/experiments/<name>[/observations|/analysis].
func (s *Server) handleExperiment(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/experiments/"), "/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" || len(parts) > 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	name := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetExperiment(w, r, name)
		case http.MethodPut:
			s.handlePutExperiment(w, r, name)
		case http.MethodDelete:
			s.handleDeleteExperiment(w, r, name)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	switch {
	case parts[1] == "observations" && r.Method == http.MethodPost:
		s.handleRecordObservations(w, r, name)
	case parts[1] == "observations" && r.Method == http.MethodGet:
		s.handleGetObservations(w, r, name)
	case parts[1] == "analysis" && r.Method == http.MethodGet:
		s.handleAnalysis(w, r, name)
	case parts[1] == "observations" || parts[1] == "analysis":
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request, name string) {
	exp, err := s.store.GetExperiment(r.Context(), name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, experimentResponse{
		Name:      exp.Name,
		Baseline:  exp.Baseline,
		CreatedAt: exp.CreatedAt,
		UpdatedAt: exp.UpdatedAt,
	})
}

type putExperimentRequest struct {
	Baseline string `json:"baseline" validate:"required"`
}

func (s *Server) handlePutExperiment(w http.ResponseWriter, r *http.Request, name string) {
	var req putExperimentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exp, err := s.store.SaveExperiment(r.Context(), name, req.Baseline)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, experimentResponse{
		Name:      exp.Name,
		Baseline:  exp.Baseline,
		CreatedAt: exp.CreatedAt,
		UpdatedAt: exp.UpdatedAt,
	})
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request, name string) {
	if err := s.store.DeleteExperiment(r.Context(), name); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecordObservations accepts one summary row or an array of them.
func (s *Server) handleRecordObservations(w http.ResponseWriter, r *http.Request, name string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var rows []ingest.SummaryRow
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &rows)
	} else {
		var row ingest.SummaryRow
		err = json.Unmarshal(trimmed, &row)
		rows = append(rows, row)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusBadRequest, "no observations")
		return
	}

	obs := make([]store.Observation, len(rows))
	for i, row := range rows {
		if err := ingest.Validate(row); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("observation %d: %v", i, err))
			return
		}
		obs[i] = store.ObservationFromSummary(name, row)
	}

	n, err := s.store.ImportObservations(r.Context(), name, obs)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	observationsRecorded.Add(float64(n))
	s.log.Info("observations recorded", "experiment", name, "count", n)

	writeJSON(w, http.StatusCreated, map[string]int{"recorded": n})
}

func (s *Server) handleGetObservations(w http.ResponseWriter, r *http.Request, name string) {
	obs, err := s.store.GetObservations(r.Context(), name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, store.Summaries(obs))
}

// handleAnalysis evaluates the stored observations of an experiment. The
// baseline comes from the query or, failing that, from the experiment.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request, name string) {
	exp, err := s.store.GetExperiment(r.Context(), name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	baseline := nameOr(r.URL.Query().Get("baseline"), exp.Baseline)
	if baseline == "" {
		writeError(w, http.StatusBadRequest, "baseline is required")
		return
	}

	opts, err := s.parseOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	obs, err := s.store.GetObservations(r.Context(), name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	report, err := s.evaluateSummary(r.Context(), "store", name, s.config(baseline, opts), store.Summaries(obs))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// parseOptions reads analysis options from query or form values.
func (s *Server) parseOptions(r *http.Request) (AnalyzeOptions, error) {
	var opts AnalyzeOptions

	if m := r.FormValue("metrics"); m != "" {
		for _, name := range strings.Split(m, ",") {
			opts.KeyMetrics = append(opts.KeyMetrics, strings.TrimSpace(name))
		}
	}

	var err error
	if v := r.FormValue("sample_size"); v != "" {
		if opts.SampleSize, err = strconv.Atoi(v); err != nil {
			return opts, fmt.Errorf("invalid sample_size %q", v)
		}
	}
	if v := r.FormValue("seed"); v != "" {
		if opts.Seed, err = strconv.ParseUint(v, 10, 64); err != nil {
			return opts, fmt.Errorf("invalid seed %q", v)
		}
	}
	if v := r.FormValue("credible_level"); v != "" {
		if opts.CredibleLevel, err = strconv.ParseFloat(v, 64); err != nil {
			return opts, fmt.Errorf("invalid credible_level %q", v)
		}
	}
	if v := r.FormValue("bootstrap"); v != "" {
		if opts.BootstrapEnabled, err = strconv.ParseBool(v); err != nil {
			return opts, fmt.Errorf("invalid bootstrap %q", v)
		}
	}
	if v := r.FormValue("bootstrap_samples"); v != "" {
		if opts.BootstrapSamples, err = strconv.Atoi(v); err != nil {
			return opts, fmt.Errorf("invalid bootstrap_samples %q", v)
		}
	}

	if err := s.validate.Struct(opts); err != nil {
		return opts, err
	}
	return opts, nil
}

// config layers request options over the server defaults.
func (s *Server) config(baseline string, opts AnalyzeOptions) experiment.Config {
	cfg := s.defaults
	cfg.BaselineVariantName = baseline

	if len(opts.KeyMetrics) > 0 {
		cfg.KeyMetrics = make([]stats.Metric, len(opts.KeyMetrics))
		for i, m := range opts.KeyMetrics {
			cfg.KeyMetrics[i] = stats.Metric(m)
		}
	}
	if opts.SampleSize > 0 {
		cfg.SampleSize = opts.SampleSize
	}
	if opts.Seed != 0 {
		cfg.Seed = opts.Seed
	}
	if opts.CredibleLevel > 0 {
		cfg.CredibleLevel = opts.CredibleLevel
	}
	if opts.BootstrapEnabled {
		cfg.BootstrapEnabled = true
	}
	if opts.BootstrapSamples > 0 {
		cfg.BootstrapSamples = opts.BootstrapSamples
	}
	return cfg
}

// evaluateSummary runs summary rows: expanded to per-exposure rows when the
// bootstrap is on, totalled per alternative otherwise.
func (s *Server) evaluateSummary(ctx context.Context, source, name string, cfg experiment.Config, rows []ingest.SummaryRow) (*experiment.Report, error) {
	if cfg.BootstrapEnabled {
		expanded, err := ingest.ExpandSummary(rows)
		if err != nil {
			return nil, err
		}
		return s.evaluate(ctx, source, name, cfg, expanded, nil)
	}

	totals, err := ingest.Totals(rows)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, source, name, cfg, nil, totals)
}

// evaluate runs rows when given, aggregates otherwise.
func (s *Server) evaluate(ctx context.Context, source, name string, cfg experiment.Config, rows []experiment.Row, aggs []experiment.Aggregate) (*experiment.Report, error) {
	start := time.Now()

	report, err := func() (*experiment.Report, error) {
		exp, err := experiment.New(name, cfg, s.log)
		if err != nil {
			return nil, err
		}
		if rows != nil {
			return exp.Run(ctx, rows)
		}
		return exp.RunAggregates(ctx, aggs)
	}()

	result := "ok"
	if err != nil {
		result = "error"
	}
	analysesTotal.WithLabelValues(source, result).Inc()
	analysisDuration.Observe(time.Since(start).Seconds())

	return report, err
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, experiment.ErrValidation),
		errors.Is(err, experiment.ErrConfiguration),
		errors.Is(err, ingest.ErrFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.log.Error("analysis failed", "error", err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}
	s.log.Error("store operation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
