package http

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cityscope/urbanrisk/internal/domain"
	"github.com/cityscope/urbanrisk/internal/inference"
	"github.com/cityscope/urbanrisk/internal/metrics"
	"github.com/cityscope/urbanrisk/internal/policy"
	"github.com/cityscope/urbanrisk/internal/realtime"
	"github.com/cityscope/urbanrisk/internal/scenario"
	"github.com/cityscope/urbanrisk/internal/warehouse"
)

// Handlers carries the service dependencies for every endpoint.
type Handlers struct {
	engine   *inference.Engine
	policy   *policy.Engine
	manager  *realtime.Manager
	hub      *realtime.Hub
	source   *warehouse.Source
	locality string
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	requestID, _ := r.Context().Value(requestIDKey).(string)
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: requestID})
}

func statusFor(err error) int {
	if domain.IsValidation(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Health reports liveness and the subscriber count.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"subscribers": h.hub.Count(),
		"timestamp":   time.Now().UTC(),
	})
}

// NotFound is the JSON 404 handler.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
}

// Plausibility floors for stored observations. Readings below these are
// treated as bad data and replaced with conservative estimates.
const (
	minPlausibleHospitalLoad = 40.0
	fallbackHospitalLoad     = 55.0
	minPlausibleCropSupply   = 40.0
	fallbackCropSupply       = 60.0
)

// metricSnapshot is the per-source freshness view of a baseline. Each
// source carries its own freshness label; the overall label is the best
// of the three and the confidence is their average.
type metricSnapshot struct {
	metrics    domain.Baseline
	freshness  map[string]domain.Freshness
	sources    map[string]string
	timestamps map[string]string
	overall    domain.Freshness
	confidence float64
}

func snapshotBaseline(b domain.Baseline, now time.Time) metricSnapshot {
	envFresh := b.Freshness

	healthFresh := b.Freshness
	if b.HospitalLoadPct < minPlausibleHospitalLoad {
		b.HospitalLoadPct = fallbackHospitalLoad
		healthFresh = domain.FreshnessEstimated
	}

	agriFresh := b.Freshness
	if b.CropSupply < minPlausibleCropSupply {
		b.CropSupply = fallbackCropSupply
		agriFresh = domain.FreshnessEstimated
	}

	ageOrEstimated := func(f domain.Freshness) string {
		if f == domain.FreshnessEstimated {
			return "Estimated"
		}
		return domain.AgeString(b.ObservedAt, now)
	}
	tieredSource := func(f domain.Freshness, live, fallback string) string {
		if f.Live() {
			return live
		}
		return fallback
	}

	return metricSnapshot{
		metrics: b,
		freshness: map[string]domain.Freshness{
			"air_quality": envFresh,
			"respiratory": healthFresh,
			"agriculture": agriFresh,
		},
		sources: map[string]string{
			"air_quality": tieredSource(envFresh, "sensor", "historical_estimate"),
			"respiratory": tieredSource(healthFresh, "hospital_api", "model_estimate"),
			"agriculture": tieredSource(agriFresh, "market_data", "seasonal_estimate"),
		},
		timestamps: map[string]string{
			"air_quality": ageOrEstimated(envFresh),
			"respiratory": ageOrEstimated(healthFresh),
			"agriculture": ageOrEstimated(agriFresh),
		},
		overall: bestFreshness(envFresh, healthFresh, agriFresh),
		confidence: math.Round((envFresh.Confidence()+
			healthFresh.Confidence()+
			agriFresh.Confidence())/3*100) / 100,
	}
}

func bestFreshness(labels ...domain.Freshness) domain.Freshness {
	best := domain.FreshnessEstimated
	rank := map[domain.Freshness]int{
		domain.FreshnessEstimated: 0,
		domain.FreshnessCached:    1,
		domain.FreshnessRecent:    2,
		domain.FreshnessLive:      3,
	}
	for _, f := range labels {
		if rank[f] > rank[best] {
			best = f
		}
	}
	return best
}

// CurrentMetrics returns the locality baseline with per-source freshness
// labeling.
func (h *Handlers) CurrentMetrics(w http.ResponseWriter, r *http.Request) {
	locality := r.URL.Query().Get("locality")
	if locality == "" {
		locality = h.locality
	}
	baseline := h.source.Baseline(r.Context(), locality)

	now := time.Now()
	snap := snapshotBaseline(*baseline, now)
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":         snap.metrics,
		"freshness":       snap.freshness,
		"sources":         snap.sources,
		"timestamps":      snap.timestamps,
		"data_freshness":  snap.overall,
		"data_confidence": snap.confidence,
		"last_updated":    domain.AgeString(baseline.ObservedAt, now),
	})
}

type assessResponse struct {
	*domain.PredictionRecord
	Explanations []string `json:"explanations"`
}

type riskResponse struct {
	Locality      string           `json:"locality"`
	DataFreshness domain.Freshness `json:"data_freshness"`
	*domain.PredictionRecord
	Explanations []string `json:"explanations"`
}

// RiskAssessment scores the stored baseline for a locality through the
// full cascade.
func (h *Handlers) RiskAssessment(w http.ResponseWriter, r *http.Request) {
	locality := r.URL.Query().Get("locality")
	if locality == "" {
		locality = h.locality
	}
	baseline := h.source.Baseline(r.Context(), locality)
	bag := baseline.MetricBag()

	start := time.Now()
	record, err := h.engine.Predict(r.Context(), bag)
	if err != nil {
		metrics.InferenceTotal.WithLabelValues("error").Inc()
		writeError(w, r, statusFor(err), err)
		return
	}
	metrics.InferenceTotal.WithLabelValues("ok").Inc()
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, riskResponse{
		Locality:         locality,
		DataFreshness:    baseline.Freshness,
		PredictionRecord: record,
		Explanations:     inference.Explain(record, bag),
	})
}

// Assess scores a caller-supplied metric bag through the full cascade.
func (h *Handlers) Assess(w http.ResponseWriter, r *http.Request) {
	var bag domain.MetricBag
	if err := json.NewDecoder(r.Body).Decode(&bag); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	record, err := h.engine.Predict(r.Context(), bag)
	if err != nil {
		metrics.InferenceTotal.WithLabelValues("error").Inc()
		writeError(w, r, statusFor(err), err)
		return
	}
	metrics.InferenceTotal.WithLabelValues("ok").Inc()
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, assessResponse{
		PredictionRecord: record,
		Explanations:     inference.Explain(record, bag),
	})
}

// Presets lists the fixed scenario preset table.
func (h *Handlers) Presets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"presets": scenario.Presets()})
}

type simulateResponse struct {
	*scenario.Result
	BaselineRisk  *domain.PredictionRecord `json:"baseline_risk"`
	SimulatedRisk *domain.PredictionRecord `json:"simulated_risk"`
	Explanations  []string                 `json:"explanations"`
}

// Simulate applies scenario deltas to the live baseline and rescores the
// simulated state against it.
func (h *Handlers) Simulate(w http.ResponseWriter, r *http.Request) {
	var req scenario.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	baseline := h.source.Baseline(r.Context(), h.locality)
	result, err := scenario.Simulate(*baseline, req)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	baselineRisk, err := h.engine.Predict(r.Context(), baseline.MetricBag())
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	simBag := result.SimulatedBag()
	simulatedRisk, err := h.engine.Predict(r.Context(), simBag)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	result.Validation.MLExecuted = true

	writeJSON(w, http.StatusOK, simulateResponse{
		Result:        result,
		BaselineRisk:  baselineRisk,
		SimulatedRisk: simulatedRisk,
		Explanations:  inference.Explain(simulatedRisk, simBag),
	})
}

type policyRequest struct {
	Metrics     *domain.MetricBag  `json:"metrics,omitempty"`
	Adjustments policy.Adjustments `json:"policy_adjustments"`
}

// Policy evaluates an intervention counterfactual. When no metrics are
// supplied the live baseline is used.
func (h *Handlers) Policy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	var bag domain.MetricBag
	if req.Metrics != nil {
		bag = *req.Metrics
	} else {
		bag = h.source.Baseline(r.Context(), h.locality).MetricBag()
	}

	cmp, err := h.policy.RunScenario(r.Context(), bag, req.Adjustments)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

type cascadeRequest struct {
	TriggerSystem   string  `json:"trigger_system"`
	TriggerSeverity float64 `json:"trigger_severity"`
}

// Cascade runs staged severity propagation over the dependency graph.
func (h *Handlers) Cascade(w http.ResponseWriter, r *http.Request) {
	var req cascadeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	analysis, err := inference.AnalyzeCascade(req.TriggerSystem, req.TriggerSeverity)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
