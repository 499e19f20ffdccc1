package scenario

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cityscope/urbanrisk/internal/domain"
)

// DeltaSource tags where the applied deltas came from.
type DeltaSource string

const (
	SourceCustom  DeltaSource = "custom"
	SourcePrompt  DeltaSource = "prompt_inference"
	SourcePreset  DeltaSource = "preset"
	SourceDefault DeltaSource = "default"
)

// Request selects the delta input mode. Priority: explicit custom deltas,
// then a free-text prompt, then a named preset, else an all-zero default.
type Request struct {
	PresetID     string         `json:"preset_id,omitempty"`
	CustomPrompt string         `json:"custom_prompt,omitempty"`
	CustomDeltas *domain.Deltas `json:"custom_deltas,omitempty"`
}

// DeltaReport carries the applied deltas plus their provenance.
type DeltaReport struct {
	domain.Deltas
	Source              DeltaSource             `json:"source"`
	InferredScenario    string                  `json:"inferred_scenario,omitempty"`
	Signals             *domain.ScenarioSignals `json:"signals,omitempty"`
	InferenceConfidence float64                 `json:"inference_confidence"`
	Description         string                  `json:"description"`
}

// Validation carries the simulation validity flags. MLExecuted is set by
// the orchestrator once the simulated bag has been re-scored.
type Validation struct {
	UsedLiveData  bool `json:"used_live_data"`
	FallbackUsed  bool `json:"fallback_used"`
	DeltasApplied bool `json:"deltas_applied"`
	MLExecuted    bool `json:"ml_executed"`
}

// Result is the outcome of a delta simulation before re-scoring.
type Result struct {
	Baseline   domain.Baseline `json:"baseline"`
	Deltas     DeltaReport     `json:"deltas"`
	Simulated  Simulated       `json:"simulated"`
	Validation Validation      `json:"validation"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Simulate resolves the request's delta source, computes the deltas and
// applies them to the baseline. Pure and deterministic apart from the
// result timestamp.
func Simulate(baseline domain.Baseline, req Request) (*Result, error) {
	var report DeltaReport

	switch {
	case req.CustomDeltas != nil:
		report = DeltaReport{
			Deltas:              *req.CustomDeltas,
			Source:              SourceCustom,
			InferenceConfidence: 1.0,
			Description:         "Custom deltas",
		}

	case req.CustomPrompt != "":
		signals := ExtractSignals(req.CustomPrompt)
		deltas, description := ComputeDeltas(signals)
		confidence := 0.5
		if signals.Confidence == domain.ExtractionHigh {
			confidence = 0.9
		}
		report = DeltaReport{
			Deltas:              deltas,
			Source:              SourcePrompt,
			InferredScenario:    string(signals.PrimaryEvents[0]),
			Signals:             &signals,
			InferenceConfidence: confidence,
			Description:         description,
		}

	case req.PresetID != "":
		signals, ok := SignalsForPreset(req.PresetID)
		if !ok {
			return nil, domain.NewValidationError("preset_id", "unknown preset "+req.PresetID)
		}
		deltas, description := ComputeDeltas(signals)
		report = DeltaReport{
			Deltas:              deltas,
			Source:              SourcePreset,
			InferredScenario:    req.PresetID,
			Signals:             &signals,
			InferenceConfidence: 1.0,
			Description:         description,
		}

	default:
		signals := domain.ScenarioSignals{
			PrimaryEvents: []domain.PrimaryEvent{domain.EventNone},
			Severity:      domain.SeverityModerate,
			Duration:      domain.DurationModerate,
			Confidence:    domain.ExtractionHigh,
		}
		deltas, description := ComputeDeltas(signals)
		report = DeltaReport{
			Deltas:      deltas,
			Source:      SourceDefault,
			Signals:     &signals,
			Description: description,
		}
	}

	simulated := ApplyDeltas(baseline, report.Deltas)

	log.Debug().
		Str("source", string(report.Source)).
		Str("scenario", report.InferredScenario).
		Float64("hospital_delta", report.HospitalLoadDelta).
		Msg("delta simulation applied")

	return &Result{
		Baseline:  baseline,
		Deltas:    report,
		Simulated: simulated,
		Validation: Validation{
			UsedLiveData:  baseline.Freshness.Live(),
			FallbackUsed:  !baseline.Freshness.Live(),
			DeltasApplied: true,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// SimulatedBag converts the simulated state into a metric bag for
// re-scoring. Hospital load stays on the percent scale; the preprocessor
// re-detects it.
func (r *Result) SimulatedBag() domain.MetricBag {
	return domain.MetricBag{
		AQI:              domain.Float64(r.Simulated.AQI),
		Temperature:      domain.Float64(r.Simulated.Temperature),
		HospitalLoad:     domain.Float64(r.Simulated.HospitalLoad),
		CropSupplyIndex:  domain.Float64(r.Simulated.CropSupply),
		FoodPriceIndex:   domain.Float64(r.Baseline.FoodPriceIndex),
		TrafficDensity:   domain.Float64(r.Baseline.TrafficDensity),
		RespiratoryCases: domain.Float64(r.Baseline.RespiratoryCases),
		Rainfall:         domain.Float64(r.Baseline.Rainfall),
	}
}
