// Package domain holds the core value types shared across the risk
// inference pipeline: risk levels, probability distributions, metric bags,
// prediction records and freshness labels.
package domain

import (
	"fmt"
	"math"
	"time"
)

// RiskLevel is the ordered three-class risk label.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank returns the ordinal position of the level (low=0, medium=1, high=2).
func (r RiskLevel) Rank() int {
	switch r {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 0
	}
}

// ParseRiskLevel validates a risk level string.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh:
		return RiskLevel(s), nil
	}
	return "", NewValidationError("risk_level", fmt.Sprintf("unknown risk level %q", s))
}

// DistributionTolerance is the allowed deviation of a probability vector
// from summing to exactly 1.
const DistributionTolerance = 0.01

// Distribution is a three-class probability vector over risk levels.
type Distribution struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// Sum returns the total mass of the vector.
func (d Distribution) Sum() float64 {
	return d.Low + d.Medium + d.High
}

// Validate checks non-negativity and sum-to-one within tolerance.
func (d Distribution) Validate() error {
	if d.Low < 0 || d.Medium < 0 || d.High < 0 {
		return NewValidationError("distribution", "negative probability")
	}
	if math.Abs(d.Sum()-1.0) > DistributionTolerance {
		return NewValidationError("distribution", fmt.Sprintf("probabilities sum to %.4f", d.Sum()))
	}
	return nil
}

// ArgMax returns the risk level with the largest probability. Ties break
// toward the higher level, matching the pessimistic labeling convention.
func (d Distribution) ArgMax() RiskLevel {
	level, best := RiskLow, d.Low
	if d.Medium >= best {
		level, best = RiskMedium, d.Medium
	}
	if d.High >= best {
		level = RiskHigh
	}
	return level
}

// Entropy returns the Shannon entropy of the vector in nats.
func (d Distribution) Entropy() float64 {
	h := 0.0
	for _, p := range []float64{d.Low, d.Medium, d.High} {
		if p > 1e-10 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// Margin returns the gap between the top two class probabilities.
func (d Distribution) Margin() float64 {
	ps := []float64{d.Low, d.Medium, d.High}
	first, second := 0.0, 0.0
	for _, p := range ps {
		if p > first {
			first, second = p, first
		} else if p > second {
			second = p
		}
	}
	return first - second
}

// MetricBag is the permissive external input shape. Every field is
// optional; the preprocessor substitutes defaults and records assumptions.
type MetricBag struct {
	AQI                    *float64 `json:"aqi,omitempty"`
	TrafficDensity         *float64 `json:"traffic_density,omitempty"`
	Temperature            *float64 `json:"temperature,omitempty"`
	Rainfall               *float64 `json:"rainfall,omitempty"`
	Humidity               *float64 `json:"humidity,omitempty"`
	HospitalLoad           *float64 `json:"hospital_load,omitempty"`
	RespiratoryCases       *float64 `json:"respiratory_cases,omitempty"`
	EnvironmentalRiskProb  *float64 `json:"environmental_risk_prob,omitempty"`
	CropSupplyIndex        *float64 `json:"crop_supply_index,omitempty"`
	FoodPriceIndex         *float64 `json:"food_price_index,omitempty"`
	PriceVolatility        *float64 `json:"price_volatility,omitempty"`
	SupplyDisruptionEvents *float64 `json:"supply_disruption_events,omitempty"`
}

// Float64 is a literal helper for optional metric fields.
func Float64(v float64) *float64 { return &v }

// DomainRisk is the scored outcome for one risk domain.
type DomainRisk struct {
	RiskLevel     RiskLevel    `json:"risk_level"`
	ProbHigh      float64      `json:"probability_of_high"`
	Probabilities Distribution `json:"probabilities"`
}

// ConfidenceSet holds per-domain confidence scores in [0,1].
type ConfidenceSet struct {
	Environmental float64 `json:"environmental"`
	Health        float64 `json:"health"`
	FoodSecurity  float64 `json:"food_security"`
}

// CascadeInfo records the directed propagation applied during inference.
type CascadeInfo struct {
	EnvProbInjectedIntoHealth float64 `json:"env_prob_injected_into_health"`
	Description               string  `json:"description"`
}

// PredictionRecord is an immutable, timestamped inference result.
type PredictionRecord struct {
	Timestamp           time.Time     `json:"timestamp"`
	Environmental       DomainRisk    `json:"environmental"`
	Health              DomainRisk    `json:"health"`
	FoodSecurity        DomainRisk    `json:"food_security"`
	ResilienceScore     int           `json:"resilience_score"`
	Confidence          ConfidenceSet `json:"confidence"`
	OverallConfidence   float64       `json:"overall_confidence"`
	InferenceDurationMS float64       `json:"inference_duration_ms"`
	Cascade             CascadeInfo   `json:"cascade_info"`
	Assumptions         []string      `json:"assumptions,omitempty"`
}

// Baseline is a fully-populated per-locality snapshot read across the
// warehouse boundary. HospitalLoadPct is on the 0-100 scale used by the
// scenario interface; the preprocessor re-detects the ratio scale.
type Baseline struct {
	Locality         string    `json:"locality"`
	AQI              float64   `json:"aqi"`
	Temperature      float64   `json:"temperature"`
	HospitalLoadPct  float64   `json:"hospital_load"`
	CropSupply       float64   `json:"crop_supply"`
	FoodPriceIndex   float64   `json:"food_price_index"`
	TrafficDensity   float64   `json:"traffic_density"`
	RespiratoryCases float64   `json:"respiratory_cases"`
	Rainfall         float64   `json:"rainfall"`
	ObservedAt       time.Time `json:"observed_at"`
	Freshness        Freshness `json:"data_freshness"`
}

// MetricBag converts the baseline to the permissive input shape consumed
// by the inference pipeline.
func (b Baseline) MetricBag() MetricBag {
	return MetricBag{
		AQI:              Float64(b.AQI),
		Temperature:      Float64(b.Temperature),
		Rainfall:         Float64(b.Rainfall),
		TrafficDensity:   Float64(b.TrafficDensity),
		HospitalLoad:     Float64(b.HospitalLoadPct),
		RespiratoryCases: Float64(b.RespiratoryCases),
		CropSupplyIndex:  Float64(b.CropSupply),
		FoodPriceIndex:   Float64(b.FoodPriceIndex),
	}
}
