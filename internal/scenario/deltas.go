package scenario

import (
	"fmt"
	"math"
	"strings"

	"github.com/cityscope/urbanrisk/internal/domain"
)

// Base impact rows per primary event: the canonical physics-style deltas
// at moderate severity and duration. These values are the testable
// contract; changing them changes the product.
type baseImpact struct {
	aqi      float64
	temp     float64
	hospital float64
	food     float64
}

var baseImpacts = map[domain.PrimaryEvent]baseImpact{
	domain.EventFlood:     {aqi: -10, temp: -4, hospital: 12, food: -8},  // washout, injuries, logistics
	domain.EventHeatwave:  {aqi: 25, temp: 5, hospital: 15, food: -10},   // ozone, heat stroke, crop loss
	domain.EventPollution: {aqi: 100, temp: 1, hospital: 10, food: -2},   // respiratory stress
	domain.EventDrought:   {aqi: 15, temp: 3, hospital: 8, food: -25},    // dust, scarcity, production loss
	domain.EventCyclone:   {aqi: -15, temp: -3, hospital: 20, food: -15}, // strong washout, trauma
}

// Secondary impact add-ons, applied once each, unscaled.
var secondaryImpactDeltas = map[domain.SecondaryImpact]struct{ hospital, food float64 }{
	domain.ImpactTransportDisruption:     {hospital: 15, food: -5},
	domain.ImpactHospitalAccessReduction: {hospital: 25, food: 0},
	domain.ImpactFoodSupplyDisruption:    {hospital: 0, food: -10},
}

var severityMultipliers = map[domain.Severity]float64{
	domain.SeverityLow:      0.5,
	domain.SeverityModerate: 1.0,
	domain.SeverityHigh:     1.5,
}

// Duration scales cumulative (health/food) impacts only.
var durationMultipliers = map[domain.Duration]float64{
	domain.DurationShort:     0.8,
	domain.DurationModerate:  1.0,
	domain.DurationProlonged: 1.5,
}

// heatwaveHighTempBonus boosts the temperature spike of a high-severity
// heatwave.
const heatwaveHighTempBonus = 1.2

// Application bounds. Hospital load is percent on this interface; the
// crop supply floor of 10 represents the survival threshold.
var applyBounds = struct {
	aqi, temperature, hospitalLoad, cropSupply [2]float64
}{
	aqi:          [2]float64{0, 500},
	temperature:  [2]float64{-10, 55},
	hospitalLoad: [2]float64{0, 100},
	cropSupply:   [2]float64{10, 100},
}

// tempFactor is the severity-only temperature rule per event: floods cool
// proportionally to severity, a high-severity heatwave spikes 1.2x, other
// events contribute their base row unscaled.
func tempFactor(event domain.PrimaryEvent, severity domain.Severity) float64 {
	switch {
	case event == domain.EventFlood:
		return severityMultipliers[severity]
	case event == domain.EventHeatwave && severity == domain.SeverityHigh:
		return heatwaveHighTempBonus
	default:
		return 1.0
	}
}

// ComputeDeltas converts scenario signals into compositional metric
// deltas: per-event base rows scaled by severity (and duration for the
// cumulative components), summed across all detected events, plus fixed
// secondary-impact add-ons. Returns the deltas and a display description.
func ComputeDeltas(signals domain.ScenarioSignals) (domain.Deltas, string) {
	var d domain.Deltas

	sevMult := severityMultipliers[signals.Severity]
	if sevMult == 0 {
		sevMult = 1.0
	}
	durMult := durationMultipliers[signals.Duration]
	if durMult == 0 {
		durMult = 1.0
	}

	events := signals.ActiveEvents()
	for _, event := range events {
		base, ok := baseImpacts[event]
		if !ok {
			continue
		}
		d.AQIDelta += base.aqi * sevMult
		d.TemperatureDelta += base.temp * tempFactor(event, signals.Severity)
		d.HospitalLoadDelta += base.hospital * sevMult * durMult
		d.CropSupplyDelta += base.food * sevMult * durMult
	}

	for _, impact := range signals.SecondaryImpacts {
		add, ok := secondaryImpactDeltas[impact]
		if !ok {
			continue
		}
		d.HospitalLoadDelta += add.hospital
		d.CropSupplyDelta += add.food
	}

	return d, describe(signals, events)
}

// describe builds the human-readable scenario description.
func describe(signals domain.ScenarioSignals, events []domain.PrimaryEvent) string {
	var parts []string
	if signals.Severity != domain.SeverityModerate {
		parts = append(parts, title(string(signals.Severity)))
	}
	if signals.Duration != domain.DurationModerate {
		parts = append(parts, title(string(signals.Duration)))
	}

	if len(events) > 0 {
		names := make([]string, len(events))
		for i, e := range events {
			names[i] = title(string(e))
		}
		parts = append(parts, strings.Join(names, ", "))
	} else {
		parts = append(parts, "Scenario")
	}

	if len(signals.SecondaryImpacts) > 0 {
		names := make([]string, len(signals.SecondaryImpacts))
		for i, imp := range signals.SecondaryImpacts {
			names[i] = title(strings.ReplaceAll(string(imp), "_", " "))
		}
		parts = append(parts, fmt.Sprintf("causing %s", strings.Join(names, ", ")))
	}
	return strings.Join(parts, " ")
}

func title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// FieldChange reports one field's baseline, delta and clamped final value.
type FieldChange struct {
	Baseline float64 `json:"baseline"`
	Delta    float64 `json:"delta"`
	Final    float64 `json:"final"`
}

// Simulated is the post-application metric state with its per-field
// breakdown.
type Simulated struct {
	AQI           float64                `json:"aqi"`
	Temperature   float64                `json:"temperature"`
	HospitalLoad  float64                `json:"hospital_load"`
	CropSupply    float64                `json:"crop_supply"`
	DeltasApplied map[string]FieldChange `json:"deltas_applied"`
}

func clampRange(v float64, b [2]float64) float64 {
	return math.Max(b[0], math.Min(b[1], v))
}

// ApplyDeltas adds deltas to a baseline and clamps each field into its
// documented bounds.
func ApplyDeltas(baseline domain.Baseline, d domain.Deltas) Simulated {
	sim := Simulated{
		AQI:          clampRange(baseline.AQI+d.AQIDelta, applyBounds.aqi),
		Temperature:  clampRange(baseline.Temperature+d.TemperatureDelta, applyBounds.temperature),
		HospitalLoad: clampRange(baseline.HospitalLoadPct+d.HospitalLoadDelta, applyBounds.hospitalLoad),
		CropSupply:   clampRange(baseline.CropSupply+d.CropSupplyDelta, applyBounds.cropSupply),
	}
	sim.DeltasApplied = map[string]FieldChange{
		"aqi":           {Baseline: baseline.AQI, Delta: d.AQIDelta, Final: sim.AQI},
		"temperature":   {Baseline: baseline.Temperature, Delta: d.TemperatureDelta, Final: sim.Temperature},
		"hospital_load": {Baseline: baseline.HospitalLoadPct, Delta: d.HospitalLoadDelta, Final: sim.HospitalLoad},
		"crop_supply":   {Baseline: baseline.CropSupply, Delta: d.CropSupplyDelta, Final: sim.CropSupply},
	}
	return sim
}
