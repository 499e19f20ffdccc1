package domain

// PrimaryEvent is a recognized scenario trigger.
type PrimaryEvent string

const (
	EventFlood     PrimaryEvent = "flood"
	EventHeatwave  PrimaryEvent = "heatwave"
	EventDrought   PrimaryEvent = "drought"
	EventPollution PrimaryEvent = "pollution"
	EventCyclone   PrimaryEvent = "cyclone"
	EventNone      PrimaryEvent = "none"
)

// SecondaryImpact is a recognized knock-on effect of a scenario.
type SecondaryImpact string

const (
	ImpactTransportDisruption     SecondaryImpact = "transport_disruption"
	ImpactHospitalAccessReduction SecondaryImpact = "hospital_access_reduction"
	ImpactPowerOutage             SecondaryImpact = "power_outage"
	ImpactWaterShortage           SecondaryImpact = "water_shortage"
	ImpactFoodSupplyDisruption    SecondaryImpact = "food_supply_disruption"
)

// Severity grades a scenario's intensity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// Duration grades how long a scenario persists.
type Duration string

const (
	DurationShort     Duration = "short"
	DurationModerate  Duration = "moderate"
	DurationProlonged Duration = "prolonged"
)

// ExtractionConfidence grades how confidently signals were extracted from
// free text.
type ExtractionConfidence string

const (
	ExtractionLow    ExtractionConfidence = "low"
	ExtractionMedium ExtractionConfidence = "medium"
	ExtractionHigh   ExtractionConfidence = "high"
)

// ScenarioSignals is the closed structured description of a what-if
// scenario, derived deterministically from free text or a preset.
type ScenarioSignals struct {
	PrimaryEvents    []PrimaryEvent       `json:"primary_events"`
	Severity         Severity             `json:"severity"`
	Duration         Duration             `json:"duration"`
	SecondaryImpacts []SecondaryImpact    `json:"secondary_impacts"`
	Confidence       ExtractionConfidence `json:"confidence"`
}

// ActiveEvents returns the primary events excluding the "none" marker.
func (s ScenarioSignals) ActiveEvents() []PrimaryEvent {
	out := make([]PrimaryEvent, 0, len(s.PrimaryEvents))
	for _, e := range s.PrimaryEvents {
		if e != EventNone {
			out = append(out, e)
		}
	}
	return out
}

// HasImpact reports whether the given secondary impact was signaled.
func (s ScenarioSignals) HasImpact(i SecondaryImpact) bool {
	for _, have := range s.SecondaryImpacts {
		if have == i {
			return true
		}
	}
	return false
}

// Deltas are signed metric changes applied to a live baseline and then
// clamped. Hospital load is on the 0-100 percent scale.
type Deltas struct {
	AQIDelta          float64 `json:"aqi_delta"`
	TemperatureDelta  float64 `json:"temperature_delta"`
	HospitalLoadDelta float64 `json:"hospital_load_delta"`
	CropSupplyDelta   float64 `json:"crop_supply_delta"`
}
