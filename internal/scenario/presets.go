package scenario

import "github.com/cityscope/urbanrisk/internal/domain"

// Preset is a named canonical scenario with display metadata and the
// metric modifications shown to clients.
type Preset struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Icon          string             `json:"icon"`
	Description   string             `json:"description"`
	Modifications map[string]float64 `json:"modifications"`
}

// presets is the fixed preset table.
var presets = []Preset{
	{
		ID:          "heatwave",
		Name:        "Heatwave",
		Icon:        "🔥",
		Description: "Simulate extreme heat conditions increasing respiratory risk and energy demand.",
		Modifications: map[string]float64{
			"temperature":       45.0,
			"aqi":               180.0,
			"respiratory_cases": 800.0,
		},
	},
	{
		ID:          "drought",
		Name:        "Drought",
		Icon:        "🏜️",
		Description: "Simulate water scarcity impacting agriculture and food prices.",
		Modifications: map[string]float64{
			"crop_supply_index": 30.0,
			"price_volatility":  0.60,
		},
	},
	{
		ID:          "flood",
		Name:        "Flood",
		Icon:        "🌊",
		Description: "Simulate heavy flooding straining hospitals and food logistics.",
		Modifications: map[string]float64{
			"rainfall":      180.0,
			"hospital_load": 0.80,
		},
	},
	{
		ID:          "crisis",
		Name:        "Urban Crisis",
		Icon:        "⚠️",
		Description: "Compound failure event: High pollution + Supply chain breakdown.",
		Modifications: map[string]float64{
			"aqi":               250.0,
			"hospital_load":     0.95,
			"crop_supply_index": 20.0,
		},
	},
}

// Presets returns the fixed preset table.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// primaryEventForPreset reports whether a preset id is itself a primary
// event name.
func primaryEventForPreset(id string) (domain.PrimaryEvent, bool) {
	switch domain.PrimaryEvent(id) {
	case domain.EventFlood, domain.EventHeatwave, domain.EventDrought,
		domain.EventPollution, domain.EventCyclone:
		return domain.PrimaryEvent(id), true
	}
	return domain.EventNone, false
}

// SignalsForPreset maps a preset id to its canonical scenario signals.
// Presets run as short, moderate scenarios; the compound "crisis" preset
// raises severity to high and adds the transport and hospital-access
// secondary impacts.
func SignalsForPreset(id string) (domain.ScenarioSignals, bool) {
	event, isEvent := primaryEventForPreset(id)
	known := isEvent || id == "crisis"
	if !known {
		return domain.ScenarioSignals{}, false
	}

	signals := domain.ScenarioSignals{
		PrimaryEvents:    []domain.PrimaryEvent{event},
		Severity:         domain.SeverityModerate,
		Duration:         domain.DurationShort,
		SecondaryImpacts: []domain.SecondaryImpact{},
		Confidence:       domain.ExtractionHigh,
	}
	if id == "crisis" {
		signals.Severity = domain.SeverityHigh
		signals.SecondaryImpacts = []domain.SecondaryImpact{
			domain.ImpactTransportDisruption,
			domain.ImpactHospitalAccessReduction,
		}
	}
	return signals, true
}
