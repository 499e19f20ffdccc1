package inference

import (
	"fmt"

	"github.com/cityscope/urbanrisk/internal/domain"
	"github.com/cityscope/urbanrisk/internal/preprocess"
)

// maxExplanations caps the causal explanation list on responses.
const maxExplanations = 5

// Explain derives human-readable causal explanations for a prediction
// from the preprocessed inputs and the resulting record. Resilience-level
// warnings come first so they survive the cap.
func Explain(record *domain.PredictionRecord, bag domain.MetricBag) []string {
	env, _ := preprocess.Environmental(bag)
	health, _ := preprocess.Health(bag, domain.Float64(record.Cascade.EnvProbInjectedIntoHealth))
	food, _ := preprocess.Food(bag)

	var out []string

	if record.ResilienceScore < 40 {
		out = append(out, "Critical resilience - immediate intervention needed")
	} else if record.ResilienceScore < 60 {
		out = append(out, "Moderate resilience - monitoring required")
	}

	if env.AQI > 300 {
		out = append(out, fmt.Sprintf("Hazardous air quality (AQI %.0f) beyond model support", env.AQI))
	} else if env.AQI > 150 {
		out = append(out, fmt.Sprintf("Unhealthy air quality (AQI %.0f)", env.AQI))
	}
	if env.TrafficDensity >= 2 {
		out = append(out, "High traffic density compounding emissions")
	}
	if env.Temperature >= 38 {
		out = append(out, fmt.Sprintf("Extreme heat (%.0f°C)", env.Temperature))
	}

	if health.HospitalLoad > 0.85 {
		out = append(out, fmt.Sprintf("Critical hospital bed occupancy (%.0f%%)", health.HospitalLoad*100))
	} else if health.HospitalLoad > 0.70 {
		out = append(out, fmt.Sprintf("High hospital bed occupancy (%.0f%%)", health.HospitalLoad*100))
	}
	if health.RespiratoryCases > 500 {
		out = append(out, fmt.Sprintf("High respiratory caseload (%.0f cases)", health.RespiratoryCases))
	}
	if record.Cascade.EnvProbInjectedIntoHealth > 0.5 {
		out = append(out, "Environmental stress cascading into health risk")
	}

	if food.CropSupplyIndex < 40 {
		out = append(out, fmt.Sprintf("Low crop supply index (%.0f)", food.CropSupplyIndex))
	} else if food.CropSupplyIndex < 60 {
		out = append(out, fmt.Sprintf("Moderate crop supply levels (%.0f)", food.CropSupplyIndex))
	}
	if food.FoodPriceIndex > 130 {
		out = append(out, fmt.Sprintf("Elevated food prices (index %.0f)", food.FoodPriceIndex))
	}
	if food.SupplyDisruptions >= 3 {
		out = append(out, fmt.Sprintf("Multiple supply disruption events (%.0f)", food.SupplyDisruptions))
	}

	if len(out) == 0 {
		out = append(out, "All domain indicators within normal ranges")
	}
	if len(out) > maxExplanations {
		out = out[:maxExplanations]
	}
	return out
}
