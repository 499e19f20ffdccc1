package preprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityscope/urbanrisk/internal/domain"
)

func TestEnvironmental_EmptyBagUsesDefaults(t *testing.T) {
	f, assumptions := Environmental(domain.MetricBag{})

	assert.Equal(t, DefaultAQI, f.AQI)
	assert.Equal(t, DefaultTrafficDensity, f.TrafficDensity)
	assert.Equal(t, DefaultTemperature, f.Temperature)
	assert.Equal(t, DefaultEnvRainfall, f.Rainfall)
	assert.Len(t, assumptions, 4, "every substitution should be recorded")
}

func TestTemperature_KelvinAutoDetection(t *testing.T) {
	f, assumptions := Environmental(domain.MetricBag{
		Temperature: domain.Float64(303.15),
	})

	assert.InDelta(t, 30.0, f.Temperature, 1e-9)

	found := false
	for _, a := range assumptions {
		if strings.Contains(a, "Kelvin") {
			found = true
		}
	}
	assert.True(t, found, "Kelvin conversion should be recorded as an assumption")
}

func TestHospitalLoad_PercentAutoDetection(t *testing.T) {
	f, _ := Health(domain.MetricBag{
		HospitalLoad: domain.Float64(85),
	}, nil)

	assert.InDelta(t, 0.85, f.HospitalLoad, 1e-9)
}

func TestHospitalLoad_RatioPassesThrough(t *testing.T) {
	f, assumptions := Health(domain.MetricBag{
		HospitalLoad: domain.Float64(0.72),
	}, nil)

	assert.InDelta(t, 0.72, f.HospitalLoad, 1e-9)
	for _, a := range assumptions {
		assert.NotContains(t, a, "hospital_load converted")
	}
}

func TestFields_ClippedIntoRange(t *testing.T) {
	f, assumptions := Environmental(domain.MetricBag{
		AQI:            domain.Float64(900),
		TrafficDensity: domain.Float64(-3),
		Temperature:    domain.Float64(120),
		Rainfall:       domain.Float64(500),
	})

	assert.Equal(t, 500.0, f.AQI)
	assert.Equal(t, 0.0, f.TrafficDensity)
	assert.Equal(t, 50.0, f.Temperature)
	assert.Equal(t, 200.0, f.Rainfall)
	assert.Len(t, assumptions, 4)
}

func TestFood_PriceFloorAndDisruptionRounding(t *testing.T) {
	f, _ := Food(domain.MetricBag{
		FoodPriceIndex:         domain.Float64(20),
		SupplyDisruptionEvents: domain.Float64(2.6),
	})

	assert.Equal(t, 50.0, f.FoodPriceIndex)
	assert.Equal(t, 3.0, f.SupplyDisruptions)
}

func TestHealth_CascadedProbOverridesCallerValue(t *testing.T) {
	f, _ := Health(domain.MetricBag{
		EnvironmentalRiskProb: domain.Float64(0.1),
	}, domain.Float64(0.83))

	assert.InDelta(t, 0.83, f.EnvRiskProb, 1e-9)
}

func TestAll_MergesAssumptionTrails(t *testing.T) {
	_, _, _, assumptions := All(domain.MetricBag{})
	require.NotEmpty(t, assumptions)

	// Empty bag: 4 env + 5 health + 5 food substitutions.
	assert.Len(t, assumptions, 14)
}

func TestVectors_FixedFeatureOrder(t *testing.T) {
	env := EnvFeatures{AQI: 1, TrafficDensity: 2, Temperature: 3, Rainfall: 4}
	assert.Equal(t, []float64{1, 2, 3, 4}, env.Vector())

	health := HealthFeatures{AQI: 1, HospitalLoad: 2, RespiratoryCases: 3, Temperature: 4, EnvRiskProb: 5}
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, health.Vector())

	food := FoodFeatures{CropSupplyIndex: 1, FoodPriceIndex: 2, Rainfall: 3, Temperature: 4, SupplyDisruptions: 5}
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, food.Vector())
}
