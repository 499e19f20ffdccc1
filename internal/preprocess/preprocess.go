// Package preprocess turns permissive metric bags into fully-populated,
// bounded feature vectors. It is a total function: missing or unusable
// values fall back to domain defaults, units are normalized, everything
// is clipped into range, and every substitution is recorded as an
// assumption the caller surfaces alongside the prediction.
package preprocess

import (
	"fmt"
	"math"

	"github.com/cityscope/urbanrisk/internal/domain"
)

// Domain defaults. These mirror the values the classifiers were
// calibrated around; a fully-empty bag lands near the medium prototype.
const (
	DefaultAQI              = 100.0
	DefaultTrafficDensity   = 1.0
	DefaultTemperature      = 30.0
	DefaultEnvRainfall      = 20.0
	DefaultFoodRainfall     = 40.0
	DefaultHospitalLoad     = 0.65
	DefaultRespiratoryCases = 200.0
	DefaultEnvRiskProb      = 0.5
	DefaultCropSupply       = 75.0
	DefaultFoodPrice        = 100.0
	DefaultDisruptions      = 1.0
)

// Valid ranges per field.
var (
	rangeAQI         = bounds{0, 500}
	rangeTraffic     = bounds{0, 2}
	rangeTemperature = bounds{0, 50}
	rangeRainfall    = bounds{0, 200}
	rangeLoad        = bounds{0, 1}
	rangeCases       = bounds{0, 10000}
	rangeProb        = bounds{0, 1}
	rangeCropSupply  = bounds{0, 100}
	rangeFoodPrice   = bounds{50, 200}
	rangeDisruptions = bounds{0, 10}
)

type bounds struct{ min, max float64 }

func (b bounds) clip(v float64) float64 {
	return math.Max(b.min, math.Min(b.max, v))
}

// EnvFeatures is the closed environmental feature record. Field order is
// the classifier contract: aqi, traffic_density, temperature, rainfall.
type EnvFeatures struct {
	AQI            float64
	TrafficDensity float64
	Temperature    float64
	Rainfall       float64
}

// Vector returns the features in classifier order.
func (f EnvFeatures) Vector() []float64 {
	return []float64{f.AQI, f.TrafficDensity, f.Temperature, f.Rainfall}
}

// HealthFeatures is the closed health feature record. Order: aqi,
// hospital_load, respiratory_cases, temperature, environmental_risk_prob.
type HealthFeatures struct {
	AQI              float64
	HospitalLoad     float64
	RespiratoryCases float64
	Temperature      float64
	EnvRiskProb      float64
}

// Vector returns the features in classifier order.
func (f HealthFeatures) Vector() []float64 {
	return []float64{f.AQI, f.HospitalLoad, f.RespiratoryCases, f.Temperature, f.EnvRiskProb}
}

// FoodFeatures is the closed food-security feature record. Order:
// crop_supply_index, food_price_index, rainfall, temperature,
// supply_disruption_events.
type FoodFeatures struct {
	CropSupplyIndex   float64
	FoodPriceIndex    float64
	Rainfall          float64
	Temperature       float64
	SupplyDisruptions float64
}

// Vector returns the features in classifier order.
func (f FoodFeatures) Vector() []float64 {
	return []float64{f.CropSupplyIndex, f.FoodPriceIndex, f.Rainfall, f.Temperature, f.SupplyDisruptions}
}

// field resolves one optional input against its default and range,
// appending assumptions for substitutions and clips.
func field(name string, raw *float64, def float64, b bounds, assumptions *[]string) float64 {
	if raw == nil || math.IsNaN(*raw) || math.IsInf(*raw, 0) {
		*assumptions = append(*assumptions, fmt.Sprintf("%s missing, using default %g", name, def))
		return def
	}
	v := b.clip(*raw)
	if v != *raw {
		*assumptions = append(*assumptions, fmt.Sprintf("%s clipped from %g to %g", name, *raw, v))
	}
	return v
}

// temperature resolves the shared temperature field with Kelvin
// auto-detection: anything above 200 is treated as Kelvin and converted.
func temperature(raw *float64, assumptions *[]string) float64 {
	if raw == nil || math.IsNaN(*raw) || math.IsInf(*raw, 0) {
		*assumptions = append(*assumptions, fmt.Sprintf("temperature missing, using default %g", DefaultTemperature))
		return DefaultTemperature
	}
	t := *raw
	if t > 200 {
		t -= 273.15
		*assumptions = append(*assumptions, fmt.Sprintf("temperature converted from Kelvin to Celsius: %.1f", t))
	}
	clipped := rangeTemperature.clip(t)
	if clipped != t {
		*assumptions = append(*assumptions, fmt.Sprintf("temperature clipped from %g to %g", t, clipped))
	}
	return clipped
}

// hospitalLoad resolves hospital load with percent auto-detection: values
// above 1 are treated as a 0-100 percentage and divided by 100.
func hospitalLoad(raw *float64, assumptions *[]string) float64 {
	if raw == nil || math.IsNaN(*raw) || math.IsInf(*raw, 0) {
		*assumptions = append(*assumptions, fmt.Sprintf("hospital_load missing, using default %g", DefaultHospitalLoad))
		return DefaultHospitalLoad
	}
	v := *raw
	if v > 1 {
		v /= 100
		*assumptions = append(*assumptions, fmt.Sprintf("hospital_load converted from percentage: %.2f", v))
	}
	clipped := rangeLoad.clip(v)
	if clipped != v {
		*assumptions = append(*assumptions, fmt.Sprintf("hospital_load clipped from %g to %g", v, clipped))
	}
	return clipped
}

// Environmental preprocesses the environmental slice of a metric bag.
func Environmental(bag domain.MetricBag) (EnvFeatures, []string) {
	var assumptions []string
	f := EnvFeatures{
		AQI:            field("aqi", bag.AQI, DefaultAQI, rangeAQI, &assumptions),
		TrafficDensity: math.Round(field("traffic_density", bag.TrafficDensity, DefaultTrafficDensity, rangeTraffic, &assumptions)),
		Temperature:    temperature(bag.Temperature, &assumptions),
		Rainfall:       field("rainfall", bag.Rainfall, DefaultEnvRainfall, rangeRainfall, &assumptions),
	}
	return f, assumptions
}

// Health preprocesses the health slice of a metric bag. When envRiskProb
// is non-nil it is the cascaded input and overrides anything the caller
// supplied for environmental_risk_prob.
func Health(bag domain.MetricBag, envRiskProb *float64) (HealthFeatures, []string) {
	var assumptions []string
	f := HealthFeatures{
		AQI:              field("aqi", bag.AQI, DefaultAQI, rangeAQI, &assumptions),
		HospitalLoad:     hospitalLoad(bag.HospitalLoad, &assumptions),
		RespiratoryCases: math.Round(field("respiratory_cases", bag.RespiratoryCases, DefaultRespiratoryCases, rangeCases, &assumptions)),
		Temperature:      temperature(bag.Temperature, &assumptions),
	}
	if envRiskProb != nil {
		f.EnvRiskProb = rangeProb.clip(*envRiskProb)
	} else {
		f.EnvRiskProb = field("environmental_risk_prob", bag.EnvironmentalRiskProb, DefaultEnvRiskProb, rangeProb, &assumptions)
	}
	return f, assumptions
}

// Food preprocesses the food-security slice of a metric bag.
func Food(bag domain.MetricBag) (FoodFeatures, []string) {
	var assumptions []string
	f := FoodFeatures{
		CropSupplyIndex:   field("crop_supply_index", bag.CropSupplyIndex, DefaultCropSupply, rangeCropSupply, &assumptions),
		FoodPriceIndex:    field("food_price_index", bag.FoodPriceIndex, DefaultFoodPrice, rangeFoodPrice, &assumptions),
		Rainfall:          field("rainfall", bag.Rainfall, DefaultFoodRainfall, rangeRainfall, &assumptions),
		Temperature:       temperature(bag.Temperature, &assumptions),
		SupplyDisruptions: math.Round(field("supply_disruption_events", bag.SupplyDisruptionEvents, DefaultDisruptions, rangeDisruptions, &assumptions)),
	}
	return f, assumptions
}

// All preprocesses every domain slice of a metric bag and merges the
// assumption trails. The health env-risk feature keeps its default here;
// the cascade overwrites it during inference.
func All(bag domain.MetricBag) (EnvFeatures, HealthFeatures, FoodFeatures, []string) {
	env, a1 := Environmental(bag)
	health, a2 := Health(bag, nil)
	food, a3 := Food(bag)

	assumptions := make([]string, 0, len(a1)+len(a2)+len(a3))
	assumptions = append(assumptions, a1...)
	assumptions = append(assumptions, a2...)
	assumptions = append(assumptions, a3...)
	return env, health, food, assumptions
}
