// Package policy evaluates counterfactual interventions: a validated set
// of policy adjustments is applied to a metric bag, both states are scored
// through the same inference engine, and the report carries the per-domain
// probability deltas.
package policy

import (
	"fmt"
	"math"
	"sort"

	"github.com/cityscope/urbanrisk/internal/domain"
	"github.com/cityscope/urbanrisk/internal/preprocess"
)

// Known adjustment keys.
const (
	TrafficReduction      = "traffic_reduction"
	AQICap                = "aqi_cap"
	EmissionControl       = "emission_control"
	SurgeCapacity         = "surge_capacity"
	EmergencyStaffing     = "emergency_staffing"
	Infrastructure        = "infrastructure"
	ImportStabilization   = "import_stabilization"
	SubsidyRate           = "subsidy_rate"
	SupplyChainResilience = "supply_chain_resilience"
)

// Fraction-valued adjustments accept [0,1]. aqi_cap is an absolute ceiling
// on the AQI scale.
var knownAdjustments = map[string][2]float64{
	TrafficReduction:      {0, 1},
	AQICap:                {0, 500},
	EmissionControl:       {0, 1},
	SurgeCapacity:         {0, 1},
	EmergencyStaffing:     {0, 1},
	Infrastructure:        {0, 1},
	ImportStabilization:   {0, 1},
	SubsidyRate:           {0, 1},
	SupplyChainResilience: {0, 1},
}

// Post-intervention hospital load floor and ceiling. Capacity measures
// never model an empty or fully-drained hospital system.
const (
	hospitalLoadFloor   = 0.40
	hospitalLoadCeiling = 0.95
)

const priceFloor = 80.0

// Adjustments maps policy keys to their magnitudes.
type Adjustments map[string]float64

// Validate rejects unknown keys and out-of-range magnitudes.
func (a Adjustments) Validate() error {
	if len(a) == 0 {
		return domain.NewValidationError("adjustments", "at least one policy adjustment required")
	}
	for key, v := range a {
		bounds, ok := knownAdjustments[key]
		if !ok {
			return domain.NewValidationError(key, "unknown policy adjustment")
		}
		if v < bounds[0] || v > bounds[1] {
			return domain.NewValidationError(key,
				fmt.Sprintf("value %g outside [%g, %g]", v, bounds[0], bounds[1]))
		}
	}
	return nil
}

// Keys returns the adjustment keys in stable order.
func (a Adjustments) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MetricEffect records one metric's value before and after intervention.
type MetricEffect struct {
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// resolved is the concrete metric state interventions operate on. Hospital
// load is on the 0-1 ratio scale here.
type resolved struct {
	aqi         float64
	traffic     float64
	temperature float64
	rainfall    float64
	load        float64
	cases       float64
	crop        float64
	price       float64
	disruptions float64
}

func resolve(bag domain.MetricBag) resolved {
	env, _ := preprocess.Environmental(bag)
	health, _ := preprocess.Health(bag, nil)
	food, _ := preprocess.Food(bag)
	return resolved{
		aqi:         env.AQI,
		traffic:     env.TrafficDensity,
		temperature: env.Temperature,
		rainfall:    env.Rainfall,
		load:        health.HospitalLoad,
		cases:       health.RespiratoryCases,
		crop:        food.CropSupplyIndex,
		price:       food.FoodPriceIndex,
		disruptions: food.SupplyDisruptions,
	}
}

func (r resolved) bag() domain.MetricBag {
	return domain.MetricBag{
		AQI:                    domain.Float64(r.aqi),
		TrafficDensity:         domain.Float64(r.traffic),
		Temperature:            domain.Float64(r.temperature),
		Rainfall:               domain.Float64(r.rainfall),
		HospitalLoad:           domain.Float64(r.load),
		RespiratoryCases:       domain.Float64(r.cases),
		CropSupplyIndex:        domain.Float64(r.crop),
		FoodPriceIndex:         domain.Float64(r.price),
		SupplyDisruptionEvents: domain.Float64(r.disruptions),
	}
}

func clampLoad(v float64) float64 {
	return math.Max(hospitalLoadFloor, math.Min(hospitalLoadCeiling, v))
}

// Apply validates the adjustments and applies each one to the resolved
// metric state. Returns the post-intervention bag and per-metric effects
// for every metric an intervention touched.
func Apply(bag domain.MetricBag, adj Adjustments) (domain.MetricBag, map[string]MetricEffect, error) {
	if err := adj.Validate(); err != nil {
		return domain.MetricBag{}, nil, err
	}

	before := resolve(bag)
	after := before

	for _, key := range adj.Keys() {
		v := adj[key]
		switch key {
		case TrafficReduction:
			switch {
			case v >= 0.5 && after.traffic > 1:
				after.traffic -= 2
			case v >= 0.25 && after.traffic > 0:
				after.traffic -= 1
			}
			after.traffic = math.Max(0, after.traffic)
			after.aqi *= 1 - 0.3*v
		case AQICap:
			after.aqi = math.Min(after.aqi, v)
		case EmissionControl:
			after.aqi *= 1 - v
		case SurgeCapacity:
			after.load = clampLoad(after.load / (1 + v))
		case EmergencyStaffing:
			after.load = clampLoad(after.load * (1 - 0.5*v))
		case Infrastructure:
			after.load *= 1 - 0.4*v
			after.cases *= 1 - 0.3*v
		case ImportStabilization:
			after.crop = math.Min(100, after.crop*(1+v))
		case SubsidyRate:
			after.price = math.Max(priceFloor, after.price*(1-v))
		case SupplyChainResilience:
			after.disruptions *= 1 - 0.6*v
			after.price *= 1 - 0.2*v
		}
	}

	effects := map[string]MetricEffect{}
	record := func(name string, b, a float64) {
		if b != a {
			effects[name] = MetricEffect{Before: round2(b), After: round2(a)}
		}
	}
	record("aqi", before.aqi, after.aqi)
	record("traffic_density", before.traffic, after.traffic)
	record("hospital_load", before.load, after.load)
	record("respiratory_cases", before.cases, after.cases)
	record("crop_supply_index", before.crop, after.crop)
	record("food_price_index", before.price, after.price)
	record("supply_disruption_events", before.disruptions, after.disruptions)

	return after.bag(), effects, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
