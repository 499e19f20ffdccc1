package inference

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityscope/urbanrisk/internal/classify"
	"github.com/cityscope/urbanrisk/internal/domain"
)

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(classify.NewPrototypeModel(), opts...)
}

func acuteStressBag() domain.MetricBag {
	return domain.MetricBag{
		AQI:                    domain.Float64(180),
		TrafficDensity:         domain.Float64(2),
		Temperature:            domain.Float64(38),
		Rainfall:               domain.Float64(5),
		HospitalLoad:           domain.Float64(0.82),
		RespiratoryCases:       domain.Float64(450),
		CropSupplyIndex:        domain.Float64(58),
		FoodPriceIndex:         domain.Float64(135),
		SupplyDisruptionEvents: domain.Float64(3),
	}
}

func calmBag() domain.MetricBag {
	return domain.MetricBag{
		AQI:                    domain.Float64(60),
		TrafficDensity:         domain.Float64(0),
		Temperature:            domain.Float64(25),
		Rainfall:               domain.Float64(40),
		HospitalLoad:           domain.Float64(0.45),
		RespiratoryCases:       domain.Float64(80),
		CropSupplyIndex:        domain.Float64(88),
		FoodPriceIndex:         domain.Float64(95),
		SupplyDisruptionEvents: domain.Float64(0),
	}
}

func TestPredict_AcuteStressCascade(t *testing.T) {
	record, err := newTestEngine().Predict(context.Background(), acuteStressBag())
	require.NoError(t, err)

	assert.Equal(t, domain.RiskHigh, record.Environmental.RiskLevel)
	assert.GreaterOrEqual(t, record.Environmental.ProbHigh, 0.60)

	assert.Equal(t, domain.RiskHigh, record.Health.RiskLevel)
	assert.GreaterOrEqual(t, record.Health.ProbHigh, 0.60)

	assert.Equal(t, record.Environmental.ProbHigh, record.Cascade.EnvProbInjectedIntoHealth)
	assert.LessOrEqual(t, record.ResilienceScore, 50)

	for _, c := range []float64{
		record.Confidence.Environmental,
		record.Confidence.Health,
		record.Confidence.FoodSecurity,
		record.OverallConfidence,
	} {
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}

func TestPredict_CalmBaseline(t *testing.T) {
	record, err := newTestEngine().Predict(context.Background(), calmBag())
	require.NoError(t, err)

	assert.Equal(t, domain.RiskLow, record.Environmental.RiskLevel)
	assert.GreaterOrEqual(t, record.ResilienceScore, 60)
}

func TestPredict_AQIOverridePinsEnvironmental(t *testing.T) {
	bag := calmBag()
	bag.AQI = domain.Float64(350)

	record, err := newTestEngine().Predict(context.Background(), bag)
	require.NoError(t, err)

	assert.Equal(t, domain.RiskHigh, record.Environmental.RiskLevel)
	assert.Equal(t, domain.Distribution{Low: 0.02, Medium: 0.08, High: 0.90}, record.Environmental.Probabilities)
	assert.Equal(t, 0.99, record.Confidence.Environmental)
	assert.Equal(t, 0.90, record.Cascade.EnvProbInjectedIntoHealth)
}

func TestPredict_CropSupplyOverridePinsFood(t *testing.T) {
	bag := calmBag()
	bag.CropSupplyIndex = domain.Float64(20)

	record, err := newTestEngine().Predict(context.Background(), bag)
	require.NoError(t, err)

	assert.Equal(t, domain.RiskHigh, record.FoodSecurity.RiskLevel)
	assert.Equal(t, domain.Distribution{Low: 0.01, Medium: 0.04, High: 0.95}, record.FoodSecurity.Probabilities)
	assert.Equal(t, 0.99, record.Confidence.FoodSecurity)
}

func TestPredict_ResilienceFormula(t *testing.T) {
	for _, bag := range []domain.MetricBag{acuteStressBag(), calmBag(), {}} {
		record, err := newTestEngine().Predict(context.Background(), bag)
		require.NoError(t, err)

		weighted := 0.35*record.Environmental.ProbHigh +
			0.40*record.Health.ProbHigh +
			0.25*record.FoodSecurity.ProbHigh
		expected := int(math.Max(0, math.Min(100, math.Round(100*(1-weighted)))))
		assert.Equal(t, expected, record.ResilienceScore)
	}
}

func TestPredict_Deterministic(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	engine := newTestEngine(WithClock(clock))

	first, err := engine.Predict(context.Background(), acuteStressBag())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		record, err := engine.Predict(context.Background(), acuteStressBag())
		require.NoError(t, err)
		assert.Equal(t, first, record)
	}
}

func TestPredict_EmptyBagRecordsAssumptions(t *testing.T) {
	record, err := newTestEngine().Predict(context.Background(), domain.MetricBag{})
	require.NoError(t, err)
	assert.NotEmpty(t, record.Assumptions)
}

func TestPredict_CustomWeights(t *testing.T) {
	engine := newTestEngine(WithWeights(ResilienceWeights{Environmental: 1, Health: 0, Food: 0}))

	record, err := engine.Predict(context.Background(), calmBag())
	require.NoError(t, err)

	expected := int(math.Round(100 * (1 - record.Environmental.ProbHigh)))
	assert.Equal(t, expected, record.ResilienceScore)
}
