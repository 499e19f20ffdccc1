package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistribution_Validate(t *testing.T) {
	require.NoError(t, Distribution{Low: 0.2, Medium: 0.3, High: 0.5}.Validate())
	require.NoError(t, Distribution{Low: 0.2, Medium: 0.3, High: 0.505}.Validate(), "within tolerance")
	require.Error(t, Distribution{Low: 0.5, Medium: 0.5, High: 0.5}.Validate())
	require.Error(t, Distribution{Low: -0.1, Medium: 0.6, High: 0.5}.Validate())
}

func TestDistribution_ArgMaxTiesBreakHigh(t *testing.T) {
	assert.Equal(t, RiskHigh, Distribution{Low: 0.4, Medium: 0.2, High: 0.4}.ArgMax())
	assert.Equal(t, RiskMedium, Distribution{Low: 0.4, Medium: 0.4, High: 0.2}.ArgMax())
	assert.Equal(t, RiskLow, Distribution{Low: 0.8, Medium: 0.1, High: 0.1}.ArgMax())
}

func TestDistribution_EntropyAndMargin(t *testing.T) {
	uniform := Distribution{Low: 1.0 / 3, Medium: 1.0 / 3, High: 1.0 / 3}
	assert.InDelta(t, math.Log(3), uniform.Entropy(), 1e-9)
	assert.InDelta(t, 0.0, uniform.Margin(), 1e-9)

	certain := Distribution{Low: 1, Medium: 0, High: 0}
	assert.InDelta(t, 0.0, certain.Entropy(), 1e-9)
	assert.InDelta(t, 1.0, certain.Margin(), 1e-9)
}

func TestRiskLevel_RankAndParse(t *testing.T) {
	assert.Equal(t, 0, RiskLow.Rank())
	assert.Equal(t, 1, RiskMedium.Rank())
	assert.Equal(t, 2, RiskHigh.Rank())

	level, err := ParseRiskLevel("medium")
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, level)

	_, err = ParseRiskLevel("severe")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestScenarioSignals_Helpers(t *testing.T) {
	signals := ScenarioSignals{
		PrimaryEvents:    []PrimaryEvent{EventFlood, EventNone, EventHeatwave},
		SecondaryImpacts: []SecondaryImpact{ImpactTransportDisruption},
	}

	assert.Equal(t, []PrimaryEvent{EventFlood, EventHeatwave}, signals.ActiveEvents())
	assert.True(t, signals.HasImpact(ImpactTransportDisruption))
	assert.False(t, signals.HasImpact(ImpactPowerOutage))

	assert.Empty(t, ScenarioSignals{PrimaryEvents: []PrimaryEvent{EventNone}}.ActiveEvents())
}

func TestFreshnessOf_MonotoneInAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ages := []time.Duration{
		0, 30 * time.Minute, time.Hour, 5 * time.Hour,
		24 * time.Hour, 3 * 24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour,
	}
	order := map[Freshness]int{
		FreshnessLive: 0, FreshnessRecent: 1, FreshnessCached: 2, FreshnessEstimated: 3,
	}

	prev := -1
	for _, age := range ages {
		label := FreshnessOf(now.Add(-age), now)
		assert.GreaterOrEqual(t, order[label], prev, "freshness must not improve with age")
		prev = order[label]
	}

	assert.Equal(t, FreshnessEstimated, FreshnessOf(time.Time{}, now))
}

func TestFreshness_ConfidenceMap(t *testing.T) {
	assert.Equal(t, 0.95, FreshnessLive.Confidence())
	assert.Equal(t, 0.85, FreshnessRecent.Confidence())
	assert.Equal(t, 0.60, FreshnessCached.Confidence())
	assert.Equal(t, 0.35, FreshnessEstimated.Confidence())
	assert.Equal(t, 0.20, Freshness("bogus").Confidence())
}

func TestAgeString(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "Just now", AgeString(now.Add(-20*time.Second), now))
	assert.Equal(t, "5 min ago", AgeString(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3 hours ago", AgeString(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2 days ago", AgeString(now.Add(-49*time.Hour), now))
	assert.Equal(t, "Estimated", AgeString(time.Time{}, now))
	assert.Equal(t, "Estimated", AgeString(now.Add(-30*24*time.Hour), now))
}
