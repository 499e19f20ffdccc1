package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityscope/urbanrisk/internal/classify"
	"github.com/cityscope/urbanrisk/internal/domain"
	"github.com/cityscope/urbanrisk/internal/inference"
)

// fakeClock advances only when told to, making the rate gate and slot
// aging deterministic.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager(clock *fakeClock) *Manager {
	engine := inference.NewEngine(classify.NewPrototypeModel(), inference.WithClock(clock.Now))
	return NewManager(engine, WithClock(clock.Now))
}

func mustApply(t *testing.T, m *Manager, u Update) {
	t.Helper()
	changed, err := m.ApplyUpdate(u)
	require.NoError(t, err)
	require.True(t, changed)
}

func TestApplyUpdate_RoutesByDomain(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)

	mustApply(t, m, Update{Domain: DomainEnvironmental, AQI: domain.Float64(250)})
	mustApply(t, m, Update{Domain: DomainHealth, HospitalLoad: domain.Float64(0.9)})
	mustApply(t, m, Update{Domain: DomainFood, SupplyIndex: domain.Float64(40)})

	bag, _ := m.MergedState()
	assert.Equal(t, 250.0, *bag.AQI)
	assert.Equal(t, 0.9, *bag.HospitalLoad)
	assert.Equal(t, 40.0, *bag.CropSupplyIndex)
}

func TestApplyUpdate_UnknownDomain(t *testing.T) {
	m := newTestManager(newFakeClock())
	_, err := m.ApplyUpdate(Update{Domain: "traffic"})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestApplyUpdate_NilFieldsKeepPreviousValues(t *testing.T) {
	m := newTestManager(newFakeClock())

	mustApply(t, m, Update{Domain: DomainEnvironmental, AQI: domain.Float64(300)})
	mustApply(t, m, Update{Domain: DomainEnvironmental, Temperature: domain.Float64(40)})

	bag, _ := m.MergedState()
	assert.Equal(t, 300.0, *bag.AQI)
	assert.Equal(t, 40.0, *bag.Temperature)
}

func TestApplyUpdate_EmptyUpdateDoesNotRefreshSlot(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)

	mustApply(t, m, Update{Domain: DomainEnvironmental, AQI: domain.Float64(120)})
	mustApply(t, m, Update{Domain: DomainHealth, HospitalLoad: domain.Float64(0.6)})
	mustApply(t, m, Update{Domain: DomainFood, SupplyIndex: domain.Float64(75)})

	clock.Advance(90 * time.Second)
	_, conf := m.MergedState()
	require.Equal(t, 0.8, conf)

	// A field-less update merges nothing and must not restamp the slot.
	changed, err := m.ApplyUpdate(Update{Domain: DomainEnvironmental})
	require.NoError(t, err)
	assert.False(t, changed)

	_, conf = m.MergedState()
	assert.Equal(t, 0.8, conf, "confidence tier unchanged by an empty update")
}

func TestMergedState_DefaultsBeforeFirstUpdate(t *testing.T) {
	m := newTestManager(newFakeClock())

	bag, conf := m.MergedState()
	assert.Equal(t, 100.0, *bag.AQI)
	assert.Equal(t, 25.0, *bag.Temperature)
	assert.Equal(t, 0.5, *bag.HospitalLoad)
	assert.Equal(t, 80.0, *bag.CropSupplyIndex)
	assert.Equal(t, 0.5, conf, "empty slots carry neutral confidence")
}

func TestMergedState_ConfidenceDecaysWithSlotAge(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)

	mustApply(t, m, Update{Domain: DomainEnvironmental, AQI: domain.Float64(100)})
	mustApply(t, m, Update{Domain: DomainHealth, HospitalLoad: domain.Float64(0.5)})
	mustApply(t, m, Update{Domain: DomainFood, SupplyIndex: domain.Float64(80)})

	_, conf := m.MergedState()
	assert.Equal(t, 1.0, conf)

	clock.Advance(90 * time.Second)
	_, conf = m.MergedState()
	assert.Equal(t, 0.8, conf)

	clock.Advance(120 * time.Second)
	_, conf = m.MergedState()
	assert.Equal(t, 0.5, conf)

	clock.Advance(10 * time.Minute)
	_, conf = m.MergedState()
	assert.Equal(t, 0.3, conf)
}

func TestRunInference_RateGate(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	ctx := context.Background()

	executed := 0
	for i := 0; i < 10; i++ {
		_, rateLimited, err := m.RunInference(ctx)
		require.NoError(t, err)
		if !rateLimited {
			executed++
		}
		clock.Advance(100 * time.Millisecond)
	}

	// 10 attempts over ~1s: the 500ms refill admits at most 3 runs
	// (initial token plus two refills), so at most 2 in any 1s window.
	assert.LessOrEqual(t, executed, 3)
	assert.GreaterOrEqual(t, executed, 2)
	assert.Len(t, m.History(), executed)
}

func TestRunInference_OverallConfidenceTracksDataFreshness(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	ctx := context.Background()

	// Empty slots carry neutral 0.5 confidence; the record must report
	// that, not the classifier's own confidence blend.
	record, limited, err := m.RunInference(ctx)
	require.NoError(t, err)
	require.False(t, limited)
	assert.Equal(t, 0.5, record.OverallConfidence)

	mustApply(t, m, Update{Domain: DomainEnvironmental, AQI: domain.Float64(110)})
	mustApply(t, m, Update{Domain: DomainHealth, HospitalLoad: domain.Float64(0.55)})
	mustApply(t, m, Update{Domain: DomainFood, SupplyIndex: domain.Float64(78)})

	clock.Advance(time.Second)
	record, limited, err = m.RunInference(ctx)
	require.NoError(t, err)
	require.False(t, limited)
	assert.Equal(t, 1.0, record.OverallConfidence, "all slots fresh")

	history := m.History()
	assert.Equal(t, 1.0, history[len(history)-1].OverallConfidence)
}

func TestRunInference_RateLimitedReturnsCachedRecord(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	ctx := context.Background()

	first, rateLimited, err := m.RunInference(ctx)
	require.NoError(t, err)
	require.False(t, rateLimited)
	require.NotNil(t, first)

	cached, rateLimited, err := m.RunInference(ctx)
	require.NoError(t, err)
	assert.True(t, rateLimited)
	require.NotNil(t, cached)
	assert.Equal(t, first.Timestamp, cached.Timestamp)
}

func TestHistory_BoundedAtWindowSize(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	ctx := context.Background()

	for i := 0; i < WindowSize+15; i++ {
		_, rateLimited, err := m.RunInference(ctx)
		require.NoError(t, err)
		require.False(t, rateLimited)
		clock.Advance(time.Second)
	}

	history := m.History()
	assert.Len(t, history, WindowSize)

	// Most recent record survives the overflow.
	latest := m.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, history[len(history)-1].Timestamp, latest.Timestamp)
}

func TestHistory_WindowSizeOption(t *testing.T) {
	clock := newFakeClock()
	engine := inference.NewEngine(classify.NewPrototypeModel(), inference.WithClock(clock.Now))
	m := NewManager(engine, WithClock(clock.Now), WithWindowSize(5))
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, limited, err := m.RunInference(ctx)
		require.NoError(t, err)
		require.False(t, limited)
		clock.Advance(time.Second)
	}
	assert.Len(t, m.History(), 5)
}

func TestTrends_InsufficientData(t *testing.T) {
	m := newTestManager(newFakeClock())
	summary := m.Trends()
	assert.Equal(t, "insufficient_data", summary.Status)
	assert.Zero(t, summary.SampleCount)
}

func TestTrends_DetectsRisingRisk(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	ctx := context.Background()

	// Ten calm readings, then ten acutely polluted ones.
	mustApply(t, m, Update{Domain: DomainEnvironmental, AQI: domain.Float64(40)})
	for i := 0; i < 10; i++ {
		_, limited, err := m.RunInference(ctx)
		require.NoError(t, err)
		require.False(t, limited)
		clock.Advance(time.Second)
	}
	mustApply(t, m, Update{Domain: DomainEnvironmental, AQI: domain.Float64(280), Temperature: domain.Float64(42)})
	for i := 0; i < 10; i++ {
		_, limited, err := m.RunInference(ctx)
		require.NoError(t, err)
		require.False(t, limited)
		clock.Advance(time.Second)
	}

	summary := m.Trends()
	assert.Equal(t, "ok", summary.Status)
	assert.Equal(t, TrendIncreasing, summary.Environmental.Direction)
	assert.Greater(t, summary.Environmental.Change, 0.05)
	assert.InDelta(t, m.Latest().Environmental.ProbHigh,
		summary.Environmental.Current, 0.0005,
		"current tracks the steady recent window at three decimals")
	assert.Equal(t, TrendDecreasing, summary.Resilience.Direction)
	assert.Less(t, summary.Resilience.Change, -5.0)
}

func TestTrends_StableUnderConstantInput(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, limited, err := m.RunInference(ctx)
		require.NoError(t, err)
		require.False(t, limited)
		clock.Advance(time.Second)
	}

	summary := m.Trends()
	assert.Equal(t, TrendStable, summary.Environmental.Direction)
	assert.Equal(t, TrendStable, summary.Resilience.Direction)
}
