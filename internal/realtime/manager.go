// Package realtime maintains the live metric state: per-domain ingest
// slots with staleness-weighted confidence, a rate-gated inference path, a
// bounded prediction history, and trend summaries over that history.
package realtime

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/cityscope/urbanrisk/internal/domain"
	"github.com/cityscope/urbanrisk/internal/inference"
)

// WindowSize is the default bound on the in-memory prediction history.
const WindowSize = 60

// Default ingest rate gate: one inference per 500ms, so at most two
// full inferences are admitted in any one-second span.
const defaultInferenceRate = 2.0

// Defaults used for slots that have never received an update.
const (
	defaultAQI             = 100.0
	defaultTemperature     = 25.0
	defaultHumidity        = 60.0
	defaultHospitalLoad    = 0.5
	defaultRespiratory     = 100.0
	defaultPriceVolatility = 0.1
	defaultSupplyIndex     = 80.0
)

// Slot staleness tiers and their confidence weights.
const (
	freshWindow  = 60 * time.Second
	recentWindow = 120 * time.Second
	staleWindow  = 300 * time.Second

	freshConfidence   = 1.0
	recentConfidence  = 0.8
	staleConfidence   = 0.5
	expiredConfidence = 0.3
	emptyConfidence   = 0.5
)

// Domain names accepted on the ingest path.
const (
	DomainEnvironmental = "environmental"
	DomainHealth        = "health"
	DomainFood          = "food"
)

type envSlot struct {
	AQI         float64
	Temperature float64
	Humidity    float64
}

type healthSlot struct {
	HospitalLoad     float64
	RespiratoryCases float64
}

type foodSlot struct {
	PriceVolatility float64
	SupplyIndex     float64
}

// Update is one ingest message. Fields outside the named domain are
// ignored; nil fields leave the previous slot value in place.
type Update struct {
	Domain           string   `json:"domain"`
	AQI              *float64 `json:"aqi,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	Humidity         *float64 `json:"humidity,omitempty"`
	HospitalLoad     *float64 `json:"hospital_load,omitempty"`
	RespiratoryCases *float64 `json:"respiratory_cases,omitempty"`
	PriceVolatility  *float64 `json:"price_volatility,omitempty"`
	SupplyIndex      *float64 `json:"supply_index,omitempty"`
}

// TrendDirection labels a metric's recent movement.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// Trend compares the recent window of a series against the one before it.
// Current is the recent-window mean, Change the shift against the prior
// window.
type Trend struct {
	Direction TrendDirection `json:"direction"`
	Current   float64        `json:"current"`
	Change    float64        `json:"change"`
}

// TrendSummary reports per-domain risk trends plus the resilience trend.
// Status is "ok" once enough history exists, "insufficient_data" before.
type TrendSummary struct {
	Status        string `json:"status"`
	Environmental Trend  `json:"environmental,omitempty"`
	Health        Trend  `json:"health,omitempty"`
	FoodSecurity  Trend  `json:"food_security,omitempty"`
	Resilience    Trend  `json:"resilience,omitempty"`
	SampleCount   int    `json:"sample_count"`
}

const (
	trendWindow        = 5
	trendLookback      = 15
	trendBand          = 0.05
	resilienceBand     = 5.0
	trendMinSamples    = 5
	statusOK           = "ok"
	statusInsufficient = "insufficient_data"
)

// Manager owns the live metric slots and the prediction window. Safe for
// concurrent use.
type Manager struct {
	engine     *inference.Engine
	gate       *rate.Limiter
	clock      func() time.Time
	windowSize int
	staleAfter time.Duration

	mu       sync.RWMutex
	env      envSlot
	health   healthSlot
	food     foodSlot
	envAt    time.Time
	healthAt time.Time
	foodAt   time.Time
	history  []domain.PredictionRecord
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the clock used for slot aging and rate gating.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithWindowSize overrides the prediction history bound.
func WithWindowSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.windowSize = n
		}
	}
}

// WithStaleThreshold overrides the slot age past which confidence drops
// to the expired tier.
func WithStaleThreshold(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.staleAfter = d
		}
	}
}

// WithInferenceRate overrides the ingest rate gate, in inferences per
// second.
func WithInferenceRate(perSecond float64) Option {
	return func(m *Manager) {
		if perSecond > 0 {
			m.gate = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// NewManager builds a realtime manager with empty slots.
func NewManager(engine *inference.Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:     engine,
		gate:       rate.NewLimiter(rate.Limit(defaultInferenceRate), 1),
		clock:      time.Now,
		windowSize: WindowSize,
		staleAfter: staleWindow,
		env:        envSlot{AQI: defaultAQI, Temperature: defaultTemperature, Humidity: defaultHumidity},
		health:     healthSlot{HospitalLoad: defaultHospitalLoad, RespiratoryCases: defaultRespiratory},
		food:       foodSlot{PriceVolatility: defaultPriceVolatility, SupplyIndex: defaultSupplyIndex},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ApplyUpdate merges an ingest message into its domain slot and reports
// whether any field was merged. The slot's update time is stamped only
// when a field landed, so empty updates cannot refresh confidence.
func (m *Manager) ApplyUpdate(u Update) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed bool
	var stamp *time.Time
	switch u.Domain {
	case DomainEnvironmental:
		changed = setIf(&m.env.AQI, u.AQI)
		changed = setIf(&m.env.Temperature, u.Temperature) || changed
		changed = setIf(&m.env.Humidity, u.Humidity) || changed
		stamp = &m.envAt
	case DomainHealth:
		changed = setIf(&m.health.HospitalLoad, u.HospitalLoad)
		changed = setIf(&m.health.RespiratoryCases, u.RespiratoryCases) || changed
		stamp = &m.healthAt
	case DomainFood:
		changed = setIf(&m.food.PriceVolatility, u.PriceVolatility)
		changed = setIf(&m.food.SupplyIndex, u.SupplyIndex) || changed
		stamp = &m.foodAt
	default:
		return false, domain.NewValidationError("domain", fmt.Sprintf("unknown domain %q", u.Domain))
	}
	if changed {
		*stamp = m.clock()
	}
	return changed, nil
}

func setIf(dst *float64, src *float64) bool {
	if src == nil {
		return false
	}
	*dst = *src
	return true
}

// MergedState snapshots the current slots as a metric bag and reports the
// average slot confidence given each slot's age. The supply index feeds
// crop supply directly; price volatility is mapped onto the 100-based
// price index.
func (m *Manager) MergedState() (domain.MetricBag, float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mergedLocked()
}

func (m *Manager) mergedLocked() (domain.MetricBag, float64) {
	now := m.clock()
	bag := domain.MetricBag{
		AQI:              domain.Float64(m.env.AQI),
		Temperature:      domain.Float64(m.env.Temperature),
		Humidity:         domain.Float64(m.env.Humidity),
		HospitalLoad:     domain.Float64(m.health.HospitalLoad),
		RespiratoryCases: domain.Float64(m.health.RespiratoryCases),
		PriceVolatility:  domain.Float64(m.food.PriceVolatility),
		CropSupplyIndex:  domain.Float64(m.food.SupplyIndex),
		FoodPriceIndex:   domain.Float64(100 * (1 + m.food.PriceVolatility)),
	}
	conf := (m.slotConfidence(m.envAt, now) +
		m.slotConfidence(m.healthAt, now) +
		m.slotConfidence(m.foodAt, now)) / 3
	return bag, math.Round(conf*100) / 100
}

func (m *Manager) slotConfidence(updatedAt, now time.Time) float64 {
	if updatedAt.IsZero() {
		return emptyConfidence
	}
	age := now.Sub(updatedAt)
	switch {
	case age < freshWindow:
		return freshConfidence
	case age < recentWindow:
		return recentConfidence
	case age < m.staleAfter:
		return staleConfidence
	default:
		return expiredConfidence
	}
}

// RunInference scores the merged state if the rate gate admits it. When
// the gate rejects, the latest record is returned with rateLimited true so
// callers can serve the cached prediction. The record's overall confidence
// is the merged state's data-freshness confidence, not the classifier
// blend: a stale slot caps how much the prediction can be trusted.
func (m *Manager) RunInference(ctx context.Context) (*domain.PredictionRecord, bool, error) {
	if !m.gate.AllowN(m.clock(), 1) {
		log.Debug().Msg("inference rate gate rejected request")
		return m.Latest(), true, nil
	}

	bag, dataConf := m.MergedState()
	record, err := m.engine.Predict(ctx, bag)
	if err != nil {
		return nil, false, err
	}
	record.OverallConfidence = dataConf

	m.mu.Lock()
	m.history = append(m.history, *record)
	if len(m.history) > m.windowSize {
		m.history = m.history[len(m.history)-m.windowSize:]
	}
	m.mu.Unlock()

	return record, false, nil
}

// Latest returns the most recent prediction, or nil before the first run.
func (m *Manager) Latest() *domain.PredictionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return nil
	}
	r := m.history[len(m.history)-1]
	return &r
}

// History returns a copy of the prediction window, oldest first.
func (m *Manager) History() []domain.PredictionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.PredictionRecord, len(m.history))
	copy(out, m.history)
	return out
}

// Trends compares the last few predictions against the stretch before
// them for each domain's high-risk probability and for resilience.
func (m *Manager) Trends() TrendSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.history)
	summary := TrendSummary{SampleCount: n, Status: statusOK}
	if n < trendMinSamples {
		summary.Status = statusInsufficient
		return summary
	}

	summary.Environmental = trendOf(m.history, func(r domain.PredictionRecord) float64 {
		return r.Environmental.ProbHigh
	}, trendBand)
	summary.Health = trendOf(m.history, func(r domain.PredictionRecord) float64 {
		return r.Health.ProbHigh
	}, trendBand)
	summary.FoodSecurity = trendOf(m.history, func(r domain.PredictionRecord) float64 {
		return r.FoodSecurity.ProbHigh
	}, trendBand)
	summary.Resilience = trendOf(m.history, func(r domain.PredictionRecord) float64 {
		return float64(r.ResilienceScore)
	}, resilienceBand)
	return summary
}

func trendOf(history []domain.PredictionRecord, value func(domain.PredictionRecord) float64, band float64) Trend {
	n := len(history)
	recentFrom := n - trendWindow
	if recentFrom < 0 {
		recentFrom = 0
	}
	prevFrom := n - trendLookback
	if prevFrom < 0 {
		prevFrom = 0
	}

	recent := avg(history[recentFrom:], value)
	previous := recent
	if prevFrom < recentFrom {
		previous = avg(history[prevFrom:recentFrom], value)
	}

	t := Trend{
		Direction: TrendStable,
		Current:   math.Round(recent*1000) / 1000,
		Change:    math.Round((recent-previous)*1000) / 1000,
	}
	switch {
	case recent-previous > band:
		t.Direction = TrendIncreasing
	case previous-recent > band:
		t.Direction = TrendDecreasing
	}
	return t
}

func avg(records []domain.PredictionRecord, value func(domain.PredictionRecord) float64) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range records {
		sum += value(r)
	}
	return sum / float64(len(records))
}
