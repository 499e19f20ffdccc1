package warehouse

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/cityscope/urbanrisk/internal/domain"
	"github.com/cityscope/urbanrisk/internal/metrics"
)

// estimates are the embedded per-locality fallbacks used when both the
// cache and the store are unavailable. Calibrated to a dense South Asian
// metro during a normal week.
var estimates = map[string]domain.Baseline{
	"mumbai": {
		Locality:         "mumbai",
		AQI:              145,
		Temperature:      28.5,
		HospitalLoadPct:  65.0,
		CropSupply:       72.0,
		FoodPriceIndex:   108.0,
		TrafficDensity:   1.0,
		RespiratoryCases: 320,
		Rainfall:         35.0,
	},
}

// defaultEstimate serves localities without an embedded profile.
var defaultEstimate = domain.Baseline{
	AQI:              100,
	Temperature:      27.0,
	HospitalLoadPct:  60.0,
	CropSupply:       75.0,
	FoodPriceIndex:   100.0,
	TrafficDensity:   1.0,
	RespiratoryCases: 200,
	Rainfall:         30.0,
}

// Source is the tiered baseline reader: cache, then store behind a
// circuit breaker, then embedded estimates. It never returns an error to
// callers on the read path; the estimate tier absorbs total outage.
type Source struct {
	store   *Store
	cache   *Cache
	breaker *gobreaker.CircuitBreaker
	clock   func() time.Time
}

// NewSource assembles the tiered reader. Either store or cache may be nil
// in degraded deployments.
func NewSource(store *Store, cache *Cache) *Source {
	return &Source{
		store: store,
		cache: cache,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "warehouse",
			MaxRequests: 2,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("warehouse breaker state changed")
			},
		}),
		clock: time.Now,
	}
}

// WithClock injects the clock used for freshness labeling.
func (s *Source) WithClock(clock func() time.Time) *Source {
	s.clock = clock
	return s
}

// Baseline reads the freshest available baseline for a locality. The
// returned record always carries a freshness label; the estimate tier is
// labeled estimated with a zero observation time.
func (s *Source) Baseline(ctx context.Context, locality string) *domain.Baseline {
	now := s.clock()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, locality)
		if err != nil {
			log.Warn().Err(err).Str("locality", locality).Msg("baseline cache unavailable")
		}
		if cached != nil {
			cached.Freshness = domain.FreshnessOf(cached.ObservedAt, now)
			metrics.WarehouseRequests.WithLabelValues(metrics.TierCache).Inc()
			return cached
		}
	}

	if s.store != nil {
		result, err := s.breaker.Execute(func() (interface{}, error) {
			return s.store.LatestBaseline(ctx, locality)
		})
		if err == nil {
			baseline := result.(*domain.Baseline)
			baseline.Freshness = domain.FreshnessOf(baseline.ObservedAt, now)
			if s.cache != nil {
				if cacheErr := s.cache.Set(ctx, baseline); cacheErr != nil {
					log.Warn().Err(cacheErr).Str("locality", locality).Msg("baseline cache write failed")
				}
			}
			metrics.WarehouseRequests.WithLabelValues(metrics.TierStore).Inc()
			return baseline
		}
		log.Warn().Err(err).Str("locality", locality).Msg("warehouse read failed, serving estimate")
	}

	metrics.WarehouseRequests.WithLabelValues(metrics.TierEstimate).Inc()
	return s.estimate(locality)
}

func (s *Source) estimate(locality string) *domain.Baseline {
	baseline, ok := estimates[locality]
	if !ok {
		baseline = defaultEstimate
		baseline.Locality = locality
	}
	baseline.Freshness = domain.FreshnessEstimated
	return &baseline
}
