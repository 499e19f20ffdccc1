package warehouse

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityscope/urbanrisk/internal/domain"
)

func testBaseline(observedAt time.Time) *domain.Baseline {
	return &domain.Baseline{
		Locality:         "mumbai",
		AQI:              160,
		Temperature:      29,
		HospitalLoadPct:  70,
		CropSupply:       68,
		FoodPriceIndex:   112,
		TrafficDensity:   1,
		RespiratoryCases: 340,
		Rainfall:         22,
		ObservedAt:       observedAt,
	}
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "sqlmock"), time.Second), mock
}

func baselineRows(b *domain.Baseline) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"locality", "aqi", "temperature", "hospital_load_pct",
		"crop_supply_index", "food_price_index", "traffic_density",
		"respiratory_cases", "rainfall_mm", "observed_at",
	}).AddRow(
		b.Locality, b.AQI, b.Temperature, b.HospitalLoadPct,
		b.CropSupply, b.FoodPriceIndex, b.TrafficDensity,
		b.RespiratoryCases, b.Rainfall, b.ObservedAt,
	)
}

func TestStore_LatestBaseline(t *testing.T) {
	store, mock := newMockStore(t)
	want := testBaseline(time.Now().Add(-30 * time.Minute))

	mock.ExpectQuery("FROM city_metrics").
		WithArgs("mumbai").
		WillReturnRows(baselineRows(want))

	got, err := store.LatestBaseline(context.Background(), "mumbai")
	require.NoError(t, err)
	assert.Equal(t, want.AQI, got.AQI)
	assert.Equal(t, want.HospitalLoadPct, got.HospitalLoadPct)
	assert.Equal(t, want.Locality, got.Locality)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestBaseline_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM city_metrics").
		WithArgs("atlantis").
		WillReturnRows(sqlmock.NewRows([]string{"locality"}))

	_, err := store.LatestBaseline(context.Background(), "atlantis")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCache_MissThenHit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewCache(client, 5*time.Minute)
	ctx := context.Background()

	mock.ExpectGet("urbanrisk:baseline:mumbai").RedisNil()
	got, err := cache.Get(ctx, "mumbai")
	require.NoError(t, err)
	assert.Nil(t, got, "miss returns nil without error")

	want := testBaseline(time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC))
	payload, err := json.Marshal(want)
	require.NoError(t, err)

	mock.ExpectSet("urbanrisk:baseline:mumbai", payload, 5*time.Minute).SetVal("OK")
	require.NoError(t, cache.Set(ctx, want))

	mock.ExpectGet("urbanrisk:baseline:mumbai").SetVal(string(payload))
	got, err = cache.Get(ctx, "mumbai")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.AQI, got.AQI)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_CorruptEntryIsAMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewCache(client, time.Minute)

	mock.ExpectGet("urbanrisk:baseline:mumbai").SetVal("{not json")
	got, err := cache.Get(context.Background(), "mumbai")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSource_CacheHitSkipsStore(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewCache(client, time.Minute)

	want := testBaseline(time.Now().Add(-10 * time.Minute))
	payload, err := json.Marshal(want)
	require.NoError(t, err)
	mock.ExpectGet("urbanrisk:baseline:mumbai").SetVal(string(payload))

	source := NewSource(nil, cache)
	got := source.Baseline(context.Background(), "mumbai")
	assert.Equal(t, want.AQI, got.AQI)
	assert.Equal(t, domain.FreshnessLive, got.Freshness)
}

func TestSource_StoreHitPopulatesCache(t *testing.T) {
	store, sqlMock := newMockStore(t)
	client, redisMock := redismock.NewClientMock()
	cache := NewCache(client, time.Minute)

	want := testBaseline(time.Now().Add(-2 * time.Hour))
	sqlMock.ExpectQuery("FROM city_metrics").
		WithArgs("mumbai").
		WillReturnRows(baselineRows(want))

	redisMock.ExpectGet("urbanrisk:baseline:mumbai").RedisNil()
	redisMock.Regexp().ExpectSet("urbanrisk:baseline:mumbai", `.*`, time.Minute).SetVal("OK")

	source := NewSource(store, cache)
	got := source.Baseline(context.Background(), "mumbai")
	assert.Equal(t, want.AQI, got.AQI)
	assert.Equal(t, domain.FreshnessRecent, got.Freshness)
}

func TestSource_EstimateFallback(t *testing.T) {
	source := NewSource(nil, nil)

	got := source.Baseline(context.Background(), "mumbai")
	assert.Equal(t, domain.FreshnessEstimated, got.Freshness)
	assert.Equal(t, 145.0, got.AQI)
	assert.Equal(t, 65.0, got.HospitalLoadPct)

	unknown := source.Baseline(context.Background(), "springfield")
	assert.Equal(t, "springfield", unknown.Locality)
	assert.Equal(t, domain.FreshnessEstimated, unknown.Freshness)
}

func TestSource_StoreFailureServesEstimate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM city_metrics").
		WithArgs("mumbai").
		WillReturnError(context.DeadlineExceeded)

	source := NewSource(store, nil)
	got := source.Baseline(context.Background(), "mumbai")
	assert.Equal(t, domain.FreshnessEstimated, got.Freshness)
	assert.Equal(t, 145.0, got.AQI)
}
