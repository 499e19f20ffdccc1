// Package warehouse is the read boundary to the city metrics warehouse: a
// PostgreSQL store behind a Redis read-through cache and a circuit
// breaker, with embedded estimates as the terminal fallback so the
// inference pipeline always has a baseline to work from.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/cityscope/urbanrisk/internal/domain"
)

// ErrNotFound reports that the warehouse has no row for the locality.
var ErrNotFound = errors.New("warehouse: locality not found")

// baselineRow is the scan target for the city_metrics table. Hospital
// load is stored as a percentage.
type baselineRow struct {
	Locality         string    `db:"locality"`
	AQI              float64   `db:"aqi"`
	Temperature      float64   `db:"temperature"`
	HospitalLoadPct  float64   `db:"hospital_load_pct"`
	CropSupply       float64   `db:"crop_supply_index"`
	FoodPriceIndex   float64   `db:"food_price_index"`
	TrafficDensity   float64   `db:"traffic_density"`
	RespiratoryCases float64   `db:"respiratory_cases"`
	Rainfall         float64   `db:"rainfall_mm"`
	ObservedAt       time.Time `db:"observed_at"`
}

// Store reads locality baselines from PostgreSQL.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewStore wraps a sqlx handle with a per-query timeout.
func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

// Open connects to the warehouse and verifies the connection.
func Open(ctx context.Context, dsn string, timeout time.Duration) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return NewStore(db, timeout), nil
}

// LatestBaseline returns the most recent observation row for a locality.
func (s *Store) LatestBaseline(ctx context.Context, locality string) (*domain.Baseline, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT locality, aqi, temperature, hospital_load_pct,
		       crop_supply_index, food_price_index, traffic_density,
		       respiratory_cases, rainfall_mm, observed_at
		FROM city_metrics
		WHERE locality = $1
		ORDER BY observed_at DESC
		LIMIT 1`

	var row baselineRow
	if err := s.db.GetContext(ctx, &row, query, locality); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read baseline for %s: %w", locality, err)
	}

	return &domain.Baseline{
		Locality:         row.Locality,
		AQI:              row.AQI,
		Temperature:      row.Temperature,
		HospitalLoadPct:  row.HospitalLoadPct,
		CropSupply:       row.CropSupply,
		FoodPriceIndex:   row.FoodPriceIndex,
		TrafficDensity:   row.TrafficDensity,
		RespiratoryCases: row.RespiratoryCases,
		Rainfall:         row.Rainfall,
		ObservedAt:       row.ObservedAt,
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
