// Package inference implements the cascading risk engine: a directed
// probabilistic pipeline where the environmental high-risk probability is
// injected as a feature into the health model, food security is scored in
// parallel, and the three distributions aggregate into a resilience score
// with entropy-based confidence estimates.
package inference

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cityscope/urbanrisk/internal/classify"
	"github.com/cityscope/urbanrisk/internal/domain"
	"github.com/cityscope/urbanrisk/internal/preprocess"
)

// ResilienceWeights are the per-domain weights of the resilience formula.
// They must sum to 1.
type ResilienceWeights struct {
	Environmental float64 `yaml:"environmental" json:"environmental"`
	Health        float64 `yaml:"health" json:"health"`
	Food          float64 `yaml:"food" json:"food"`
}

// DefaultResilienceWeights returns the fixed production weights.
func DefaultResilienceWeights() ResilienceWeights {
	return ResilienceWeights{Environmental: 0.35, Health: 0.40, Food: 0.25}
}

// Threshold overrides. The classifiers extrapolate poorly outside their
// training support, so extreme readings pin the distribution instead of
// trusting the model.
const (
	// AQIOverrideThreshold pins environmental risk to high above this AQI.
	AQIOverrideThreshold = 300.0
	// CropSupplyOverrideThreshold pins food risk to high below this supply index.
	CropSupplyOverrideThreshold = 30.0
	// overrideConfidence replaces the blended confidence when pinned.
	overrideConfidence = 0.99
)

var (
	envOverrideDist  = domain.Distribution{Low: 0.02, Medium: 0.08, High: 0.90}
	foodOverrideDist = domain.Distribution{Low: 0.01, Medium: 0.04, High: 0.95}
)

// Confidence blend weights: negentropy vs top-two margin.
const (
	confidenceEntropyWeight = 0.6
	confidenceMarginWeight  = 0.4
)

// Engine runs cascading inference. It is stateless apart from the shared
// classifier handle and safe for concurrent use.
type Engine struct {
	clf     classify.Classifier
	weights ResilienceWeights
	clock   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeights overrides the resilience weights.
func WithWeights(w ResilienceWeights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithClock injects a clock, used by tests for stable timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine builds an inference engine around a classifier.
func NewEngine(clf classify.Classifier, opts ...Option) *Engine {
	e := &Engine{
		clf:     clf,
		weights: DefaultResilienceWeights(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Predict runs the full cascade over a metric bag and returns an
// immutable prediction record. Classifier failures abort the request;
// nothing is retried here.
func (e *Engine) Predict(ctx context.Context, bag domain.MetricBag) (*domain.PredictionRecord, error) {
	start := e.clock()

	envFeats, healthFeats, foodFeats, assumptions := preprocess.All(bag)

	// Stage 1: environmental risk.
	env, envConf, err := e.scoreEnvironmental(envFeats)
	if err != nil {
		return nil, err
	}

	// Stage 2: health conditioned on the cascaded P(env=high), with food
	// scored in parallel since it has no dependency on either.
	healthFeats.EnvRiskProb = env.ProbHigh

	var (
		wg                   sync.WaitGroup
		health, food         domain.DomainRisk
		healthConf, foodConf float64
		healthErr, foodErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		health, healthConf, healthErr = e.scoreHealth(healthFeats)
	}()
	go func() {
		defer wg.Done()
		food, foodConf, foodErr = e.scoreFood(foodFeats)
	}()
	wg.Wait()
	if healthErr != nil {
		return nil, healthErr
	}
	if foodErr != nil {
		return nil, foodErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record := &domain.PredictionRecord{
		Timestamp:     start,
		Environmental: env,
		Health:        health,
		FoodSecurity:  food,
		ResilienceScore: e.resilienceScore(
			env.ProbHigh, health.ProbHigh, food.ProbHigh,
		),
		Confidence: domain.ConfidenceSet{
			Environmental: envConf,
			Health:        healthConf,
			FoodSecurity:  foodConf,
		},
		OverallConfidence:   math.Round((envConf+healthConf+foodConf)/3*1000) / 1000,
		InferenceDurationMS: float64(e.clock().Sub(start)) / float64(time.Millisecond),
		Cascade: domain.CascadeInfo{
			EnvProbInjectedIntoHealth: env.ProbHigh,
			Description: fmt.Sprintf(
				"environmental high-risk probability (%.2f) used as input to health model", env.ProbHigh),
		},
		Assumptions: assumptions,
	}

	log.Debug().
		Str("env", string(env.RiskLevel)).
		Str("health", string(health.RiskLevel)).
		Str("food", string(food.RiskLevel)).
		Int("resilience", record.ResilienceScore).
		Float64("cascade_prob", env.ProbHigh).
		Msg("cascading inference complete")

	return record, nil
}

func (e *Engine) scoreEnvironmental(f preprocess.EnvFeatures) (domain.DomainRisk, float64, error) {
	if f.AQI > AQIOverrideThreshold {
		return domain.DomainRisk{
			RiskLevel:     domain.RiskHigh,
			ProbHigh:      envOverrideDist.High,
			Probabilities: envOverrideDist,
		}, overrideConfidence, nil
	}
	level, dist, err := e.clf.PredictProba(classify.Environmental, f.Vector())
	if err != nil {
		return domain.DomainRisk{}, 0, err
	}
	return domain.DomainRisk{RiskLevel: level, ProbHigh: dist.High, Probabilities: dist}, confidence(dist), nil
}

func (e *Engine) scoreHealth(f preprocess.HealthFeatures) (domain.DomainRisk, float64, error) {
	level, dist, err := e.clf.PredictProba(classify.Health, f.Vector())
	if err != nil {
		return domain.DomainRisk{}, 0, err
	}
	return domain.DomainRisk{RiskLevel: level, ProbHigh: dist.High, Probabilities: dist}, confidence(dist), nil
}

func (e *Engine) scoreFood(f preprocess.FoodFeatures) (domain.DomainRisk, float64, error) {
	if f.CropSupplyIndex < CropSupplyOverrideThreshold {
		return domain.DomainRisk{
			RiskLevel:     domain.RiskHigh,
			ProbHigh:      foodOverrideDist.High,
			Probabilities: foodOverrideDist,
		}, overrideConfidence, nil
	}
	level, dist, err := e.clf.PredictProba(classify.Food, f.Vector())
	if err != nil {
		return domain.DomainRisk{}, 0, err
	}
	return domain.DomainRisk{RiskLevel: level, ProbHigh: dist.High, Probabilities: dist}, confidence(dist), nil
}

// resilienceScore maps the three high-risk probabilities to the 0-100
// integer resilience scale.
func (e *Engine) resilienceScore(envHigh, healthHigh, foodHigh float64) int {
	weighted := e.weights.Environmental*envHigh +
		e.weights.Health*healthHigh +
		e.weights.Food*foodHigh
	score := math.Round(100 * (1 - weighted))
	return int(math.Max(0, math.Min(100, score)))
}

// confidence blends normalized negentropy with the top-two margin,
// rounded to three decimals.
func confidence(d domain.Distribution) float64 {
	negentropy := 1 - d.Entropy()/math.Log(3)
	c := confidenceEntropyWeight*negentropy + confidenceMarginWeight*d.Margin()
	return math.Round(c*1000) / 1000
}
