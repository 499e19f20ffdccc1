package policy

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/cityscope/urbanrisk/internal/domain"
	"github.com/cityscope/urbanrisk/internal/inference"
)

// DomainDelta is the per-domain shift caused by an intervention. Risk
// deltas are baseline minus intervention, so positive means the policy
// reduced risk. The resilience delta points the other way: positive means
// resilience improved.
type DomainDelta struct {
	ProbHighDelta float64 `json:"prob_high_delta"`
	PercentChange float64 `json:"percent_change"`
}

// Comparison is the full counterfactual report.
type Comparison struct {
	Baseline           *domain.PredictionRecord `json:"baseline"`
	Intervention       *domain.PredictionRecord `json:"intervention"`
	Environmental      DomainDelta              `json:"environmental_delta"`
	Health             DomainDelta              `json:"health_delta"`
	FoodSecurity       DomainDelta              `json:"food_security_delta"`
	ResilienceDelta    int                      `json:"resilience_delta"`
	OverallImprovement float64                  `json:"overall_improvement"`
	PoliciesApplied    []string                 `json:"policies_applied"`
	InterventionMetric map[string]MetricEffect  `json:"intervention_metrics"`
}

// Overall-improvement blend across the per-domain percent changes.
const (
	improvementWeightEnv    = 0.4
	improvementWeightHealth = 0.4
	improvementWeightFood   = 0.2
)

// Engine scores intervention counterfactuals through a shared inference
// engine.
type Engine struct {
	inf *inference.Engine
}

// NewEngine builds a policy engine.
func NewEngine(inf *inference.Engine) *Engine {
	return &Engine{inf: inf}
}

// RunScenario scores the bag as-is and again after applying the policy
// adjustments, then reports the per-domain deltas. Both runs share the
// same engine so model behavior cancels out of the comparison.
func (e *Engine) RunScenario(ctx context.Context, bag domain.MetricBag, adj Adjustments) (*Comparison, error) {
	adjusted, effects, err := Apply(bag, adj)
	if err != nil {
		return nil, err
	}

	baseline, err := e.inf.Predict(ctx, bag)
	if err != nil {
		return nil, err
	}
	intervention, err := e.inf.Predict(ctx, adjusted)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{
		Baseline:           baseline,
		Intervention:       intervention,
		Environmental:      delta(baseline.Environmental.ProbHigh, intervention.Environmental.ProbHigh),
		Health:             delta(baseline.Health.ProbHigh, intervention.Health.ProbHigh),
		FoodSecurity:       delta(baseline.FoodSecurity.ProbHigh, intervention.FoodSecurity.ProbHigh),
		ResilienceDelta:    intervention.ResilienceScore - baseline.ResilienceScore,
		PoliciesApplied:    adj.Keys(),
		InterventionMetric: effects,
	}
	cmp.OverallImprovement = round2(improvementWeightEnv*cmp.Environmental.PercentChange +
		improvementWeightHealth*cmp.Health.PercentChange +
		improvementWeightFood*cmp.FoodSecurity.PercentChange)

	log.Info().
		Strs("policies", cmp.PoliciesApplied).
		Int("resilience_delta", cmp.ResilienceDelta).
		Msg("policy scenario evaluated")

	return cmp, nil
}

// delta computes baseline-minus-intervention with a division-safe percent
// change.
func delta(baseline, intervention float64) DomainDelta {
	d := DomainDelta{ProbHighDelta: round3(baseline - intervention)}
	if baseline > 1e-9 {
		d.PercentChange = round1((baseline - intervention) / baseline * 100)
	}
	return d
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
