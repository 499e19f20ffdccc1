package inference

import (
	"math"

	"github.com/cityscope/urbanrisk/internal/domain"
)

// Cascade propagation over the fixed inter-system dependency graph.
// Severity spreads from a trigger system across weighted edges in three
// stages; a node counts as affected above the 0.1 severity floor.

const affectedSeverityFloor = 0.1

// CascadeEdge is a weighted dependency between two systems.
type CascadeEdge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

// cascadeEdges is the fixed edge set of the urban dependency graph.
var cascadeEdges = []CascadeEdge{
	{From: "environmental", To: "health", Weight: 0.7},
	{From: "environmental", To: "food", Weight: 0.5},
	{From: "health", To: "economy", Weight: 0.35},
	{From: "food", To: "economy", Weight: 0.4},
}

// cascadeSystems is the node set in stable output order.
var cascadeSystems = []string{"environmental", "health", "food", "economy"}

// stageTimestamps label the three propagation stages.
var stageTimestamps = [3]string{"0h", "2h", "6h"}

// CascadeNode is one system's post-propagation state.
type CascadeNode struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Severity float64 `json:"severity"`
	Affected bool    `json:"affected"`
}

// PropagationEvent is one entry of the staged timeline.
type PropagationEvent struct {
	Stage     int     `json:"stage"`
	System    string  `json:"system"`
	Severity  float64 `json:"severity"`
	Timestamp string  `json:"timestamp"`
}

// CascadeSummary aggregates the propagation outcome.
type CascadeSummary struct {
	SystemsAffected      int     `json:"systems_affected"`
	CascadeStages        int     `json:"cascade_stages"`
	AverageSeverity      float64 `json:"average_severity"`
	TotalPropagationTime string  `json:"total_propagation_time"`
}

// CascadeAnalysis is the full propagation report.
type CascadeAnalysis struct {
	Systems  []CascadeNode      `json:"systems"`
	Edges    []CascadeEdge      `json:"edges"`
	Timeline []PropagationEvent `json:"propagation_timeline"`
	Summary  CascadeSummary     `json:"impact_summary"`
}

// AnalyzeCascade simulates three stages of severity propagation from a
// trigger system. Stage 1 seeds the trigger, stage 2 pushes severity to
// direct successors scaled by edge weight, stage 3 sums weighted incoming
// severities into downstream nodes, clamped to 1.
func AnalyzeCascade(triggerSystem string, severity float64) (*CascadeAnalysis, error) {
	if !validCascadeSystem(triggerSystem) {
		return nil, domain.NewValidationError("trigger_system", "unknown system "+triggerSystem)
	}
	if severity < 0 || severity > 1 {
		return nil, domain.NewValidationError("trigger_severity", "severity must be in [0,1]")
	}

	state := map[string]float64{}
	for _, s := range cascadeSystems {
		state[s] = 0
	}

	var timeline []PropagationEvent

	// Stage 1: trigger.
	state[triggerSystem] = severity
	timeline = append(timeline, PropagationEvent{
		Stage: 1, System: triggerSystem, Severity: round2(severity), Timestamp: stageTimestamps[0],
	})

	// Stage 2: direct successors of the trigger.
	for _, e := range cascadeEdges {
		if e.From != triggerSystem {
			continue
		}
		propagated := severity * e.Weight
		if propagated > state[e.To] {
			state[e.To] = propagated
		}
		if propagated > affectedSeverityFloor {
			timeline = append(timeline, PropagationEvent{
				Stage: 2, System: e.To, Severity: round2(propagated), Timestamp: stageTimestamps[1],
			})
		}
	}

	// Stage 3: weighted incoming severities sum into downstream nodes.
	stage3 := map[string]float64{}
	for _, e := range cascadeEdges {
		if e.From == triggerSystem || state[e.From] == 0 {
			continue
		}
		stage3[e.To] += state[e.From] * e.Weight
	}
	for _, sys := range cascadeSystems {
		inflow, ok := stage3[sys]
		if !ok {
			continue
		}
		total := math.Min(inflow, 1.0)
		if total > state[sys] {
			state[sys] = total
		}
		if total > affectedSeverityFloor {
			timeline = append(timeline, PropagationEvent{
				Stage: 3, System: sys, Severity: round2(total), Timestamp: stageTimestamps[2],
			})
		}
	}

	// Assemble nodes and summary.
	var nodes []CascadeNode
	affected, totalSeverity := 0, 0.0
	for _, sys := range cascadeSystems {
		sev := state[sys]
		isAffected := sev > affectedSeverityFloor
		if isAffected {
			affected++
			totalSeverity += sev
		}
		nodes = append(nodes, CascadeNode{
			ID:       sys,
			Name:     titleCase(sys),
			Severity: round2(sev),
			Affected: isAffected,
		})
	}

	summary := CascadeSummary{
		SystemsAffected:      affected,
		CascadeStages:        1,
		TotalPropagationTime: stageTimestamps[2],
	}
	if affected > 1 {
		summary.CascadeStages = 3
	}
	if affected > 0 {
		summary.AverageSeverity = round2(totalSeverity / float64(affected))
	}

	return &CascadeAnalysis{
		Systems:  nodes,
		Edges:    cascadeEdges,
		Timeline: timeline,
		Summary:  summary,
	}, nil
}

func validCascadeSystem(s string) bool {
	for _, sys := range cascadeSystems {
		if sys == s {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
