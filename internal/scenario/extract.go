// Package scenario implements what-if simulation: deterministic
// extraction of structured signals from free text, a fixed preset table,
// compositional delta computation, and clamped application to a live
// baseline.
package scenario

import (
	"strings"

	"github.com/cityscope/urbanrisk/internal/domain"
)

// Keyword tables for signal extraction. Order matters for the
// first-match-wins fields, so these are slices rather than maps.

type eventKeywords struct {
	event    domain.PrimaryEvent
	keywords []string
}

type gradeKeywords struct {
	grade    string
	keywords []string
}

type impactKeywords struct {
	impact   domain.SecondaryImpact
	keywords []string
}

var primaryEventKeywords = []eventKeywords{
	{domain.EventFlood, []string{"flood", "flooding", "heavy rain", "monsoon", "waterlogging", "deluge"}},
	{domain.EventHeatwave, []string{"heatwave", "heat", "hot", "temperature spike", "scorching", "sun"}},
	{domain.EventDrought, []string{"drought", "dry", "arid", "water shortage", "no rain"}},
	{domain.EventPollution, []string{"pollution", "smog", "aqi", "air quality", "haze", "toxic"}},
	{domain.EventCyclone, []string{"cyclone", "storm", "hurricane", "wind", "gale"}},
}

var severityKeywords = []gradeKeywords{
	{string(domain.SeverityHigh), []string{"severe", "extreme", "catastrophic", "massive", "deadly", "critical", "major"}},
	{string(domain.SeverityLow), []string{"mild", "minor", "slight", "small", "low"}},
	{string(domain.SeverityModerate), []string{"moderate", "medium", "average"}},
}

var durationKeywords = []gradeKeywords{
	{string(domain.DurationProlonged), []string{"prolonged", "long", "weeks", "month", "extended", "chronic", "persistent"}},
	{string(domain.DurationShort), []string{"short", "brief", "flash", "sudden", "day", "hour"}},
	{string(domain.DurationModerate), []string{"moderate", "medium"}},
}

var secondaryImpactKeywords = []impactKeywords{
	{domain.ImpactTransportDisruption, []string{"traffic", "transport", "road", "commute", "stuck", "jam"}},
	{domain.ImpactHospitalAccessReduction, []string{"hospital", "medical", "ambulance", "health", "access"}},
	{domain.ImpactPowerOutage, []string{"power", "electricity", "blackout", "outage", "light"}},
	{domain.ImpactWaterShortage, []string{"water supply", "dry tap", "drinking water"}},
	{domain.ImpactFoodSupplyDisruption, []string{"food", "crop", "supply", "market", "shortage"}},
}

func anyMatch(prompt string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(prompt, kw) {
			return true
		}
	}
	return false
}

// ExtractSignals derives structured scenario signals from a free-text
// prompt. Case-folded substring matching; primary events and secondary
// impacts accumulate, severity and duration take the first match and
// default to moderate. Same input always yields the same output.
func ExtractSignals(prompt string) domain.ScenarioSignals {
	p := strings.ToLower(prompt)

	var events []domain.PrimaryEvent
	for _, ek := range primaryEventKeywords {
		if anyMatch(p, ek.keywords) {
			events = append(events, ek.event)
		}
	}

	severity := domain.SeverityModerate
	for _, gk := range severityKeywords {
		if anyMatch(p, gk.keywords) {
			severity = domain.Severity(gk.grade)
			break
		}
	}

	duration := domain.DurationModerate
	for _, gk := range durationKeywords {
		if anyMatch(p, gk.keywords) {
			duration = domain.Duration(gk.grade)
			break
		}
	}

	impacts := []domain.SecondaryImpact{}
	for _, ik := range secondaryImpactKeywords {
		if anyMatch(p, ik.keywords) {
			impacts = append(impacts, ik.impact)
		}
	}

	matches := len(events) + len(impacts)
	confidence := domain.ExtractionLow
	switch {
	case matches >= 2:
		confidence = domain.ExtractionHigh
	case matches == 1:
		confidence = domain.ExtractionMedium
	}

	if len(events) == 0 {
		events = []domain.PrimaryEvent{domain.EventNone}
	}

	return domain.ScenarioSignals{
		PrimaryEvents:    events,
		Severity:         severity,
		Duration:         duration,
		SecondaryImpacts: impacts,
		Confidence:       confidence,
	}
}
