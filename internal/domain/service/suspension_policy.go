package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aimstors/sentinel/pkg/constants"
)

// signalWeights are the fixed severity weights per risk signal category.
var signalWeights = map[constants.RiskType]float64{
	constants.RiskTypeRateSpike:          30,
	constants.RiskTypeFailureSpike:       25,
	constants.RiskTypeAuthSpam:           20,
	constants.RiskTypeIPRotation:         15,
	constants.RiskTypeAIMLSignal:         35,
	constants.RiskTypeGeoAnomaly:         20,
	constants.RiskTypeMaliciousIP:        50,
	constants.RiskTypeCrossTenantCluster: 35,
}

// PolicyDecision is the outcome of a suspension policy evaluation.
type PolicyDecision struct {
	ShouldSuspend bool
	ShouldWarn    bool
	Reason        string
}

// SuspensionPolicy is the stateless decision function behind the kill switch.
// The two-threshold, multi-signal design exists to avoid false-positive
// suspensions from a single misbehaving metric: however large the score, one
// category alone never suspends.
type SuspensionPolicy struct {
	suspendThreshold float64
	warnThreshold    float64
}

// NewSuspensionPolicy creates a policy with the given thresholds.
func NewSuspensionPolicy(suspendThreshold, warnThreshold float64) *SuspensionPolicy {
	return &SuspensionPolicy{
		suspendThreshold: suspendThreshold,
		warnThreshold:    warnThreshold,
	}
}

// Evaluate decides on the accumulated credential score and the distinct
// signal categories seen within the trailing corroboration window.
func (p *SuspensionPolicy) Evaluate(currentScore float64, categories map[constants.RiskType]struct{}) PolicyDecision {
	if currentScore >= p.suspendThreshold && len(categories) >= 2 {
		return PolicyDecision{
			ShouldSuspend: true,
			Reason:        fmt.Sprintf("Multi-signal high risk detected (%s)", joinCategories(categories)),
		}
	}

	if currentScore >= p.warnThreshold {
		return PolicyDecision{
			ShouldWarn: true,
			Reason:     "Elevated risk score - entering warning mode",
		}
	}

	return PolicyDecision{Reason: "Safe"}
}

// WeightForSignal returns the fixed weight of a signal category. Unknown
// categories carry a small default so unrecognized signals still accumulate.
func WeightForSignal(riskType constants.RiskType) float64 {
	if w, ok := signalWeights[riskType]; ok {
		return w
	}
	return constants.UnknownSignalWeight
}

// SeverityForScore grades a single signal's contribution.
func SeverityForScore(score float64) constants.RiskSeverity {
	switch {
	case score >= 50:
		return constants.RiskSeverityCritical
	case score >= 30:
		return constants.RiskSeverityHigh
	case score >= 15:
		return constants.RiskSeverityMedium
	default:
		return constants.RiskSeverityLow
	}
}

func joinCategories(categories map[constants.RiskType]struct{}) string {
	names := make([]string, 0, len(categories))
	for c := range categories {
		names = append(names, string(c))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
