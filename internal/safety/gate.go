package safety

import (
	"log/slog"
	"strings"
)

// GateAction is the recommended action from the Safety Gate.
type GateAction string

const (
	GatePass           GateAction = "pass"
	GateFlagReview     GateAction = "flag_review"
	GateCrisisProtocol GateAction = "crisis_protocol"
)

// GateResult is the outcome of one Safety Gate check.
type GateResult struct {
	RiskLevel    string     `json:"risk_level"` // safe, high, crisis
	SafetyAction GateAction `json:"safety_action"`
	Signals      []string   `json:"signals,omitempty"`
	Detector     string     `json:"detector"`
}

// Gate is the deterministic multilingual crisis detector. It runs before any
// backend call: compiled regex only, no network. It never suppresses the
// reply; a crisis match only routes the turn to the crisis protocol.
type Gate struct{}

// NewGate creates a Safety Gate.
func NewGate() *Gate { return &Gate{} }

// Check scans text for crisis and violence signals. Any crisis match wins
// over high, which wins over safe. Blank text is safe.
func (g *Gate) Check(text string) GateResult {
	result := GateResult{RiskLevel: "safe", SafetyAction: GatePass, Detector: "keyword_regex"}
	if strings.TrimSpace(text) == "" {
		return result
	}

	crisis := false
	high := false
	for _, p := range gatePatterns {
		if p.re.MatchString(text) {
			result.Signals = append(result.Signals, p.signal)
			switch p.level {
			case "crisis":
				crisis = true
			case "high":
				high = true
			}
		}
	}

	switch {
	case crisis:
		result.RiskLevel = "crisis"
		result.SafetyAction = GateCrisisProtocol
	case high:
		result.RiskLevel = "high"
		result.SafetyAction = GateFlagReview
	}

	if result.RiskLevel != "safe" {
		slog.Debug("safety.Gate.Check: match", "riskLevel", result.RiskLevel, "signals", result.Signals)
	}
	return result
}
