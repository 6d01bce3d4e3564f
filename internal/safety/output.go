package safety

import (
	"log/slog"
	"strings"
)

// OutputAction is what the caller should do with a rejected generation.
type OutputAction string

const (
	OutputPass    OutputAction = "pass"
	OutputRewrite OutputAction = "rewrite"
)

// OutputResult is the outcome of one output safety scan.
type OutputResult struct {
	Approved bool         `json:"approved"`
	Reason   string       `json:"reason,omitempty"`
	Action   OutputAction `json:"action"`
}

// OutputCheck is the independent post-generation backstop. It scans bot
// output for diagnosis, medication-dosage, and coercive-pressure language
// across the compiled multilingual lexicons. Pure regex, no network.
type OutputCheck struct{}

// NewOutputCheck creates an output safety check.
func NewOutputCheck() *OutputCheck { return &OutputCheck{} }

// Validate scans generated text. First matching pattern wins. Empty text is
// always approved.
func (c *OutputCheck) Validate(text string) OutputResult {
	if strings.TrimSpace(text) == "" {
		return OutputResult{Approved: true, Action: OutputPass}
	}
	for _, p := range outputPatterns {
		if p.re.MatchString(text) {
			slog.Warn("safety.OutputCheck.Validate: rejected generation", "reason", p.reason)
			return OutputResult{Approved: false, Reason: p.reason, Action: OutputRewrite}
		}
	}
	return OutputResult{Approved: true, Action: OutputPass}
}
