package safety

import "testing"

func TestGate_BlankTextIsSafe(t *testing.T) {
	g := NewGate()
	for _, text := range []string{"", "   ", "\n\t"} {
		result := g.Check(text)
		if result.RiskLevel != "safe" || result.SafetyAction != GatePass {
			t.Errorf("blank %q: expected safe/pass, got %s/%s", text, result.RiskLevel, result.SafetyAction)
		}
	}
}

func TestGate_NeutralTextIsSafe(t *testing.T) {
	g := NewGate()
	result := g.Check("I had a long day at work and feel tired")
	if result.RiskLevel != "safe" {
		t.Errorf("expected safe, got %s (signals %v)", result.RiskLevel, result.Signals)
	}
}

func TestGate_CrisisPatterns(t *testing.T) {
	g := NewGate()
	cases := []string{
		"I want to kill myself",
		"я хочу умереть",
		"хочу покончить с собой",
		"quiero morirme",
		"I'm going to end my life",
	}
	for _, text := range cases {
		result := g.Check(text)
		if result.RiskLevel != "crisis" {
			t.Errorf("%q: expected crisis, got %s", text, result.RiskLevel)
		}
		if result.SafetyAction != GateCrisisProtocol {
			t.Errorf("%q: expected crisis_protocol, got %s", text, result.SafetyAction)
		}
		if len(result.Signals) == 0 {
			t.Errorf("%q: expected at least one signal", text)
		}
	}
}

func TestGate_HighPatterns(t *testing.T) {
	g := NewGate()
	result := g.Check("lately there's just no reason to live anymore")
	if result.RiskLevel != "high" {
		t.Errorf("expected high, got %s", result.RiskLevel)
	}
	if result.SafetyAction != GateFlagReview {
		t.Errorf("expected flag_review, got %s", result.SafetyAction)
	}
}

func TestGate_CrisisWinsOverHigh(t *testing.T) {
	g := NewGate()
	result := g.Check("no reason to live, I want to die")
	if result.RiskLevel != "crisis" {
		t.Errorf("expected crisis to win over high, got %s", result.RiskLevel)
	}
}

func TestGate_ViolencePatterns(t *testing.T) {
	g := NewGate()
	result := g.Check("I'm going to hurt someone bad")
	if result.RiskLevel != "crisis" {
		t.Errorf("expected crisis for violence, got %s", result.RiskLevel)
	}
}
