package generation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/coachwell/coachd/internal/models"
)

// Style limits.
const (
	maxSentences  = 3
	maxQuestions  = 1
	maxCharsShort = 500
	maxCharsLong  = 1400
)

var bannedContent = []string{
	"у вас депрессия", "у вас биполяр", "прими", "таблетк", "дозировк",
	"как причинить себе", "how to harm yourself",
}

var sarcasmMarkers = []string{"ну да, конечно", "гениально", "супер идея", "brilliant", "sure, great"}

var empathyMarkers = []string{
	"понимаю", "это тяжело", "слышу вас", "вижу, что",
	"i hear you", "that sounds", "you're not alone",
}

var ctaMarkers = []string{"хотите", "давайте", "готовы", "оцените", "want to", "shall we", "?"}

var actionMarkers = []string{
	"сделайте", "напишите", "оцените", "выберите", "назовите",
	"tell me", "rate", "choose",
}

// StyleInput carries everything the style checks need beyond the text.
type StyleInput struct {
	Text              string
	RiskLevel         models.RiskLevel
	UserTonePlayful   bool
	LongFormRequested bool
}

// ValidateStyle runs the nine voice-and-style checks. Banned content and
// playful tone at elevated risk are critical.
func ValidateStyle(in StyleInput) []models.ValidationOutcome {
	lower := strings.ToLower(strings.TrimSpace(in.Text))
	var results []models.ValidationOutcome

	maxChars := maxCharsShort
	if in.LongFormRequested {
		maxChars = maxCharsLong
	}
	if n := utf8.RuneCountInString(in.Text); n > maxChars {
		results = append(results, failRetryable("style_length", fmt.Sprintf("len=%d, max=%d", n, maxChars)))
	} else {
		results = append(results, pass("style_length"))
	}

	sentences := strings.Count(in.Text, ".") + strings.Count(in.Text, "!") + strings.Count(in.Text, "?")
	if sentences > maxSentences {
		results = append(results, failRetryable("sentence_limit", fmt.Sprintf("%d sentences", sentences)))
	} else {
		results = append(results, pass("sentence_limit"))
	}

	if questions := strings.Count(in.Text, "?"); questions > maxQuestions {
		results = append(results, failRetryable("question_limit", fmt.Sprintf("%d questions", questions)))
	} else {
		results = append(results, pass("question_limit"))
	}

	if containsAny(lower, empathyMarkers) {
		results = append(results, pass("empathy_present"))
	} else {
		results = append(results, failRetryable("empathy_present", "no empathy marker"))
	}

	if containsAny(lower, ctaMarkers) {
		results = append(results, pass("cta_present"))
	} else {
		results = append(results, failRetryable("cta_present", "no call to action"))
	}

	if hit := firstMatch(lower, bannedContent); hit != "" {
		results = append(results, failCritical("no_banned_content", hit))
	} else {
		results = append(results, pass("no_banned_content"))
	}

	hasSarcasm := containsAny(lower, sarcasmMarkers)
	sarcasmAllowed := in.RiskLevel == models.RiskLow && in.UserTonePlayful
	if hasSarcasm && !sarcasmAllowed {
		results = append(results, failRetryable("sarcasm_gate", "sarcasm without a playful low-risk context"))
	} else {
		results = append(results, pass("sarcasm_gate"))
	}

	if in.RiskLevel.IsElevated() && hasSarcasm {
		results = append(results, failCritical("no_playful_high_risk", "playful tone at elevated risk"))
	} else {
		results = append(results, pass("no_playful_high_risk"))
	}

	actions := 0
	for _, m := range actionMarkers {
		if strings.Contains(lower, m) {
			actions++
		}
	}
	if actions >= 1 && actions <= 2 {
		results = append(results, pass("actionable_one_step"))
	} else {
		results = append(results, failRetryable("actionable_one_step", fmt.Sprintf("%d action markers", actions)))
	}

	return results
}

func containsAny(text string, markers []string) bool {
	return firstMatch(text, markers) != ""
}

func firstMatch(text string, markers []string) string {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return m
		}
	}
	return ""
}
