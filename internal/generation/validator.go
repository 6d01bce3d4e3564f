package generation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coachwell/coachd/internal/models"
	"github.com/coachwell/coachd/internal/safety"
)

const minScriptRatio = 0.3

// ContractValidator runs the nine contract checks against a generated
// response. Diagnosis, medication, harmful-lexicon, and humor-in-escalation
// failures are critical: the adapter must fall back without retrying.
type ContractValidator struct{}

// NewContractValidator creates a contract validator.
func NewContractValidator() *ContractValidator { return &ContractValidator{} }

// Validate returns one outcome per check in a fixed order.
func (v *ContractValidator) Validate(text string, contract models.GenerationContract) []models.ValidationOutcome {
	return []models.ValidationOutcome{
		checkLength(text, contract),
		checkMustInclude(text, contract),
		checkMustNot(text, contract),
		checkNoDiagnosis(text),
		checkNoMedication(text),
		checkLanguageMatch(text, contract),
		checkStateAlignment(text, contract),
		checkActionability(text),
		checkSafetyLexicon(text),
	}
}

func pass(code string) models.ValidationOutcome {
	return models.ValidationOutcome{Code: code, Status: models.ValidationPass}
}

func failRetryable(code, reason string) models.ValidationOutcome {
	return models.ValidationOutcome{Code: code, Status: models.ValidationFailRetryable, Reason: reason}
}

func failCritical(code, reason string) models.ValidationOutcome {
	return models.ValidationOutcome{Code: code, Status: models.ValidationFailCritical, Reason: reason}
}

func checkLength(text string, contract models.GenerationContract) models.ValidationOutcome {
	// Character count, not bytes: Cyrillic runs two bytes per rune.
	if n := utf8.RuneCountInString(text); n > contract.MaxChars {
		return failRetryable("length", fmt.Sprintf("len=%d, max=%d", n, contract.MaxChars))
	}
	return pass("length")
}

func checkMustInclude(text string, contract models.GenerationContract) models.ValidationOutcome {
	lower := strings.ToLower(text)
	var missing []string
	for _, phrase := range contract.MustInclude {
		if !strings.Contains(lower, strings.ToLower(phrase)) {
			missing = append(missing, phrase)
		}
	}
	if len(missing) > 0 {
		return failRetryable("must_include", fmt.Sprintf("missing: %v", missing))
	}
	return pass("must_include")
}

func checkMustNot(text string, contract models.GenerationContract) models.ValidationOutcome {
	lower := strings.ToLower(text)
	var found []string
	for _, phrase := range contract.MustNot {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			found = append(found, phrase)
		}
	}
	if len(found) > 0 {
		return failRetryable("must_not", fmt.Sprintf("found: %v", found))
	}
	return pass("must_not")
}

func checkNoDiagnosis(text string) models.ValidationOutcome {
	for _, re := range safety.DiagnosisPatterns {
		if m := re.FindString(text); m != "" {
			return failCritical("no_diagnosis", fmt.Sprintf("diagnostic language: %s", m))
		}
	}
	return pass("no_diagnosis")
}

func checkNoMedication(text string) models.ValidationOutcome {
	for _, re := range safety.MedicationPatterns {
		if m := re.FindString(text); m != "" {
			return failCritical("no_medication", fmt.Sprintf("medication language: %s", m))
		}
	}
	return pass("no_medication")
}

// checkLanguageMatch requires at least 30% of letters in the expected
// script. Only Russian and English are verified; other languages pass.
func checkLanguageMatch(text string, contract models.GenerationContract) models.ValidationOutcome {
	var inScript func(rune) bool
	switch contract.Language {
	case "ru":
		inScript = func(r rune) bool { return r >= 0x0400 && r <= 0x04FF }
	case "en":
		inScript = func(r rune) bool {
			lower := unicode.ToLower(r)
			return lower >= 'a' && lower <= 'z'
		}
	default:
		return pass("language_match")
	}

	letters, matched := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if inScript(r) {
			matched++
		}
	}
	if letters == 0 {
		return pass("language_match")
	}
	ratio := float64(matched) / float64(letters)
	if ratio < minScriptRatio {
		return failRetryable("language_match",
			fmt.Sprintf("%s ratio %.2f < %.1f", contract.Language, ratio, minScriptRatio))
	}
	return pass("language_match")
}

var humorMarkers = []string{"😂", "🤣", "lol", "haha", "хаха"}

// checkStateAlignment rejects empty responses everywhere and humor markers
// in crisis-adjacent states, the latter critically.
func checkStateAlignment(text string, contract models.GenerationContract) models.ValidationOutcome {
	if strings.TrimSpace(text) == "" {
		return failRetryable("state_alignment", "empty response")
	}
	if contract.DialogueState == string(models.StateCrisis) {
		lower := strings.ToLower(text)
		for _, m := range humorMarkers {
			if strings.Contains(lower, m) {
				return failCritical("state_alignment", "humor in crisis state")
			}
		}
	}
	return pass("state_alignment")
}

var actionabilityMarkers = []string{
	"сделайте", "напишите", "оцените", "выберите", "назовите",
	"попробуйте", "давайте", "готовы",
	"tell me", "rate", "choose", "try", "let's", "?",
}

func checkActionability(text string) models.ValidationOutcome {
	lower := strings.ToLower(text)
	for _, m := range actionabilityMarkers {
		if strings.Contains(lower, m) {
			return pass("actionability")
		}
	}
	return failRetryable("actionability", "no actionable element found")
}

func checkSafetyLexicon(text string) models.ValidationOutcome {
	for _, re := range safety.HarmfulLexiconPatterns {
		if m := re.FindString(text); m != "" {
			return failCritical("safety_lexicon", fmt.Sprintf("harmful content: %s", m))
		}
	}
	return pass("safety_lexicon")
}
