package generation

import (
	"context"
	"log/slog"

	"github.com/coachwell/coachd/internal/genai"
	"github.com/coachwell/coachd/internal/models"
)

const defaultMaxAttempts = 2

// Adapter orchestrates one contract-bound reply: breaker check, bounded
// generation attempts, contract and style validation, correction retries
// for retryable failures, and state fallbacks for everything else. The
// reply it returns is always non-empty.
type Adapter struct {
	chat        genai.ChatClient
	model       string
	maxAttempts int
	validator   *ContractValidator
	breakers    *Breakers
}

// NewAdapter creates a generation adapter. The breakers registry is shared
// across sessions; the breaker key is the model identifier.
func NewAdapter(chat genai.ChatClient, model string, breakers *Breakers) *Adapter {
	if breakers == nil {
		breakers = NewBreakers()
	}
	return &Adapter{
		chat:        chat,
		model:       model,
		maxAttempts: defaultMaxAttempts,
		validator:   NewContractValidator(),
		breakers:    breakers,
	}
}

// Generate produces the outbound reply for the contract. Transport errors
// and exhausted retries degrade to the dialogue-state fallback; a critical
// validation failure skips retries entirely. A clean pass resets the
// breaker and returns the text verbatim.
func (a *Adapter) Generate(
	ctx context.Context,
	contract models.GenerationContract,
	risk models.RiskLevel,
	userTonePlayful bool,
) string {
	breaker := a.breakers.For(a.model)
	if a.chat == nil {
		return Fallback(contract.DialogueState, contract.Language)
	}
	if !breaker.CanAttempt() {
		slog.Warn("Adapter.Generate: circuit breaker open, returning fallback",
			"state", contract.DialogueState)
		return Fallback(contract.DialogueState, contract.Language)
	}

	system := buildSystemPrompt(contract)
	messages := buildMessages(contract)

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		raw, err := a.chat.Chat(ctx, messages, system, a.model)
		if err != nil {
			slog.Error("Adapter.Generate: backend call failed",
				"attempt", attempt, "error", err)
			breaker.RecordFailure()
			continue
		}

		outcomes := a.validator.Validate(raw, contract)
		outcomes = append(outcomes, ValidateStyle(StyleInput{
			Text:              raw,
			RiskLevel:         risk,
			UserTonePlayful:   userTonePlayful,
			LongFormRequested: contract.MaxChars > maxCharsShort,
		})...)

		var failures []models.ValidationOutcome
		critical := false
		for _, o := range outcomes {
			if o.Passed() {
				continue
			}
			failures = append(failures, o)
			if o.Critical() {
				critical = true
			}
		}

		if critical {
			slog.Warn("Adapter.Generate: critical validation failure, no retry",
				"attempt", attempt, "codes", failureCodes(failures))
			breaker.RecordFailure()
			return Fallback(contract.DialogueState, contract.Language)
		}

		if len(failures) == 0 {
			breaker.RecordSuccess()
			return raw
		}

		if attempt < a.maxAttempts {
			slog.Info("Adapter.Generate: retryable validation failures, correcting",
				"attempt", attempt, "codes", failureCodes(failures))
			messages = buildCorrectionMessages(contract, raw, failures)
			continue
		}

		slog.Warn("Adapter.Generate: attempts exhausted, returning fallback",
			"codes", failureCodes(failures))
		breaker.RecordFailure()
	}

	return Fallback(contract.DialogueState, contract.Language)
}

func failureCodes(failures []models.ValidationOutcome) []string {
	codes := make([]string, 0, len(failures))
	for _, f := range failures {
		codes = append(codes, f.Code)
	}
	return codes
}
