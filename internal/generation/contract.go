package generation

import (
	"fmt"
	"strings"

	"github.com/coachwell/coachd/internal/models"
)

// Default contract limits.
const (
	defaultMaxChars  = 500
	longFormMaxChars = 1400
)

const styleSystemPrompt = `[VOICE + STYLE LAYER]

You are a warm, human wellness coach (CBT/MCT-oriented), not a clinical authority.
Your tone is natural, direct, and supportive. You speak like a real person, not a manual.

Core behavior each turn:
1) Acknowledge emotion/context briefly.
2) Give one clear, practical next step.
3) End with one interactive CTA (short question or button prompt).

Default response shape:
- 1-3 short sentences
- max 1 question
- plain language, no jargon unless user asks
- actionable, concrete

Humor and sarcasm policy:
- Allowed: light, playful, micro-humor (one short line max).
- Only when risk is low and the user's tone is receptive/playful.
- Forbidden at elevated risk, shame, grief, trauma, self-harm.

Never do:
- Diagnose mental disorders.
- Give medication instructions.
- Claim to replace therapy.
- Provide self-harm instructions.
- Minimize risk signals.

Safety instructions override all style rules.`

// Role instructions per coaching action.
var actionTasks = map[models.CoachingAction]string{
	models.ActionListen: "You are an empathetic listener. Reflect the user's feelings, " +
		"validate their experience, and show you are present. " +
		"Do NOT suggest exercises or practices.",
	models.ActionExplore: "You are a curious coach. Ask open-ended questions to understand " +
		"the user's situation better. Be warm and non-judgmental.",
	models.ActionGuide: "You are a gentle coach. Acknowledge the user's feelings and " +
		"offer light psychoeducation or reframing. Do NOT push specific exercises yet.",
	models.ActionAnswer: "You are a helpful assistant. Answer the user's question " +
		"directly and concisely.",
}

// BuildContract assembles the generation contract for one turn from the
// policy decision, the session's conversation state, and the dialogue
// window. practiceTitle is only consulted for SUGGEST decisions.
func BuildContract(
	decision models.CoachDecision,
	state models.ConversationState,
	language string,
	window []models.ContractMessage,
	practiceTitle string,
) models.GenerationContract {
	task := actionTasks[decision.Action]
	if decision.Action == models.ActionSuggest {
		name := decision.SelectedPracticeID
		if practiceTitle != "" {
			name = practiceTitle
		}
		task = fmt.Sprintf("You are a proactive coach. Gently suggest the practice "+
			"%q as something that might help. Ask for consent before starting. "+
			"Be warm and non-pressuring.", name)
	}

	uiMode := models.UIModeText
	if decision.MustAskConsent {
		uiMode = models.UIModeButtons
	}

	return models.GenerationContract{
		DialogueState:  string(state),
		GenerationTask: task,
		PersonaSummary: fmt.Sprintf("style: %s", decision.Style),
		RecentMessages: window,
		MaxChars:       defaultMaxChars,
		Language:       language,
		UIMode:         uiMode,
	}
}

// buildSystemPrompt renders the fixed style template plus the contract's
// task and constraints into one system instruction.
func buildSystemPrompt(contract models.GenerationContract) string {
	parts := []string{styleSystemPrompt}
	if contract.PersonaSummary != "" {
		parts = append(parts, fmt.Sprintf("\n[PERSONA]\n%s", contract.PersonaSummary))
	}
	parts = append(parts, fmt.Sprintf("\n[GENERATION TASK]\n%s", contract.GenerationTask))
	parts = append(parts, fmt.Sprintf("\n[CONSTRAINTS]\nmax_chars: %d", contract.MaxChars))
	if len(contract.MustInclude) > 0 {
		parts = append(parts, fmt.Sprintf("must_include phrases: %v", contract.MustInclude))
	}
	if len(contract.MustNot) > 0 {
		parts = append(parts, fmt.Sprintf("must_not contain: %v", contract.MustNot))
	}
	parts = append(parts, fmt.Sprintf("language: %s", contract.Language))
	return strings.Join(parts, "\n")
}

// buildMessages renders the contract's window into the call's message list.
// An empty window degenerates to the task itself so the backend always has
// a user turn to answer.
func buildMessages(contract models.GenerationContract) []models.ContractMessage {
	messages := make([]models.ContractMessage, 0, len(contract.RecentMessages)+1)
	messages = append(messages, contract.RecentMessages...)
	if contract.UserSummary != "" {
		messages = append(messages, models.ContractMessage{
			Role: "user", Content: fmt.Sprintf("[User context: %s]", contract.UserSummary),
		})
	}
	if len(messages) == 0 {
		messages = append(messages, models.ContractMessage{Role: "user", Content: contract.GenerationTask})
	}
	return messages
}

// buildCorrectionMessages extends the message list with the failed response
// and a summary of the violated checks, asking for regeneration.
func buildCorrectionMessages(
	contract models.GenerationContract,
	failed string,
	violations []models.ValidationOutcome,
) []models.ContractMessage {
	var issues []string
	for _, v := range violations {
		reason := v.Reason
		if reason == "" {
			reason = "failed"
		}
		issues = append(issues, fmt.Sprintf("- %s: %s", v.Code, reason))
	}
	correction := fmt.Sprintf(
		"Your previous response had these issues:\n%s\n\nPlease regenerate, fixing the issues above. "+
			"Keep within %d chars, language=%s.",
		strings.Join(issues, "\n"), contract.MaxChars, contract.Language)

	messages := buildMessages(contract)
	messages = append(messages,
		models.ContractMessage{Role: "assistant", Content: failed},
		models.ContractMessage{Role: "user", Content: correction},
	)
	return messages
}
