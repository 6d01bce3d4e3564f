package generation

import "github.com/coachwell/coachd/internal/models"

// State-specific fallback templates, returned whenever generation cannot
// produce a validated reply. Keyed by conversation state, then language.
var stateFallbacks = map[string]map[string]string{
	string(models.StateFreeChat): {
		"en": "I'm here and listening. Tell me what's on your mind?",
		"ru": "Я здесь и слушаю. Расскажи, что тебя беспокоит?",
		"es": "Estoy aquí y escucho. Cuéntame qué te preocupa.",
	},
	string(models.StateExplore): {
		"en": "I hear you, that sounds like a lot. Tell me a bit more about what's weighing on you?",
		"ru": "Понимаю, что вам непросто. Расскажите немного больше — что сейчас беспокоит больше всего?",
	},
	string(models.StatePracticeOffered): {
		"en": "I hear you. There's a short exercise that might help — want to give it a try?",
		"ru": "Слышу вас. Есть короткая практика, которая может помочь. Хотите попробовать?",
	},
	string(models.StatePracticeActive): {
		"en": "I hear you, let's keep going. Ready for the next step?",
		"ru": "Понимаю. Давайте продолжим практику. Готовы к следующему шагу?",
	},
	string(models.StatePracticePaused): {
		"en": "That sounds like a good place to pause. Want to pick the practice back up later?",
		"ru": "Понимаю, давайте сделаем паузу. Хотите вернуться к практике позже?",
	},
	string(models.StateFollowUp): {
		"en": "I hear you. How do you feel after the practice? Rate it from 1 to 10.",
		"ru": "Как вы себя чувствуете после практики? Оцените от 1 до 10.",
	},
	string(models.StateCrisis): {
		"en": "I hear you, and what you're feeling matters. If things are heavy right now, please reach out to a crisis line — want me to stay with you here?",
		"ru": "Я рядом. Если вам сейчас тяжело, пожалуйста, обратитесь на линию помощи: 8-800-2000-122. Хотите, я останусь на связи?",
	},
}

var defaultFallbacks = map[string]string{
	"en": "I hear you. Let's try a different angle — tell me, what matters most right now?",
	"ru": "Понимаю. Давайте попробуем по-другому. Что сейчас важнее всего?",
	"es": "Te escucho. Intentemos de otra manera. ¿Qué es lo más importante ahora?",
}

// Fallback returns the static reply for a dialogue state and language. An
// unknown state gets the generic default; an unknown language gets English.
func Fallback(dialogueState, lang string) string {
	if byLang, ok := stateFallbacks[dialogueState]; ok {
		if text, ok := byLang[lang]; ok {
			return text
		}
		if text, ok := byLang["en"]; ok {
			return text
		}
	}
	if text, ok := defaultFallbacks[lang]; ok {
		return text
	}
	return defaultFallbacks["en"]
}
