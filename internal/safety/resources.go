package safety

// Crisis resource lines appended to RED / crisis turns. Never replaces the
// reply, only annotates it.
var crisisResources = map[string]string{
	"ru": "Телефон доверия: 8-800-2000-122 (бесплатно, круглосуточно). Ты не одна/один. Я здесь.",
	"en": "Crisis line: 988 (Suicide & Crisis Lifeline, US) or text HOME to 741741. You're not alone. I'm here.",
	"es": "Línea de crisis: 024 (España) o tu línea local de ayuda. No estás solo/sola. Estoy aquí.",
}

// Specialist suggestions attached to YELLOW turns.
var specialistSuggestions = map[string]string{
	"ru": "Кстати, с этим также могут помочь специалисты — хочешь, подскажу как найти?",
	"en": "By the way, a specialist could also help with this — want me to suggest how to find one?",
	"es": "Por cierto, un especialista también podría ayudarte con esto — ¿quieres que te sugiera cómo encontrar uno?",
}

// CrisisResources returns the crisis resource text for a language,
// defaulting to English.
func CrisisResources(language string) string {
	if text, ok := crisisResources[language]; ok {
		return text
	}
	return crisisResources["en"]
}

// SpecialistSuggestion returns the specialist suggestion text for a language,
// defaulting to English.
func SpecialistSuggestion(language string) string {
	if text, ok := specialistSuggestions[language]; ok {
		return text
	}
	return specialistSuggestions["en"]
}
