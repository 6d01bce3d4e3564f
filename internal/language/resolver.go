// Package language detects the user's language from message text and caches
// the result per user so short replies ("да", "ok") keep the established
// conversation language.
package language

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// DefaultLanguage is used when nothing has been detected or cached yet.
const DefaultLanguage = "en"

// shortTextRunes is the minimum rune count for fresh detection. Anything
// shorter falls back to the cached language.
const shortTextRunes = 4

// scriptRange maps a Unicode script block to an ISO 639-1 code. Order
// matters: on a tie the earlier entry wins.
type scriptRange struct {
	lang string
	re   *regexp.Regexp
}

var scriptRanges = []scriptRange{
	{"ru", regexp.MustCompile(`[\x{0400}-\x{04FF}]`)},
	{"ar", regexp.MustCompile(`[\x{0600}-\x{06FF}]`)},
	{"zh", regexp.MustCompile(`[\x{4E00}-\x{9FFF}]`)},
	{"ja", regexp.MustCompile(`[\x{3040}-\x{30FF}]`)},
	{"ko", regexp.MustCompile(`[\x{AC00}-\x{D7AF}]`)},
	{"he", regexp.MustCompile(`[\x{0590}-\x{05FF}]`)},
	{"en", regexp.MustCompile(`[A-Za-z]`)},
}

// hintWords disambiguate Latin-script languages once Latin is dominant.
var hintWords = map[string][]string{
	"es": {"hola", "cómo", "estás", "gracias", "quiero", "puedo", "tengo", "bueno"},
	"fr": {"bonjour", "comment", "merci", "je suis", "oui", "non", "très"},
	"de": {"hallo", "danke", "ich bin", "wie", "bitte", "guten"},
	"pt": {"olá", "obrigado", "obrigada", "como", "estou", "bom", "muito"},
}

// Resolver detects language from user text, caches per user, and supports
// explicit overrides. Safe for concurrent use.
type Resolver struct {
	mu    sync.RWMutex
	cache map[string]string
}

// NewResolver creates a language resolver with an empty cache.
func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]string)}
}

// Detect returns the ISO 639-1 code for the dominant script in text.
// Latin-dominant text is refined with per-language hint words. Empty text
// returns the default language.
func (r *Resolver) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return DefaultLanguage
	}

	dominant := DefaultLanguage
	best := 0
	for _, sr := range scriptRanges {
		n := len(sr.re.FindAllString(text, -1))
		if n > best {
			best = n
			dominant = sr.lang
		}
	}
	if best == 0 {
		return DefaultLanguage
	}

	if dominant == "en" {
		lower := strings.ToLower(text)
		bestHits := 0
		for _, lang := range []string{"es", "fr", "de", "pt"} {
			hits := 0
			for _, w := range hintWords[lang] {
				if strings.Contains(lower, w) {
					hits++
				}
			}
			if hits > bestHits {
				bestHits = hits
				dominant = lang
			}
		}
	}

	return dominant
}

// Resolve detects the language of text, caches it for userID, and returns
// it. Texts shorter than four runes return the cached language, or the
// default when nothing is cached.
func (r *Resolver) Resolve(userID, text string) string {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < shortTextRunes {
		r.mu.RLock()
		defer r.mu.RUnlock()
		if lang, ok := r.cache[userID]; ok {
			return lang
		}
		return DefaultLanguage
	}

	lang := r.Detect(text)
	r.mu.Lock()
	r.cache[userID] = lang
	r.mu.Unlock()
	return lang
}

// GetCached returns the cached language for userID, or "" when none exists.
func (r *Resolver) GetCached(userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache[userID]
}

// SetLanguage explicitly pins the language for userID, overriding detection.
func (r *Resolver) SetLanguage(userID, lang string) {
	r.mu.Lock()
	r.cache[userID] = lang
	r.mu.Unlock()
}
