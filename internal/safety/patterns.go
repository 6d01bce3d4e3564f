// Package safety provides the deterministic safety layers of the coaching
// pipeline: the pre-generation Safety Gate, the two-layer Safety Classifier,
// and the post-generation Output Safety Check.
//
// All pattern sets are compiled once at init and shared read-only across
// sessions. No safety outcome ever suppresses a reply; elevated results only
// attach resource or specialist text.
package safety

import "regexp"

// gatePattern is one compiled Safety Gate pattern tagged with its signal name
// and risk level.
type gatePattern struct {
	re     *regexp.Regexp
	signal string
	level  string // "crisis" or "high"
}

var gatePatterns []gatePattern

func gp(pattern, signal, level string) {
	gatePatterns = append(gatePatterns, gatePattern{
		re:     regexp.MustCompile(`(?i)` + pattern),
		signal: signal,
		level:  level,
	})
}

func init() {
	// Russian crisis patterns
	gp(`покончить\s*(с\s*собой|жизнь)`, "self_harm_ru", "crisis")
	gp(`суицид`, "suicide_ru", "crisis")
	gp(`(хочу|хотел[аи]?)\s*(умереть|сдохнуть|не\s*жить)`, "death_wish_ru", "crisis")
	gp(`повеситься|порезать\s*вены|прыгну\s*с`, "method_ru", "crisis")
	gp(`(убить|убью)\s*себя`, "self_harm_direct_ru", "crisis")
	gp(`не\s*вижу\s*смысла\s*(жить|в\s*жизни)`, "hopelessness_ru", "high")

	// English crisis patterns
	gp(`kill\s*(myself|me)`, "self_harm_en", "crisis")
	gp(`(want|going)\s*to\s*(die|end\s*(it|my\s*life))`, "death_wish_en", "crisis")
	gp(`suicid(e|al)`, "suicide_en", "crisis")
	gp(`(cut|hang|shoot|overdose)\s*(myself|me)`, "method_en", "crisis")
	gp(`no\s*reason\s*to\s*live`, "hopelessness_en", "high")

	// Spanish crisis patterns
	gp(`suicidarme`, "suicide_es", "crisis")
	gp(`quiero\s*morir(me)?`, "death_wish_es", "crisis")
	gp(`matarme`, "self_harm_es", "crisis")

	// Violence patterns
	gp(`(убить|убью)\s+(его|её|их|человека|людей)`, "violence_ru", "crisis")
	gp(`(kill|hurt|harm)\s+(someone|him|her|them|people)\s*(bad|serious)?`, "violence_en", "crisis")
}

// classifierPattern is one Layer-1 classifier pattern with its protocol id.
type classifierPattern struct {
	re       *regexp.Regexp
	protocol string // S1..S7
	signal   string
}

var (
	redPatterns    []classifierPattern
	yellowPatterns []classifierPattern
)

func red(pattern, protocol, signal string) {
	redPatterns = append(redPatterns, classifierPattern{
		re: regexp.MustCompile(`(?i)` + pattern), protocol: protocol, signal: signal,
	})
}

func yellow(pattern, protocol, signal string) {
	yellowPatterns = append(yellowPatterns, classifierPattern{
		re: regexp.MustCompile(`(?i)` + pattern), protocol: protocol, signal: signal,
	})
}

func init() {
	// S1: suicide / self-harm, explicit intent
	red(`хочу\s+умереть`, "S1", "suicide_explicit_ru")
	red(`покончить\s+с\s+собой`, "S1", "suicide_explicit_ru")
	red(`суицид`, "S1", "suicide_keyword_ru")
	red(`убить\s+себя`, "S1", "suicide_explicit_ru")
	red(`не\s+хочу\s+жить`, "S1", "suicide_wish_ru")
	red(`лучше\s+бы\s+меня\s+не\s+было`, "S1", "suicide_wish_ru")
	red(`kill\s+my\s*self`, "S1", "suicide_explicit_en")
	red(`want\s+to\s+die`, "S1", "suicide_explicit_en")
	red(`end\s+my\s+life`, "S1", "suicide_explicit_en")
	red(`реж[уе]\s+себ[яе]`, "S1", "self_harm_ru")
	red(`причин(ить|яю)\s+себе\s+(боль|вред)`, "S1", "self_harm_ru")
	red(`hurt\s+my\s*self`, "S1", "self_harm_en")

	// S2: violence to others
	red(`убь[юёе]\s+(его|её|их|тебя)`, "S2", "violence_threat_ru")
	red(`хочу\s+навредить`, "S2", "violence_intent_ru")
	red(`kill\s+(him|her|them)`, "S2", "violence_threat_en")

	// S3: psychosis signals
	yellow(`голоса\s+говорят`, "S3", "psychosis_hallucination_ru")
	yellow(`за\s+мной\s+следят`, "S3", "psychosis_paranoia_ru")
	yellow(`я\s+избранн`, "S3", "psychosis_grandiosity_ru")
	yellow(`voices\s+(are\s+)?telling\s+me`, "S3", "psychosis_hallucination_en")

	// S6: domestic violence
	yellow(`(муж|парень|партн[её]р)\s+(бь[её]т|удари)`, "S6", "dv_physical_ru")
	yellow(`бь[её]т\s+меня`, "S6", "dv_physical_ru")
	yellow(`боюсь\s+партн[её]р`, "S6", "dv_fear_ru")
	yellow(`(husband|boyfriend|partner)\s+(hits|hit|beats)\s+me`, "S6", "dv_physical_en")
}

// outputPattern is one post-generation lexicon pattern.
type outputPattern struct {
	re     *regexp.Regexp
	reason string
}

var outputPatterns []outputPattern

func op(pattern, reason string) {
	outputPatterns = append(outputPatterns, outputPattern{
		re: regexp.MustCompile(`(?i)` + pattern), reason: reason,
	})
}

func init() {
	// Diagnosis language
	op(`(у\s*вас|у\s*тебя)\s*(депресси[яи]|тревожное\s*расстройство|птср|обсесси|биполярн)`, "diagnosis")
	op(`(ваш|твой)\s*диагноз`, "diagnosis")
	op(`you\s*(have|suffer\s*from)\s*(depression|anxiety\s*disorder|ptsd|ocd|bipolar)`, "diagnosis")
	op(`(clinical|diagnosed\s*with)\s*(depression|anxiety|disorder)`, "diagnosis")

	// Medication / dosage language
	op(`(антидепрессант|транквилизатор|нейролептик|снотворн|седативн)`, "medication")
	op(`(принять|принимать|назначить|выпить)\s*(таблетк|лекарств|препарат)`, "medication")
	op(`(antidepressant|tranquilizer|benzodiazepine|ssri|prescri)`, "medication")
	op(`(take|try)\s*(pills|medication|drugs)`, "medication")
	op(`\b(dosage|milligrams|mg)\b`, "medication")

	// Coercive pressure language
	op(`(обязан|должен|немедленно|прямо\s*сейчас)\s*(сделай|выполни|начни)`, "pressure")
	op(`you\s*(must|have\s*to|need\s*to)\s*(do\s*this|start|immediately)`, "pressure")
}

// Adapter-side lexicons, shared with the generation validator.

// DiagnosisPatterns flag diagnostic language in generated text.
var DiagnosisPatterns = compileAll(
	`\b(у вас|у тебя)\s+(депресси|тревожн|биполяр|шизофрен|птср|окр|bpd|adhd|ocd)`,
	`\byou have\s+(depression|anxiety|bipolar|schizophrenia|ptsd|ocd|bpd|adhd)\b`,
	`\bдиагноз\b`,
	`\bdiagnos(e|is|ed)\b`,
)

// MedicationPatterns flag medication instructions in generated text.
var MedicationPatterns = compileAll(
	`\b(прими|принимай|назначаю|рекомендую)\s+(таблетк|препарат|лекарств|антидепрессант)`,
	`\b(дозировк|дозу)\b`,
	`\b(take|prescribe|recommend)\s+(medication|pills|antidepressant|benzodiazepine)\b`,
	`\b(dosage|milligrams|mg)\b`,
)

// HarmfulLexiconPatterns flag self-harm instruction content in generated text.
var HarmfulLexiconPatterns = compileAll(
	`как\s+(причинить|навредить)\s+себе`,
	`how\s+to\s+(harm|hurt|kill)\s+(yourself|myself)`,
	`способ(ы|ов)?\s+(суицид|самоубийств)`,
	`method(s)?\s+of\s+(suicide|self.harm)`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}
