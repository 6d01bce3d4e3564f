package practice

import (
	"fmt"
	"math"
	"sort"

	"github.com/coachwell/coachd/internal/models"
)

// Selector weights. Hand-tuned, kept as named constants.
const (
	weightStateMatch = 0.35
	weightHistorical = 0.25
	weightReadiness  = 0.15
	weightDuration   = 0.15
	weightNovelty    = 0.10

	overuseThreshold7d   = 2
	overusePenaltyPerUse = 0.08
	declinePenalty       = 0.12

	// DefaultTopK is the number of candidates returned to the policy engine.
	DefaultTopK = 3
)

// Selector ranks catalog entries with a multi-factor weighted formula,
// applies contraindication hard filtering plus overuse and decline
// penalties, and returns the top-k candidates with reason codes.
type Selector struct {
	entries []Entry
}

// NewSelector creates a selector over the active entries of the catalog.
func NewSelector(catalog *Catalog) *Selector {
	var entries []Entry
	for _, e := range catalog.Entries() {
		if e.Active() {
			entries = append(entries, e)
		}
	}
	return &Selector{entries: entries}
}

// Select scores every non-contraindicated entry against the context and
// usage history and returns up to topK candidates sorted by final score
// descending.
func (s *Selector) Select(
	ctx models.ContextState,
	history map[string]models.PracticeUsage,
	contraindications []string,
	topK int,
) []models.PracticeCandidateRanked {
	if topK <= 0 {
		topK = DefaultTopK
	}
	contra := make(map[string]bool, len(contraindications))
	for _, c := range contraindications {
		contra[c] = true
	}

	emotional := ctx.EmotionalState
	maxSignal := emotional.MaxSignal()
	dominant := emotional.Dominant()

	scored := make([]models.PracticeCandidateRanked, 0, len(s.entries))
	for _, entry := range s.entries {
		if intersects(contra, entry.Contraindications) {
			continue
		}

		usage, tracked := history[entry.ID]
		historical := usage.AvgEffectiveness / 10.0
		if !tracked {
			historical = 0.5
		}

		stateMatch := stateMatchScore(entry.Targets, emotional)
		readinessFit := ctx.ReadinessForPractice

		// Short practices fit better when signals run hot.
		durationFit := 0.7
		if maxSignal > 0.7 {
			if entry.DurationMin <= 10 {
				durationFit = 1.0
			} else {
				durationFit = 0.4
			}
		}

		novelty := math.Max(0, 1.0-float64(usage.TimesUsed7d)*0.2)

		base := weightStateMatch*stateMatch +
			weightHistorical*historical +
			weightReadiness*readinessFit +
			weightDuration*durationFit +
			weightNovelty*novelty

		overuse := float64(max(0, usage.TimesUsed7d-overuseThreshold7d)) * overusePenaltyPerUse
		var declined float64
		if usage.LastDeclined {
			declined = declinePenalty
		}

		final := models.Clamp01(base - overuse - declined)

		var reasons []string
		if stateMatch > 0.5 {
			reasons = append(reasons, fmt.Sprintf("matches_%s", dominant))
		}
		if historical > 0.6 {
			reasons = append(reasons, "worked_before")
		}
		if entry.DurationMin <= 5 {
			reasons = append(reasons, "short_duration")
		}

		scored = append(scored, models.PracticeCandidateRanked{
			PracticeID:  entry.ID,
			FinalScore:  round6(final),
			Confidence:  ctx.Confidence,
			ReasonCodes: reasons,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].FinalScore > scored[j].FinalScore
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// stateMatchScore measures how well the entry's targets match the current
// emotional state: the max field value across mapped targets, or a 0.3
// default when no target maps to a tracked field.
func stateMatchScore(targets []models.MaintainingCycle, emotional models.EmotionalState) float64 {
	best := -1.0
	for _, target := range targets {
		if v, ok := emotionalField(target, emotional); ok && v > best {
			best = v
		}
	}
	if best < 0 {
		return 0.3
	}
	return best
}

// emotionalField maps a maintaining cycle to its tracked field value.
// Cycles without a field (worry, insomnia) do not participate.
func emotionalField(cycle models.MaintainingCycle, e models.EmotionalState) (float64, bool) {
	switch cycle {
	case models.CycleAnxiety:
		return e.Anxiety, true
	case models.CycleRumination:
		return e.Rumination, true
	case models.CycleAvoidance:
		return e.Avoidance, true
	case models.CyclePerfectionism:
		return e.Perfectionism, true
	case models.CycleSelfCriticism:
		return e.SelfCriticism, true
	case models.CycleSymptomFixation:
		return e.SymptomFixation, true
	}
	return 0, false
}

func intersects(set map[string]bool, tags []string) bool {
	for _, t := range tags {
		if set[t] {
			return true
		}
	}
	return false
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
