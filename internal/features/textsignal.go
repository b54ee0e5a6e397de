package features

import (
	"strings"
	"time"

	"cropcast/internal/sources"
)

// EventKind classifies a change event extracted from seasonal commentary.
type EventKind string

const (
	EventDrought   EventKind = "drought"
	EventFlood     EventKind = "flood"
	EventHeat      EventKind = "heat"
	EventFrost     EventKind = "frost"
	EventDisease   EventKind = "disease"
	EventPest      EventKind = "pest"
	EventFavorable EventKind = "favorable"
)

// ChangeEvent is one structured event parsed from a free-text outlook.
type ChangeEvent struct {
	Kind     EventKind `json:"kind"`
	Severity float64   `json:"severity"` // 1 (mention) .. 3 (extreme)
	Region   string    `json:"region"`
	AgeWeeks int       `json:"age_weeks"`
	Excerpt  string    `json:"excerpt"`
}

// adverse keyword sets per event kind; matching is case-insensitive
// substring over the document text.
var eventKeywords = map[EventKind][]string{
	EventDrought:   {"drought", "dry spell", "dryness", "moisture deficit", "soil moisture short"},
	EventFlood:     {"flood", "excess rain", "waterlogged", "ponding", "saturated fields"},
	EventHeat:      {"heat wave", "heatwave", "extreme heat", "scorching", "above-normal temperatures"},
	EventFrost:     {"frost", "freeze", "cold snap", "winterkill"},
	EventDisease:   {"rust", "blight", "fungal", "disease pressure", "mildew"},
	EventPest:      {"armyworm", "aphid", "rootworm", "grasshopper", "pest pressure"},
	EventFavorable: {"beneficial rain", "timely rain", "ideal conditions", "favorable weather", "good moisture"},
}

// severity boosters escalate a match from a mention to a serious event.
var severityBoosters = []string{"severe", "extreme", "widespread", "record", "historic", "devastating", "exceptional"}

// sentiment polarity keywords.
var (
	positiveWords = []string{"favorable", "beneficial", "improved", "improving", "ideal", "timely", "above expectations", "strong", "good"}
	negativeWords = []string{"concern", "stress", "damage", "decline", "deteriorat", "poor", "worse", "loss", "shortfall", "failed"}
)

// ExtractEvents parses one outlook document into structured change events.
// Severity starts at 1 per matched kind and is raised to 2 when any booster
// word appears, 3 when two or more do.
func ExtractEvents(doc sources.OutlookDocument, asOf time.Time) []ChangeEvent {
	text := strings.ToLower(doc.Text)
	ageWeeks := int(asOf.Sub(doc.CapturedAt).Hours() / (24 * 7))
	if ageWeeks < 0 {
		ageWeeks = 0
	}

	boosts := 0
	for _, b := range severityBoosters {
		if strings.Contains(text, b) {
			boosts++
		}
	}
	severity := 1.0
	if boosts >= 2 {
		severity = 3
	} else if boosts == 1 {
		severity = 2
	}

	var events []ChangeEvent
	for kind, words := range eventKeywords {
		for _, w := range words {
			if idx := strings.Index(text, w); idx >= 0 {
				events = append(events, ChangeEvent{
					Kind:     kind,
					Severity: severity,
					Region:   doc.Region,
					AgeWeeks: ageWeeks,
					Excerpt:  excerptAround(doc.Text, idx, len(w)),
				})
				break // one event per kind per document
			}
		}
	}
	return events
}

// RiskScore folds adverse events into a bounded 0-10 score. Each event
// contributes severity x regional relevance x age decay; favorable events
// subtract half their weight. The linear age decay over decayWeeks is a
// documented tunable heuristic, not a calibrated law.
func RiskScore(events []ChangeEvent, state string, decayWeeks int) float64 {
	if decayWeeks < 1 {
		decayWeeks = 1
	}

	score := 0.0
	for _, ev := range events {
		decay := 1 - float64(ev.AgeWeeks)/float64(decayWeeks)
		if decay <= 0 {
			continue
		}
		weight := ev.Severity * regionRelevance(ev.Region, state) * decay
		if ev.Kind == EventFavorable {
			score -= weight / 2
		} else {
			score += weight
		}
	}

	// One fully relevant extreme event lands at 3; scale so roughly three
	// concurrent extreme events saturate the scale.
	score = score * 10 / 9
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// SentimentScore derives a bounded -1..+1 directional score from keyword
// polarity counts.
func SentimentScore(text string) float64 {
	lower := strings.ToLower(text)
	pos, neg := 0, 0
	for _, w := range positiveWords {
		pos += strings.Count(lower, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(lower, w)
	}
	total := pos + neg
	if total == 0 {
		return 0
	}
	return float64(pos-neg) / float64(total)
}

// regionRelevance weights an event by how directly it concerns the state:
// exact state match 1.0, national or unspecified region 0.6, some other
// region 0.2.
func regionRelevance(region, state string) float64 {
	switch {
	case strings.EqualFold(region, state):
		return 1.0
	case region == "" || strings.EqualFold(region, "US") || strings.EqualFold(region, "national"):
		return 0.6
	default:
		return 0.2
	}
}

func excerptAround(text string, idx, matchLen int) string {
	start := idx - 30
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + 30
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}
