package nlp

import (
	"strings"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

// Result is the classifier output. Confidence squashes the unbounded raw
// score into [0,1]; it is a ranking signal, not a probability.
type Result struct {
	Intent     models.Intent
	Confidence float64
	Score      float64
}

// Classify scores every rule in the table against the normalized text and
// extracted entities and returns the best intent. A non-positive best score
// yields the fallback intent. Ties resolve to the rule declared first.
func Classify(text string, ents Entities) Result {
	best := Result{Intent: models.IntentFallback}
	for _, rule := range Rules {
		score := scoreRule(rule, text, ents)
		if score > best.Score {
			best.Intent = rule.Intent
			best.Score = score
		}
	}
	best.Confidence = clamp(best.Score/3, 0, 1)
	return best
}

// scoreRule is the pure scoring function over one declarative rule:
// +1 per keyword phrase whose words all appear, +1.5 per satisfied entity
// requirement, plus any matching boost weights.
func scoreRule(rule IntentRule, text string, ents Entities) float64 {
	var score float64
	for _, phrase := range rule.Keywords {
		if phraseMatches(text, phrase) {
			score++
		}
	}
	for _, need := range rule.NeedEntities {
		if entityPresent(ents, need) {
			score += 1.5
		}
	}
	for _, boost := range rule.Boosts {
		if boost.RequireCode && ents.Code == "" {
			continue
		}
		if len(boost.Phrases) == 0 {
			score += boost.Weight
			continue
		}
		for _, phrase := range boost.Phrases {
			if phraseMatches(text, phrase) {
				score += boost.Weight
				break
			}
		}
	}
	return score
}

// phraseMatches reports whether every word of the phrase appears as a word
// in the text.
func phraseMatches(text, phrase string) bool {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return false
	}
	padded := " " + text + " "
	for _, w := range words {
		if !strings.Contains(padded, " "+w+" ") {
			return false
		}
	}
	return true
}

func entityPresent(ents Entities, name string) bool {
	switch name {
	case EntityCode:
		return ents.Code != ""
	case EntityClass:
		return ents.ClassName != ""
	default:
		return false
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
