package rootcause

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Similarity weights. The Jaccard term only counts once the word overlap is
// meaningful.
const (
	weightCategory   = 0.3
	weightMessage    = 0.4
	weightSeverity   = 0.2
	weightConfidence = 0.1
	weightScope      = 0.1

	jaccardFloor        = 0.1
	confidenceTolerance = 20
)

// findSimilar scans recent analyses and returns the closest matches at or
// above the similarity threshold.
func (a *Analyzer) findSimilar(current *Analysis) []SimilarIncident {
	from := a.now().UTC().AddDate(0, 0, -similarLookbackDays)
	history, err := a.store.Range(from, a.now().UTC())
	if err != nil {
		log.Debug().Err(err).Msg("similar-incident scan skipped")
		return nil
	}

	var incidents []SimilarIncident
	for _, past := range history {
		if past.ID == current.ID || past.AlertID == current.AlertID {
			continue
		}
		score := similarity(current, &past)
		if score < similarThreshold {
			continue
		}
		incident := SimilarIncident{
			AnalysisID: past.ID,
			AlertID:    past.AlertID,
			Timestamp:  past.Timestamp,
			Similarity: score,
		}
		if top := past.TopCause(); top != nil {
			incident.Summary = top.Description
		}
		incidents = append(incidents, incident)
	}

	sort.SliceStable(incidents, func(i, j int) bool {
		return incidents[i].Similarity > incidents[j].Similarity
	})
	if len(incidents) > maxSimilarIncidents {
		incidents = incidents[:maxSimilarIncidents]
	}
	return incidents
}

// similarity is the weighted sum over category, message overlap, severity,
// top-cause confidence alignment, and impact scope.
func similarity(a, b *Analysis) float64 {
	score := 0.0
	if a.AlertCategory == b.AlertCategory {
		score += weightCategory
	}
	if j := jaccard(messageWords(a.AlertMessage), messageWords(b.AlertMessage)); j > jaccardFloor {
		score += weightMessage * j
	}
	if a.AlertSeverity == b.AlertSeverity {
		score += weightSeverity
	}
	if topA, topB := a.TopCause(), b.TopCause(); topA != nil && topB != nil {
		diff := topA.Confidence - topB.Confidence
		if diff < 0 {
			diff = -diff
		}
		if diff <= confidenceTolerance {
			score += weightConfidence
		}
	}
	if a.Impact.Scope == b.Impact.Scope {
		score += weightScope
	}
	return score
}

func messageWords(message string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(message)) {
		w = strings.Trim(w, ".,:;()[]")
		if len(w) > 2 {
			words[w] = true
		}
	}
	return words
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
