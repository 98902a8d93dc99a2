// Package extraction runs the transcript-to-graph pipeline: LLM entity
// extraction, entity resolution, graph storage, and analytics refresh.
package extraction

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/chat2graph/chat2graph/internal/domain/entities"
	"github.com/chat2graph/chat2graph/pkg/llm"
)

// Resolver deduplicates extracted entities and repairs relationship
// endpoints. Names equal after case folding always merge; when the
// similarity threshold is positive, near-identical names merge too.
type Resolver struct {
	threshold float64
}

// NewResolver creates a resolver. A zero threshold disables fuzzy merging.
func NewResolver(threshold float64) *Resolver {
	return &Resolver{threshold: threshold}
}

// Resolve turns a raw model payload into a clean episode graph.
// Relationships whose endpoints do not resolve to a surviving entity
// are dropped.
func (r *Resolver) Resolve(payload *llm.ExtractionPayload) (clinical, semantic []entities.EntityRecord, rels []entities.RelationshipRecord, stats entities.ResolutionStats) {
	// canonical maps folded names to the surviving entity name
	canonical := make(map[string]string)
	var names []string // surviving names in first-seen order, folded

	merge := func(raw []llm.RawEntity) []entities.EntityRecord {
		var out []entities.EntityRecord
		for _, e := range raw {
			name := strings.TrimSpace(e.Name)
			if name == "" {
				continue
			}
			folded := strings.ToLower(name)

			if _, seen := canonical[folded]; seen {
				stats.ExactMerges++
				continue
			}

			if r.threshold > 0 {
				if match, ok := r.closestMatch(folded, names); ok {
					canonical[folded] = canonical[match]
					stats.FuzzyMerges++
					continue
				}
			}

			canonical[folded] = name
			names = append(names, folded)
			out = append(out, entities.EntityRecord{Name: name, Type: e.Type})
		}
		return out
	}

	// Clinical entities are resolved first so a name present in both
	// partitions keeps its clinical node.
	clinical = merge(payload.ClinicalEntities)
	semantic = merge(payload.SemanticEntities)

	for _, rel := range payload.Relationships {
		from, okFrom := canonical[strings.ToLower(strings.TrimSpace(rel.From))]
		to, okTo := canonical[strings.ToLower(strings.TrimSpace(rel.To))]
		if !okFrom || !okTo || from == to {
			stats.DroppedEdges++
			continue
		}
		if from != strings.TrimSpace(rel.From) || to != strings.TrimSpace(rel.To) {
			stats.RemappedEdges++
		}
		rels = append(rels, entities.RelationshipRecord{
			From:        from,
			To:          to,
			Type:        rel.Type,
			Description: rel.Description,
		})
	}

	return clinical, semantic, rels, stats
}

// closestMatch finds an existing folded name whose Jaro-Winkler
// similarity to the candidate meets the threshold.
func (r *Resolver) closestMatch(folded string, names []string) (string, bool) {
	best := ""
	bestScore := 0.0
	for _, existing := range names {
		score := matchr.JaroWinkler(folded, existing, true)
		if score >= r.threshold && score > bestScore {
			best = existing
			bestScore = score
		}
	}
	return best, best != ""
}
