// Package analytics computes per-episode and per-disorder graph
// metrics and maintains the analysis artifact consumed by the
// dashboard.
package analytics

import (
	"sort"
	"strings"

	"github.com/chat2graph/chat2graph/internal/domain/entities"
)

// EpisodeMetrics are the connectivity measures computed per episode.
// Entity counts are over distinct case-folded names, matching how the
// graph store merges nodes. All densities live in [0, 1]; a partition
// with fewer than two usable nodes yields zero.
type EpisodeMetrics struct {
	TotalEntities      int     `json:"total"`
	ClinicalEntities   int     `json:"clinical"`
	SemanticEntities   int     `json:"semantic"`
	TotalRelationships int     `json:"relationships"`
	ClinicalRatio      float64 `json:"clinical_ratio"`
	ClinicalDensity    float64 `json:"clinical_density"`
	SemanticDensity    float64 `json:"semantic_density"`
	CrossDensity       float64 `json:"cross_density"`
	OverallDensity     float64 `json:"overall_density"`
}

// EpisodeReport is the full per-episode artifact entry
type EpisodeReport struct {
	Metrics          EpisodeMetrics                `json:"metrics"`
	Disorder         string                        `json:"disorder"`
	MeetsCriteria    bool                          `json:"meets_criteria"`
	ClinicalEntities []entities.EntityRecord       `json:"clinical_entities"`
	SemanticEntities []entities.EntityRecord       `json:"semantic_entities"`
	Relationships    []entities.RelationshipRecord `json:"relationships"`
}

// DisorderMetrics are arithmetic means over an episode group
type DisorderMetrics struct {
	Episodes           int     `json:"episodes"`
	MeetsCriteriaCount int     `json:"meets_criteria_count"`
	AvgTotalEntities   float64 `json:"avg_total_entities"`
	AvgRelationships   float64 `json:"avg_total_relationships"`
	AvgClinicalRatio   float64 `json:"avg_clinical_ratio"`
	AvgClinicalDensity float64 `json:"avg_clinical_density"`
	AvgSemanticDensity float64 `json:"avg_semantic_density"`
	AvgCrossDensity    float64 `json:"avg_cross_density"`
	AvgOverallDensity  float64 `json:"avg_overall_density"`
}

// OverallSummary holds corpus-wide counts
type OverallSummary struct {
	TotalEntities      int `json:"total_entities"`
	ClinicalEntities   int `json:"clinical_entities"`
	SemanticEntities   int `json:"semantic_entities"`
	TotalRelationships int `json:"total_relationships"`
	Episodes           int `json:"episodes"`
}

// Report is the complete analysis artifact
type Report struct {
	Overall    OverallSummary             `json:"overall"`
	ByDisorder map[string]DisorderMetrics `json:"by_disorder"`
	ByEpisode  map[string]*EpisodeReport  `json:"by_episode"`
}

// ComputeEpisodeReport derives metrics for one episode graph.
// Entities sharing a case-folded name collapse to one node; a name
// present in both partitions counts as clinical. Relationships with a
// dangling endpoint are excluded from every count and density.
func ComputeEpisodeReport(ep *entities.Episode) *EpisodeReport {
	category := make(map[string]entities.EntityCategory, len(ep.ClinicalEntities)+len(ep.SemanticEntities))
	for _, e := range ep.ClinicalEntities {
		category[strings.ToLower(e.Name)] = entities.CategoryClinical
	}
	for _, e := range ep.SemanticEntities {
		key := strings.ToLower(e.Name)
		if _, ok := category[key]; !ok {
			category[key] = entities.CategorySemantic
		}
	}

	var c, s int
	for _, cat := range category {
		if cat == entities.CategoryClinical {
			c++
		} else {
			s++
		}
	}
	total := c + s

	var clinicalRels, semanticRels, crossRels int
	for _, rel := range ep.Relationships {
		from, okFrom := category[strings.ToLower(rel.From)]
		to, okTo := category[strings.ToLower(rel.To)]
		if !okFrom || !okTo {
			continue
		}
		switch {
		case from == entities.CategoryClinical && to == entities.CategoryClinical:
			clinicalRels++
		case from == entities.CategorySemantic && to == entities.CategorySemantic:
			semanticRels++
		default:
			crossRels++
		}
	}
	rels := clinicalRels + semanticRels + crossRels

	return &EpisodeReport{
		Metrics: EpisodeMetrics{
			TotalEntities:      total,
			ClinicalEntities:   c,
			SemanticEntities:   s,
			TotalRelationships: rels,
			ClinicalRatio:      safeRatio(float64(c), float64(total)),
			ClinicalDensity:    density(clinicalRels, c*(c-1)),
			SemanticDensity:    density(semanticRels, s*(s-1)),
			CrossDensity:       density(crossRels, c*s*2),
			OverallDensity:     density(rels, total*(total-1)),
		},
		Disorder:         ep.Disorder,
		MeetsCriteria:    ep.MeetsCriteria,
		ClinicalEntities: ep.ClinicalEntities,
		SemanticEntities: ep.SemanticEntities,
		Relationships:    ep.Relationships,
	}
}

// BuildReport computes the full artifact from stored episodes
func BuildReport(episodes []entities.Episode) *Report {
	byEpisode := make(map[string]*EpisodeReport, len(episodes))
	for i := range episodes {
		byEpisode[episodes[i].Name] = ComputeEpisodeReport(&episodes[i])
	}
	return buildFromEpisodeReports(byEpisode)
}

// buildFromEpisodeReports derives the overall and per-disorder sections
// from per-episode entries.
func buildFromEpisodeReports(byEpisode map[string]*EpisodeReport) *Report {
	report := &Report{
		ByDisorder: make(map[string]DisorderMetrics),
		ByEpisode:  byEpisode,
	}

	groups := make(map[string][]*EpisodeReport)
	for _, ep := range byEpisode {
		report.Overall.Episodes++
		report.Overall.ClinicalEntities += ep.Metrics.ClinicalEntities
		report.Overall.SemanticEntities += ep.Metrics.SemanticEntities
		report.Overall.TotalRelationships += ep.Metrics.TotalRelationships
		disorder := entities.NormalizeDisorder(ep.Disorder)
		groups[disorder] = append(groups[disorder], ep)
	}
	report.Overall.TotalEntities = report.Overall.ClinicalEntities + report.Overall.SemanticEntities

	for disorder, eps := range groups {
		m := DisorderMetrics{Episodes: len(eps)}
		for _, ep := range eps {
			if ep.MeetsCriteria {
				m.MeetsCriteriaCount++
			}
			m.AvgTotalEntities += float64(ep.Metrics.TotalEntities)
			m.AvgRelationships += float64(ep.Metrics.TotalRelationships)
			m.AvgClinicalRatio += ep.Metrics.ClinicalRatio
			m.AvgClinicalDensity += ep.Metrics.ClinicalDensity
			m.AvgSemanticDensity += ep.Metrics.SemanticDensity
			m.AvgCrossDensity += ep.Metrics.CrossDensity
			m.AvgOverallDensity += ep.Metrics.OverallDensity
		}
		n := float64(len(eps))
		m.AvgTotalEntities /= n
		m.AvgRelationships /= n
		m.AvgClinicalRatio /= n
		m.AvgClinicalDensity /= n
		m.AvgSemanticDensity /= n
		m.AvgCrossDensity /= n
		m.AvgOverallDensity /= n
		report.ByDisorder[disorder] = m
	}

	return report
}

// EpisodeNames returns artifact episode names in sorted order
func (r *Report) EpisodeNames() []string {
	names := make([]string, 0, len(r.ByEpisode))
	for name := range r.ByEpisode {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func density(edges, denominator int) float64 {
	if denominator <= 0 || edges <= 0 {
		return 0
	}
	d := float64(edges) / float64(denominator)
	if d > 1 {
		d = 1
	}
	return d
}

func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
