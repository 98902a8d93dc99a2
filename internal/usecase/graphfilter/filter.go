// Package graphfilter builds filtered graph views for the dashboard.
package graphfilter

import (
	"context"
	"strings"

	"github.com/chat2graph/chat2graph/errors"
	"github.com/chat2graph/chat2graph/internal/domain/entities"
	"github.com/chat2graph/chat2graph/internal/infrastructure/graph"
)

// Mode selects how the query string is interpreted
type Mode string

const (
	ModeSearch       Mode = "search"       // substring match on entity names
	ModeEpisode      Mode = "episode"      // exact episode name
	ModeRelationship Mode = "relationship" // relationship type
	ModeDisorder     Mode = "disorder"     // disorder grouping
)

// Node is a deduplicated entity in a filtered view. The same name can
// appear once per category; episodes lists everywhere it was seen.
type Node struct {
	Name     string                  `json:"name"`
	Category entities.EntityCategory `json:"category"`
	Type     string                  `json:"type"`
	Episodes []string                `json:"episodes"`
}

// Edge is a relationship included in a filtered view
type Edge struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Episode     string `json:"episode"`
}

// Result is a filtered subgraph
type Result struct {
	Mode  Mode   `json:"mode"`
	Query string `json:"query"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// EpisodeLister reads stored episode graphs
type EpisodeLister interface {
	ListEpisodes(ctx context.Context) ([]entities.Episode, error)
}

// Filter evaluates dashboard graph filters against the stored episodes
type Filter struct {
	store EpisodeLister
}

// New creates a graph filter
func New(store EpisodeLister) *Filter {
	return &Filter{store: store}
}

// Apply runs one filter. The query is required for every mode; an empty
// RESULT is a normal outcome, an empty QUERY is a client error.
func (f *Filter) Apply(ctx context.Context, mode Mode, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.ErrMissingQuery()
	}

	switch mode {
	case ModeSearch, ModeEpisode, ModeRelationship, ModeDisorder:
	default:
		return nil, errors.ErrInvalidArgument("unknown filter mode: " + string(mode))
	}

	episodes, err := f.store.ListEpisodes(ctx)
	if err != nil {
		return nil, errors.ErrGraphQueryFailed(err)
	}

	result := &Result{Mode: mode, Query: query, Nodes: []Node{}, Edges: []Edge{}}
	builder := newViewBuilder()

	switch mode {
	case ModeSearch:
		f.applySearch(episodes, query, builder)
	case ModeEpisode:
		f.applyEpisode(episodes, query, builder)
	case ModeRelationship:
		f.applyRelationship(episodes, query, builder)
	case ModeDisorder:
		f.applyDisorder(episodes, query, builder)
	}

	result.Nodes = builder.nodes()
	result.Edges = builder.edges
	return result, nil
}

// applySearch keeps entities whose name contains the query, plus every
// edge touching a matched entity and that edge's other endpoint.
func (f *Filter) applySearch(episodes []entities.Episode, query string, b *viewBuilder) {
	needle := strings.ToLower(query)
	for i := range episodes {
		ep := &episodes[i]
		matched := make(map[string]bool)
		for _, e := range ep.ClinicalEntities {
			if strings.Contains(strings.ToLower(e.Name), needle) {
				b.addNode(e, entities.CategoryClinical, ep.Name)
				matched[strings.ToLower(e.Name)] = true
			}
		}
		for _, e := range ep.SemanticEntities {
			if strings.Contains(strings.ToLower(e.Name), needle) {
				b.addNode(e, entities.CategorySemantic, ep.Name)
				matched[strings.ToLower(e.Name)] = true
			}
		}
		category := categoryIndex(ep)
		for _, rel := range ep.Relationships {
			if !matched[strings.ToLower(rel.From)] && !matched[strings.ToLower(rel.To)] {
				continue
			}
			b.addEdge(rel, ep.Name)
			b.addEndpoint(ep, category, rel.From)
			b.addEndpoint(ep, category, rel.To)
		}
	}
}

// applyEpisode prefers an exact name match; only when none exists does
// it fall back to substring matching.
func (f *Filter) applyEpisode(episodes []entities.Episode, query string, b *viewBuilder) {
	for i := range episodes {
		ep := &episodes[i]
		if strings.EqualFold(ep.Name, query) {
			b.addEpisode(ep)
			return
		}
	}

	folded := strings.ToLower(query)
	for i := range episodes {
		ep := &episodes[i]
		if strings.Contains(strings.ToLower(ep.Name), folded) {
			b.addEpisode(ep)
		}
	}
}

// applyRelationship keeps edges whose sanitized type contains the
// sanitized query, plus both endpoint nodes.
func (f *Filter) applyRelationship(episodes []entities.Episode, query string, b *viewBuilder) {
	wanted := graph.SanitizeRelationType(query)
	for i := range episodes {
		ep := &episodes[i]
		category := categoryIndex(ep)
		for _, rel := range ep.Relationships {
			if !strings.Contains(graph.SanitizeRelationType(rel.Type), wanted) {
				continue
			}
			b.addEdge(rel, ep.Name)
			b.addEndpoint(ep, category, rel.From)
			b.addEndpoint(ep, category, rel.To)
		}
	}
}

// applyDisorder matches the disorder label by case-insensitive
// substring; normalized equality covers spelling variants the
// substring test would miss.
func (f *Filter) applyDisorder(episodes []entities.Episode, query string, b *viewBuilder) {
	folded := strings.ToLower(query)
	wanted := entities.NormalizeDisorder(query)
	for i := range episodes {
		ep := &episodes[i]
		if !strings.Contains(strings.ToLower(ep.Disorder), folded) &&
			entities.NormalizeDisorder(ep.Disorder) != wanted {
			continue
		}
		b.addEpisode(ep)
	}
}

// viewBuilder accumulates nodes deduplicated by category and folded
// name, preserving insertion order.
type viewBuilder struct {
	index map[string]*Node
	order []string
	edges []Edge
}

func newViewBuilder() *viewBuilder {
	return &viewBuilder{index: make(map[string]*Node), edges: []Edge{}}
}

func (b *viewBuilder) addNode(e entities.EntityRecord, category entities.EntityCategory, episode string) {
	key := string(category) + "|" + strings.ToLower(e.Name)
	node, ok := b.index[key]
	if !ok {
		node = &Node{Name: e.Name, Category: category, Type: e.Type}
		b.index[key] = node
		b.order = append(b.order, key)
	}
	for _, seen := range node.Episodes {
		if seen == episode {
			return
		}
	}
	node.Episodes = append(node.Episodes, episode)
}

func (b *viewBuilder) addEdge(rel entities.RelationshipRecord, episode string) {
	b.edges = append(b.edges, Edge{
		From:        rel.From,
		To:          rel.To,
		Type:        rel.Type,
		Description: rel.Description,
		Episode:     episode,
	})
}

func (b *viewBuilder) addEpisode(ep *entities.Episode) {
	for _, e := range ep.ClinicalEntities {
		b.addNode(e, entities.CategoryClinical, ep.Name)
	}
	for _, e := range ep.SemanticEntities {
		b.addNode(e, entities.CategorySemantic, ep.Name)
	}
	for _, rel := range ep.Relationships {
		b.addEdge(rel, ep.Name)
	}
}

func (b *viewBuilder) addEndpoint(ep *entities.Episode, category map[string]entities.EntityCategory, name string) {
	folded := strings.ToLower(name)
	cat, ok := category[folded]
	if !ok {
		return
	}
	record := entities.EntityRecord{Name: name}
	if cat == entities.CategoryClinical {
		for _, e := range ep.ClinicalEntities {
			if strings.EqualFold(e.Name, name) {
				record = e
				break
			}
		}
	} else {
		for _, e := range ep.SemanticEntities {
			if strings.EqualFold(e.Name, name) {
				record = e
				break
			}
		}
	}
	b.addNode(record, cat, ep.Name)
}

func (b *viewBuilder) nodes() []Node {
	out := make([]Node, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, *b.index[key])
	}
	return out
}

func categoryIndex(ep *entities.Episode) map[string]entities.EntityCategory {
	idx := make(map[string]entities.EntityCategory, len(ep.ClinicalEntities)+len(ep.SemanticEntities))
	for _, e := range ep.ClinicalEntities {
		idx[strings.ToLower(e.Name)] = entities.CategoryClinical
	}
	for _, e := range ep.SemanticEntities {
		idx[strings.ToLower(e.Name)] = entities.CategorySemantic
	}
	return idx
}
