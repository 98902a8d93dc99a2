package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/chat2graph/chat2graph/internal/domain/entities"
)

// DefaultRelationType is the edge type assigned when the model gives no
// usable relationship type.
const DefaultRelationType = "RELATES_TO"

// EpisodeStore persists episode graphs in Neo4j.
//
// Schema:
//
//	(:Episode {name, disorder, meets_criteria})
//	(:Entity:Clinical {name, episode, type})
//	(:Entity:Semantic {name, episode, type})
//	(episode)-[:MENTIONS]->(entity)
//	(entity)-[:<TYPE> {description}]->(entity)
type EpisodeStore struct {
	client *Client
	logger *zap.Logger
}

// NewEpisodeStore creates an episode store on top of the graph client
func NewEpisodeStore(client *Client, logger *zap.Logger) *EpisodeStore {
	return &EpisodeStore{client: client, logger: logger}
}

// Ping checks graph database connectivity
func (s *EpisodeStore) Ping(ctx context.Context) error {
	return s.client.VerifyConnectivity(ctx)
}

// StoreEpisode writes one episode and its extracted graph. Re-storing
// an episode with the same name merges into the existing nodes.
func (s *EpisodeStore) StoreEpisode(ctx context.Context, ep *entities.Episode) error {
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (e:Episode {name: $name})
			SET e.disorder = $disorder, e.meets_criteria = $meets_criteria
		`, map[string]any{
			"name":           ep.Name,
			"disorder":       ep.Disorder,
			"meets_criteria": ep.MeetsCriteria,
		}); err != nil {
			return nil, err
		}

		if err := s.storeEntities(ctx, tx, ep.Name, "Clinical", ep.ClinicalEntities); err != nil {
			return nil, err
		}
		if err := s.storeEntities(ctx, tx, ep.Name, "Semantic", ep.SemanticEntities); err != nil {
			return nil, err
		}

		for _, rel := range ep.Relationships {
			relType := SanitizeRelationType(rel.Type)
			cypher := fmt.Sprintf(`
				MATCH (a:Entity {name: $from, episode: $episode})
				MATCH (b:Entity {name: $to, episode: $episode})
				MERGE (a)-[r:%s]->(b)
				SET r.description = $description
			`, relType)
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"from":        rel.From,
				"to":          rel.To,
				"episode":     ep.Name,
				"description": rel.Description,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		s.logger.Error("failed to store episode graph",
			zap.String("episode", ep.Name),
			zap.Error(err))
		return fmt.Errorf("store episode %q: %w", ep.Name, err)
	}

	s.logger.Debug("stored episode graph",
		zap.String("episode", ep.Name),
		zap.Int("clinical", len(ep.ClinicalEntities)),
		zap.Int("semantic", len(ep.SemanticEntities)),
		zap.Int("relationships", len(ep.Relationships)))
	return nil
}

// storeEntities batch-merges entity nodes and their MENTIONS edges
func (s *EpisodeStore) storeEntities(ctx context.Context, tx neo4j.ManagedTransaction, episode, label string, ents []entities.EntityRecord) error {
	if len(ents) == 0 {
		return nil
	}
	batch := make([]map[string]any, 0, len(ents))
	for _, e := range ents {
		batch = append(batch, map[string]any{"name": e.Name, "type": e.Type})
	}
	cypher := fmt.Sprintf(`
		UNWIND $batch AS props
		MATCH (ep:Episode {name: $episode})
		MERGE (n:Entity:%s {name: props.name, episode: $episode})
		SET n.type = props.type
		MERGE (ep)-[:MENTIONS]->(n)
	`, sanitizeLabel(label))
	_, err := tx.Run(ctx, cypher, map[string]any{
		"batch":   batch,
		"episode": episode,
	})
	return err
}

// ListEpisodes reconstructs all stored episodes with their entities and
// intra-episode relationships.
func (s *EpisodeStore) ListEpisodes(ctx context.Context) ([]entities.Episode, error) {
	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		episodes := make(map[string]*entities.Episode)
		order := []string{}

		res, err := tx.Run(ctx, `
			MATCH (e:Episode)
			OPTIONAL MATCH (e)-[:MENTIONS]->(n:Entity)
			RETURN e.name AS name, e.disorder AS disorder, e.meets_criteria AS meets_criteria,
			       n.name AS entity_name, n.type AS entity_type, labels(n) AS entity_labels
			ORDER BY e.name
		`, nil)
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			rec := res.Record()
			name, _ := rec.Get("name")
			epName, _ := name.(string)
			ep, ok := episodes[epName]
			if !ok {
				disorder, _ := rec.Get("disorder")
				meets, _ := rec.Get("meets_criteria")
				d, _ := disorder.(string)
				m, _ := meets.(bool)
				ep = &entities.Episode{Name: epName, Disorder: d, MeetsCriteria: m}
				episodes[epName] = ep
				order = append(order, epName)
			}

			entName, _ := rec.Get("entity_name")
			en, ok := entName.(string)
			if !ok || en == "" {
				continue
			}
			entType, _ := rec.Get("entity_type")
			et, _ := entType.(string)
			labelsVal, _ := rec.Get("entity_labels")
			record := entities.EntityRecord{Name: en, Type: et}
			if hasLabel(labelsVal, "Clinical") {
				ep.ClinicalEntities = append(ep.ClinicalEntities, record)
			} else {
				ep.SemanticEntities = append(ep.SemanticEntities, record)
			}
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `
			MATCH (a:Entity)-[r]->(b:Entity)
			WHERE a.episode = b.episode AND type(r) <> 'MENTIONS'
			RETURN a.episode AS episode, a.name AS from, b.name AS to,
			       type(r) AS type, r.description AS description
		`, nil)
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			rec := res.Record()
			epVal, _ := rec.Get("episode")
			epName, _ := epVal.(string)
			ep, ok := episodes[epName]
			if !ok {
				continue
			}
			from, _ := rec.Get("from")
			to, _ := rec.Get("to")
			relType, _ := rec.Get("type")
			desc, _ := rec.Get("description")
			f, _ := from.(string)
			t, _ := to.(string)
			rt, _ := relType.(string)
			d, _ := desc.(string)
			ep.Relationships = append(ep.Relationships, entities.RelationshipRecord{
				From: f, To: t, Type: rt, Description: d,
			})
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		out := make([]entities.Episode, 0, len(order))
		for _, name := range order {
			out = append(out, *episodes[name])
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	return result.([]entities.Episode), nil
}

// OverallStats holds node and edge counts for the whole graph
type OverallStats struct {
	Episodes         int64 `json:"episodes"`
	ClinicalEntities int64 `json:"clinical_entities"`
	SemanticEntities int64 `json:"semantic_entities"`
	Relationships    int64 `json:"relationships"`
}

// Stats returns graph-wide counts. Relationship count excludes the
// structural MENTIONS edges.
func (s *EpisodeStore) Stats(ctx context.Context) (*OverallStats, error) {
	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		stats := &OverallStats{}

		res, err := tx.Run(ctx, `
			MATCH (e:Episode)
			RETURN count(e) AS episodes
		`, nil)
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			if v, ok := res.Record().Get("episodes"); ok {
				stats.Episodes, _ = v.(int64)
			}
		}

		res, err = tx.Run(ctx, `
			MATCH (n:Entity)
			RETURN count(CASE WHEN 'Clinical' IN labels(n) THEN 1 END) AS clinical,
			       count(CASE WHEN 'Semantic' IN labels(n) THEN 1 END) AS semantic
		`, nil)
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			rec := res.Record()
			if v, ok := rec.Get("clinical"); ok {
				stats.ClinicalEntities, _ = v.(int64)
			}
			if v, ok := rec.Get("semantic"); ok {
				stats.SemanticEntities, _ = v.(int64)
			}
		}

		res, err = tx.Run(ctx, `
			MATCH (:Entity)-[r]->(:Entity)
			WHERE type(r) <> 'MENTIONS'
			RETURN count(r) AS relationships
		`, nil)
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			if v, ok := res.Record().Get("relationships"); ok {
				stats.Relationships, _ = v.(int64)
			}
		}
		return stats, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph stats: %w", err)
	}
	return result.(*OverallStats), nil
}

// GenericRelationship is an untyped edge awaiting reclassification
type GenericRelationship struct {
	Episode     string `json:"episode"`
	From        string `json:"from"`
	To          string `json:"to"`
	Description string `json:"description"`
}

// ListGenericRelationships returns edges still carrying the default type
func (s *EpisodeStore) ListGenericRelationships(ctx context.Context, limit int) ([]GenericRelationship, error) {
	if limit <= 0 {
		limit = 100
	}
	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
			MATCH (a:Entity)-[r:%s]->(b:Entity)
			RETURN a.episode AS episode, a.name AS from, b.name AS to, r.description AS description
			LIMIT $limit
		`, DefaultRelationType), map[string]any{"limit": limit})
		if err != nil {
			return nil, err
		}
		var rels []GenericRelationship
		for res.Next(ctx) {
			rec := res.Record()
			ep, _ := rec.Get("episode")
			from, _ := rec.Get("from")
			to, _ := rec.Get("to")
			desc, _ := rec.Get("description")
			e, _ := ep.(string)
			f, _ := from.(string)
			t, _ := to.(string)
			d, _ := desc.(string)
			rels = append(rels, GenericRelationship{Episode: e, From: f, To: t, Description: d})
		}
		return rels, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list generic relationships: %w", err)
	}
	return result.([]GenericRelationship), nil
}

// RetypeRelationship replaces a generic edge between two entities with
// one carrying the given type, preserving the description.
func (s *EpisodeStore) RetypeRelationship(ctx context.Context, rel GenericRelationship, newType string) error {
	newType = SanitizeRelationType(newType)
	cypher := fmt.Sprintf(`
		MATCH (a:Entity {name: $from, episode: $episode})-[r:%s]->(b:Entity {name: $to, episode: $episode})
		MERGE (a)-[nr:%s]->(b)
		SET nr.description = r.description
		DELETE r
	`, DefaultRelationType, newType)
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"from":    rel.From,
			"to":      rel.To,
			"episode": rel.Episode,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("retype relationship %s->%s: %w", rel.From, rel.To, err)
	}
	return nil
}

// RunReadQuery executes an ad-hoc read-only Cypher query and returns
// records as maps keyed by column name. Callers are responsible for
// vetting the query text; execution happens in a read transaction so
// mutations fail regardless.
func (s *EpisodeStore) RunReadQuery(ctx context.Context, cypher string, maxRows int) ([]map[string]any, error) {
	if maxRows <= 0 {
		maxRows = 100
	}
	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, nil)
		if err != nil {
			return nil, err
		}
		rows := []map[string]any{}
		for len(rows) < maxRows && res.Next(ctx) {
			rec := res.Record()
			row := make(map[string]any, len(rec.Keys))
			for _, key := range rec.Keys {
				v, _ := rec.Get(key)
				row[key] = v
			}
			rows = append(rows, row)
		}
		return rows, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("run read query: %w", err)
	}
	return result.([]map[string]any), nil
}

// DeleteAll removes every episode, entity, and relationship
func (s *EpisodeStore) DeleteAll(ctx context.Context) error {
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `MATCH (n) DETACH DELETE n`, nil)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}
	s.logger.Warn("deleted all graph data")
	return nil
}

// SanitizeRelationType normalizes a free-form relationship type into a
// valid Cypher edge type: uppercased, spaces to underscores, anything
// else stripped. Empty input falls back to the generic type.
func SanitizeRelationType(t string) string {
	t = strings.ToUpper(strings.TrimSpace(t))
	t = strings.ReplaceAll(t, " ", "_")
	result := ""
	for _, c := range t {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result += string(c)
		}
	}
	if result == "" {
		return DefaultRelationType
	}
	return result
}

func sanitizeLabel(label string) string {
	// Only allow alphanumeric and underscore
	result := ""
	for _, c := range label {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result += string(c)
		}
	}
	if result == "" {
		return "Entity"
	}
	return result
}

func hasLabel(labelsVal any, label string) bool {
	labels, ok := labelsVal.([]any)
	if !ok {
		return false
	}
	for _, l := range labels {
		if s, ok := l.(string); ok && s == label {
			return true
		}
	}
	return false
}
