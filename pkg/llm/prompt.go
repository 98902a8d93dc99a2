package llm

import (
	"fmt"
	"strings"
)

// Relationship taxonomy assigned during reclassification.
const (
	RelationTreats        = "TREATS"
	RelationPrescribed    = "PRESCRIBED"
	RelationTakes         = "TAKES"
	RelationReferred      = "REFERRED"
	RelationSupports      = "SUPPORTS"
	RelationFamilyOf      = "FAMILY_OF"
	RelationWorksAt       = "WORKS_AT"
	RelationDiagnosedWith = "DIAGNOSED_WITH"
	RelationTriggers      = "TRIGGERS"
	RelationUncertain     = "UNCERTAIN"
)

var knownRelationTypes = map[string]bool{
	RelationTreats:        true,
	RelationPrescribed:    true,
	RelationTakes:         true,
	RelationReferred:      true,
	RelationSupports:      true,
	RelationFamilyOf:      true,
	RelationWorksAt:       true,
	RelationDiagnosedWith: true,
	RelationTriggers:      true,
	RelationUncertain:     true,
}

// IsKnownRelationType reports whether t belongs to the classification taxonomy
func IsKnownRelationType(t string) bool {
	return knownRelationTypes[t]
}

// RelationTypes returns the taxonomy in a stable order
func RelationTypes() []string {
	return []string{
		RelationTreats,
		RelationPrescribed,
		RelationTakes,
		RelationReferred,
		RelationSupports,
		RelationFamilyOf,
		RelationWorksAt,
		RelationDiagnosedWith,
		RelationTriggers,
		RelationUncertain,
	}
}

// BuildExtractionPrompt renders the entity extraction prompt for a transcript
func BuildExtractionPrompt(transcript string) string {
	return fmt.Sprintf(`You are analyzing a mental health therapy conversation transcript.

Extract entities and relationships from the transcript below.

Clinical entities are symptoms, disorders, medications, treatments, therapies, and emotional states.
Semantic entities are people, places, organizations, activities, objects, and everyday concepts.

Return ONLY a JSON object with this exact structure, no other text:
{
  "clinical_entities": [{"name": "...", "type": "..."}],
  "semantic_entities": [{"name": "...", "type": "..."}],
  "relationships": [{"from": "...", "to": "...", "type": "...", "description": "..."}]
}

Rules:
- Entity names should be short noun phrases in lowercase.
- Every relationship must connect two extracted entities by name.
- The relationship "type" is a short verb phrase; "description" is one sentence of context.
- Do not invent entities that are not mentioned in the transcript.

Transcript:
%s`, transcript)
}

// BuildRouterPrompt renders the query-routing prompt. The model
// answers SEMANTIC or CYPHER.
func BuildRouterPrompt(question string) string {
	return fmt.Sprintf(`Classify this question for a knowledge graph. Reply with ONE word only.

CYPHER - use for:
- Counting: "how many", "count", "total"
- Listing: "list all", "show all", "return all"
- Finding by name: "find entities named", "show doctors", "list medications"
- Connections: "who is connected to", "show relationships"
- Database queries: "show 10 entities", "limit 5"

SEMANTIC - use for:
- Understanding: "what is", "tell me about", "explain", "describe"
- General questions: "what symptoms", "who supports", "what happened"
- Exploratory: questions without specific counts or lists

Question: "%s"

Reply: SEMANTIC or CYPHER`, question)
}

// BuildCypherPrompt renders the Cypher generation prompt for a
// natural-language question against the episode graph schema.
func BuildCypherPrompt(question string) string {
	return fmt.Sprintf(`Generate a Cypher query for a Neo4j mental health knowledge graph.

SCHEMA:
- Nodes: Episode (properties: name, disorder, meets_criteria),
  Entity (properties: name, episode, type; extra label Clinical or Semantic)
- Relationships: MENTIONS from Episode to Entity; typed edges between entities
  (TREATS, PRESCRIBED, TAKES, SUPPORTS, TRIGGERS, RELATES_TO, ...)

IMPORTANT RULES:
1. Keep queries SIMPLE - avoid complex nested queries
2. Use toLower() for case-insensitive matching: WHERE toLower(n.name) CONTAINS 'dr'
3. Always add LIMIT (use 10-20 for lists, omit only for counts)
4. Only read data - never CREATE, MERGE, SET, or DELETE

WORKING EXAMPLES:

Q: "List all medications"
MATCH (n:Entity:Clinical) WHERE toLower(n.type) CONTAINS 'medication' RETURN n.name, n.episode LIMIT 10

Q: "Count all entities"
MATCH (n:Entity) RETURN count(n) AS total

Q: "Show all connections to anxiety"
MATCH (a:Entity)-[r]->(b:Entity) WHERE toLower(a.name) = 'anxiety' RETURN a.name, type(r), b.name LIMIT 20

Q: "Count relationships by type"
MATCH (:Entity)-[r]->(:Entity) RETURN type(r), count(r) AS total

Q: "Show 5 entity names"
MATCH (n:Entity) RETURN n.name LIMIT 5

NOW GENERATE A QUERY FOR: "%s"

Reply with ONLY the Cypher query. No explanation, no markdown, no code blocks.`, question)
}

// BuildClassifyPrompt renders the relationship classification prompt
func BuildClassifyPrompt(from, to, description string) string {
	return fmt.Sprintf(`You are refining a knowledge graph built from therapy conversations.

Given a relationship between two entities, choose the single most appropriate
type from this list:

%s

Relationship:
  from: %s
  to: %s
  context: %s

Answer with exactly one type from the list and nothing else.
If none clearly applies, answer UNCERTAIN.`, strings.Join(RelationTypes(), ", "), from, to, description)
}
