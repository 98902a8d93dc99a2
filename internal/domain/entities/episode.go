package entities

// EntityCategory partitions extracted entities into the two graph label sets
type EntityCategory string

const (
	CategoryClinical EntityCategory = "clinical" // symptoms, disorders, medications, treatments
	CategorySemantic EntityCategory = "semantic" // people, places, activities, objects
)

// KnownDisorders is the fixed set of disorder groupings used by uploads
// and aggregation. Anything else maps to "Other".
var KnownDisorders = []string{
	"GAD",
	"ADHD",
	"Wernicke's Aphasia",
	"MDD",
	"OCD",
	"PTSD",
	"Other",
}

// NormalizeDisorder maps free-form disorder names onto the known set
func NormalizeDisorder(d string) string {
	for _, known := range KnownDisorders {
		if d == known {
			return d
		}
	}
	return "Other"
}

// EntityRecord is a single extracted entity
type EntityRecord struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RelationshipRecord is a directed edge between two entities of the
// same episode, identified by entity name.
type RelationshipRecord struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Episode is one analyzed conversation with its extracted graph
type Episode struct {
	Name             string               `json:"name"`
	Disorder         string               `json:"disorder"`
	MeetsCriteria    bool                 `json:"meets_criteria"`
	ClinicalEntities []EntityRecord       `json:"clinical_entities"`
	SemanticEntities []EntityRecord       `json:"semantic_entities"`
	Relationships    []RelationshipRecord `json:"relationships"`
}

// ResolutionStats reports what entity resolution changed
type ResolutionStats struct {
	ExactMerges   int `json:"exact_merges"`
	FuzzyMerges   int `json:"fuzzy_merges"`
	DroppedEdges  int `json:"dropped_edges"`
	RemappedEdges int `json:"remapped_edges"`
}

// ExtractionResult is the outcome of running extraction and resolution
// over one transcript.
type ExtractionResult struct {
	Episode    Episode         `json:"episode"`
	Resolution ResolutionStats `json:"resolution"`
}
