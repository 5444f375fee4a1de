// Package model defines the aggregates of the memory engine: memories,
// entities, tags, and the edges between them.
package model

import "strings"

// Category classifies a memory's retention class.
// "core" memories are exempt from decay, dedup, and conflict sweeps.
type Category string

const (
	CategoryFact  Category = "fact"
	CategoryOther Category = "other"
	CategoryCore  Category = "core"
)

// IsValid returns true if the category is recognized.
func (c Category) IsValid() bool {
	return c == CategoryFact || c == CategoryOther || c == CategoryCore
}

// ExtractionStatus tracks whether background relationship/tag extraction
// has run for a memory.
type ExtractionStatus string

const (
	ExtractionPending  ExtractionStatus = "pending"
	ExtractionComplete ExtractionStatus = "complete"
	ExtractionFailed   ExtractionStatus = "failed"
	ExtractionSkipped  ExtractionStatus = "skipped"
)

// IsValid returns true if the status is recognized.
func (s ExtractionStatus) IsValid() bool {
	switch s {
	case ExtractionPending, ExtractionComplete, ExtractionFailed, ExtractionSkipped:
		return true
	}
	return false
}

// IsTerminal returns true for states with no outgoing transitions.
func (s ExtractionStatus) IsTerminal() bool {
	return s == ExtractionComplete || s == ExtractionSkipped
}

// ValidTransition reports whether the extraction state machine allows
// moving from one status to another. Failed is not terminal: a failed
// extraction may be reset to pending for another attempt.
func ValidTransition(from, to ExtractionStatus) bool {
	switch from {
	case ExtractionPending:
		return to == ExtractionComplete || to == ExtractionFailed || to == ExtractionSkipped
	case ExtractionFailed:
		return to == ExtractionPending
	}
	return false
}

// Memory is a retained text unit with scoring metadata.
type Memory struct {
	ID                string           `json:"id"`
	Content           string           `json:"content"`
	Importance        float64          `json:"importance"`
	Category          Category         `json:"category"`
	Source            string           `json:"source,omitempty"`
	ExtractionStatus  ExtractionStatus `json:"extraction_status"`
	ExtractionRetries int              `json:"extraction_retries"`
	AgentID           string           `json:"agent_id,omitempty"`
	SessionKey        string           `json:"session_key,omitempty"`
	RetrievalCount    int              `json:"retrieval_count"`
	LastRetrieved     *int64           `json:"last_retrieved,omitempty"` // unix millis
	CreatedAt         int64            `json:"created_at"`
	UpdatedAt         int64            `json:"updated_at"`
}

// Entity is a named real-world referent mentioned by memories.
// NormalizedName is the merge key: re-mentioning the same name is idempotent.
type Entity struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	NormalizedName string   `json:"normalized_name"`
	Type           string   `json:"type"`
	Aliases        []string `json:"aliases,omitempty"`
	Description    string   `json:"description,omitempty"`
	MentionCount   int      `json:"mention_count"`
}

// Tag is a normalized label attached to memories with a confidence weight.
type Tag struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// NormalizeName case-folds and trims a name for use as a merge key.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// relationshipTypes is the validated whitelist of Entity→Entity edges.
// Anything outside this set is rejected at the store boundary.
var relationshipTypes = map[string]bool{
	"RELATED_TO": true,
	"WORKS_ON":   true,
	"PART_OF":    true,
	"LOCATED_IN": true,
	"CAUSED_BY":  true,
	"PREFERS":    true,
	"KNOWS":      true,
	"USES":       true,
}

// ValidRelationship reports whether relType is in the whitelist.
func ValidRelationship(relType string) bool {
	return relationshipTypes[relType]
}

// RelationshipTypes returns the whitelist in no particular order.
func RelationshipTypes() []string {
	out := make([]string, 0, len(relationshipTypes))
	for t := range relationshipTypes {
		out = append(out, t)
	}
	return out
}
