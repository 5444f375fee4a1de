package llm

import (
	"fmt"
	"strings"
)

// ExtractionPrompt generates the prompt that turns a stored memory into
// structured entities, relationships, and tags.
func ExtractionPrompt(content string, relationshipTypes []string) string {
	return fmt.Sprintf(`You are a knowledge extraction system. Analyze this retained memory and extract structured knowledge.

MEMORY:
%s

Extract:
- entities: named real-world referents (people, projects, systems, places, concepts)
- relations: typed links between extracted entities; type MUST be one of: %s
- tags: short normalized topic labels
- category: "fact" if the memory states durable factual knowledge, otherwise "other"

Rules:
- Only extract referents genuinely named in the text
- Confidence in [0,1] reflects how clearly the text supports each item
- Return ONLY a JSON object, no other text

Return:
{
  "entities": [{"name": "...", "type": "person|project|system|place|concept", "role": "subject|object|context", "confidence": 0.9}],
  "relations": [{"from": "entity name", "to": "entity name", "type": "RELATED_TO", "confidence": 0.8}],
  "tags": [{"name": "topic", "category": "domain|activity|attribute", "confidence": 0.7}],
  "category": "fact"
}

If nothing worth extracting, return: {}`,
		content, strings.Join(relationshipTypes, ", "))
}
