package nlp

import (
	"fmt"
	"strings"
)

const intentSystem = "You classify business-search queries. Respond with JSON only, no prose."

func intentPrompt(query string) string {
	return fmt.Sprintf(`Classify the intent of this business-search query.

Query: %q

Valid intents: search, book, compare, review, directions, unknown.

Respond with JSON: {"intent": "<intent>", "confidence": <0.0-1.0>}`, query)
}

const categorySystem = "You map business-search queries to a fixed category taxonomy. Respond with JSON only, no prose."

// conversationalExamples steer the classifier on implicit queries
const conversationalExamples = `Examples:
- "I'm hungry" -> food
- "where can I get my hair done" -> beauty
- "my car is making a weird noise" -> automotive
- "need to buy a birthday cake" -> food
- "places to work out" -> fitness
- "my tooth hurts" -> health
- "bored this weekend" -> entertainment`

func categoryPrompt(query string, rootIDs []string) string {
	return fmt.Sprintf(`Classify this business-search query into one of the categories.

Query: %q

Categories: %s

%s

Respond with JSON: {"category": "<category>", "confidence": <0.0-1.0>, "alternatives": ["<category>", ...]}
List at most three alternatives.`, query, strings.Join(rootIDs, ", "), conversationalExamples)
}

const entitySystem = "You extract entities from business-search queries. Respond with JSON only, no prose."

func entityPrompt(query string) string {
	return fmt.Sprintf(`Extract entities from this business-search query.

Query: %q

Respond with JSON:
{"locations": ["city or area names"],
 "business_names": ["specific business names"],
 "times": ["time expressions"],
 "prices": ["price words like cheap, expensive, $$"],
 "features": ["amenities or attributes"],
 "confidence": <0.0-1.0>}

Use empty arrays for absent entity types.`, query)
}

// extractJSON pulls the first balanced JSON object out of model output,
// tolerating surrounding prose or markdown fences.
func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}
