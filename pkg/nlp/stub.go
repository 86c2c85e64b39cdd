package nlp

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/normalize"
)

// StubClient is a deterministic LLMClient for local development. It answers
// from the same lexical heuristics the analyzer falls back to, so the full
// pipeline runs without model credentials.
type StubClient struct {
	taxonomy *normalize.Taxonomy
}

// NewStubClient creates a stub client over the taxonomy
func NewStubClient(taxonomy *normalize.Taxonomy) *StubClient {
	if taxonomy == nil {
		taxonomy = normalize.DefaultTaxonomy()
	}
	return &StubClient{taxonomy: taxonomy}
}

// Generate answers the prompt from lexical heuristics
func (s *StubClient) Generate(_ context.Context, prompt, system string, _ int, _ float64) (string, error) {
	query := extractQuotedQuery(prompt)

	var payload interface{}
	switch system {
	case intentSystem:
		res := heuristicIntent(query)
		payload = map[string]interface{}{
			"intent":     string(res.Intent),
			"confidence": res.Confidence,
		}
	case categorySystem:
		res := stubCategory(s.taxonomy, query)
		payload = map[string]interface{}{
			"category":     res.Primary,
			"confidence":   res.Confidence,
			"alternatives": res.Alternatives,
		}
	default:
		payload = map[string]interface{}{
			"locations":      []string{},
			"business_names": []string{},
			"times":          []string{},
			"prices":         stubPrices(query),
			"features":       []string{},
			"confidence":     0.5,
		}
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func stubCategory(taxonomy *normalize.Taxonomy, query string) models.CategoryResult {
	ids := normalize.ExtractCategories(taxonomy, query)
	if len(ids) == 0 {
		return models.CategoryResult{Primary: normalize.RootGeneral, Confidence: 0.3}
	}
	res := models.CategoryResult{Primary: ids[0], Confidence: 0.8}
	for _, id := range ids[1:] {
		if id != res.Primary && len(res.Alternatives) < 3 {
			res.Alternatives = append(res.Alternatives, id)
		}
	}
	return res
}

func stubPrices(query string) []string {
	out := []string{}
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if tier, ok := normalize.NormalizePriceRange(word); ok {
			out = append(out, string(tier))
		}
	}
	return out
}

// extractQuotedQuery pulls the quoted query back out of a prompt built
// with %q.
func extractQuotedQuery(prompt string) string {
	start := strings.Index(prompt, `"`)
	if start < 0 {
		return prompt
	}
	end := start + 1
	for end < len(prompt) {
		if prompt[end] == '\\' {
			end += 2
			continue
		}
		if prompt[end] == '"' {
			break
		}
		end++
	}
	if end >= len(prompt) {
		return prompt
	}
	decoded, err := strconv.Unquote(prompt[start : end+1])
	if err != nil {
		return prompt
	}
	return decoded
}
