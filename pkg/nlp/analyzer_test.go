package nlp

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/normalize"
	"github.com/placemesh/placemesh/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient answers each sub-task from a fixed response and counts calls
type scriptedClient struct {
	mu        sync.Mutex
	responses map[string]string // keyed by system prompt
	errs      map[string]error
	calls     map[string]int
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		responses: map[string]string{},
		errs:      map[string]error{},
		calls:     map[string]int{},
	}
}

func (c *scriptedClient) Generate(_ context.Context, _, system string, _ int, _ float64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[system]++
	if err := c.errs[system]; err != nil {
		return "", err
	}
	return c.responses[system], nil
}

func (c *scriptedClient) callCount(system string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[system]
}

func newTestAnalyzer(t *testing.T, client LLMClient) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(Config{
		Client:   client,
		Taxonomy: normalize.DefaultTaxonomy(),
	})
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)
	return a
}

func TestAnalyzeQueryHappyPath(t *testing.T) {
	client := newScriptedClient()
	client.responses[intentSystem] = `{"intent": "search", "confidence": 0.9}`
	client.responses[categorySystem] = `{"category": "food", "confidence": 0.85, "alternatives": ["cafe"]}`
	client.responses[entitySystem] = `{"locations": ["bombay"], "business_names": [], "times": [],
		"prices": ["cheap"], "features": ["outdoor seating"], "confidence": 0.8}`

	a := newTestAnalyzer(t, client)
	analysis, stats := a.AnalyzeQuery(context.Background(), "cheap restaurants in bombay", Session{UserID: "u1", IP: "1.2.3.4"})

	assert.Equal(t, models.IntentSearch, analysis.Intent.Intent)
	assert.Equal(t, "food", analysis.Category.Primary)
	assert.Equal(t, []string{"cafe"}, analysis.Category.Alternatives)
	assert.Equal(t, []string{"Mumbai"}, analysis.Entities.Locations)
	assert.Equal(t, []string{"$"}, analysis.Entities.Prices)
	assert.Equal(t, []string{"outdoor seating"}, analysis.Entities.Features)
	assert.InDelta(t, 0.3*0.9+0.4*0.85+0.3*0.8, analysis.Confidence, 1e-9)
	assert.False(t, analysis.Degraded)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, 3, stats.ModelCalls)
}

func TestDetectIntentMemoized(t *testing.T) {
	client := newScriptedClient()
	client.responses[intentSystem] = `{"intent": "book", "confidence": 0.8}`
	a := newTestAnalyzer(t, client)

	first, fromMemo, err := a.DetectIntent(context.Background(), "Book a Table", Session{})
	require.NoError(t, err)
	assert.False(t, fromMemo)

	// memo key is case and whitespace insensitive
	second, fromMemo, err := a.DetectIntent(context.Background(), "  book a table ", Session{})
	require.NoError(t, err)
	assert.True(t, fromMemo)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.callCount(intentSystem))
}

func TestAnalyzeQueryPartialFailure(t *testing.T) {
	client := newScriptedClient()
	client.responses[intentSystem] = `{"intent": "search", "confidence": 0.9}`
	client.errs[categorySystem] = errors.New("model access denied")
	client.responses[entitySystem] = `{"locations": [], "business_names": [], "times": [], "prices": [], "features": [], "confidence": 0.4}`

	a := newTestAnalyzer(t, client)
	analysis, stats := a.AnalyzeQuery(context.Background(), "coffee shops near me", Session{})

	// siblings succeed, category comes from the lexical fallback
	assert.Equal(t, models.IntentSearch, analysis.Intent.Intent)
	assert.Equal(t, "food", analysis.Category.Primary)
	assert.True(t, analysis.Degraded)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "category")
}

func TestAnalyzeQueryRecordsFallbackEvents(t *testing.T) {
	client := newScriptedClient()
	client.responses[intentSystem] = `{"intent": "search", "confidence": 0.9}`
	client.errs[categorySystem] = errors.New("model access denied")
	client.responses[entitySystem] = `{"locations": [], "business_names": [], "times": [], "prices": [], "features": [], "confidence": 0.4}`

	harness := resilience.NewHarness(nil, nil)
	a, err := NewAnalyzer(Config{
		Client:   client,
		Taxonomy: normalize.DefaultTaxonomy(),
		Harness:  harness,
	})
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)

	_, stats := a.AnalyzeQuery(context.Background(), "coffee shops near me", Session{})
	require.Len(t, stats.Errors, 1)

	events := harness.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "nlp.category", events[0].Operation)
	assert.Contains(t, events[0].Error, "access denied")
}

func TestClassifyCategoryLowConfidenceCollapses(t *testing.T) {
	client := newScriptedClient()
	client.responses[categorySystem] = `{"category": "food", "confidence": 0.2}`
	a := newTestAnalyzer(t, client)

	res, _, err := a.ClassifyCategory(context.Background(), "something vague", Session{})
	require.NoError(t, err)
	assert.Equal(t, normalize.RootGeneral, res.Primary)
}

func TestClassifyCategoryUnknownLabelCollapses(t *testing.T) {
	client := newScriptedClient()
	client.responses[categorySystem] = `{"category": "underwater basket weaving", "confidence": 0.9}`
	a := newTestAnalyzer(t, client)

	res, _, err := a.ClassifyCategory(context.Background(), "weird query", Session{})
	require.NoError(t, err)
	assert.Equal(t, normalize.RootGeneral, res.Primary)
}

func TestExtractEntitiesDeduplicates(t *testing.T) {
	client := newScriptedClient()
	client.responses[entitySystem] = `{"locations": ["Bombay", "mumbai", "Pune"],
		"business_names": [], "times": [], "prices": ["cheap", "budget"], "features": [], "confidence": 0.7}`
	a := newTestAnalyzer(t, client)

	res, _, err := a.ExtractEntities(context.Background(), "cheap food in bombay or pune", Session{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Mumbai", "Pune"}, res.Locations)
	assert.Equal(t, []string{"$"}, res.Prices)
}

func TestParseIntentGarbage(t *testing.T) {
	res := parseIntent("the model refuses to answer")
	assert.Equal(t, models.IntentUnknown, res.Intent)

	res = parseIntent(`{"intent": "purchase", "confidence": 0.9}`)
	assert.Equal(t, models.IntentUnknown, res.Intent)
}

func TestExtractJSONFenced(t *testing.T) {
	body, ok := extractJSON("Here you go:\n```json\n{\"intent\": \"search\", \"confidence\": 0.9}\n```")
	require.True(t, ok)
	assert.JSONEq(t, `{"intent": "search", "confidence": 0.9}`, body)

	_, ok = extractJSON("no json here")
	assert.False(t, ok)
}

func TestHeuristicIntent(t *testing.T) {
	tests := []struct {
		query string
		want  models.Intent
	}{
		{"book a table for two", models.IntentBook},
		{"dominos vs pizza hut", models.IntentCompare},
		{"reviews of blue tokai", models.IntentReview},
		{"directions to phoenix mall", models.IntentDirections},
		{"coffee near me", models.IntentSearch},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, heuristicIntent(tt.query).Intent, tt.query)
	}
}

func TestStubClientEndToEnd(t *testing.T) {
	a := newTestAnalyzer(t, NewStubClient(normalize.DefaultTaxonomy()))

	analysis, stats := a.AnalyzeQuery(context.Background(), "cheap gyms in Mumbai", Session{})
	assert.Equal(t, models.IntentSearch, analysis.Intent.Intent)
	assert.Equal(t, "fitness", analysis.Category.Primary)
	assert.Equal(t, []string{"$"}, analysis.Entities.Prices)
	assert.Empty(t, stats.Errors)
}

func TestExtractQuotedQuery(t *testing.T) {
	got := extractQuotedQuery(intentPrompt(`best "hidden" cafes`))
	assert.Equal(t, `best "hidden" cafes`, got)
}
