// Package nlp turns a raw query string into a structured analysis: intent,
// category, and entities. The three sub-tasks call an external language
// model and are individually memoized; every call is rate limited, retried
// on transient failures, and falls back to heuristics so a model outage
// never fails a search.
package nlp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// LLMClient is the raw model-invocation collaborator
type LLMClient interface {
	// Generate returns the model's text completion for the prompt
	Generate(ctx context.Context, prompt, system string, maxTokens int, temperature float64) (string, error)
}

// BedrockClient implements LLMClient over AWS Bedrock using the Claude
// messages API.
type BedrockClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockClient creates a Bedrock-backed LLM client
func NewBedrockClient(ctx context.Context, region, modelID string) (*BedrockClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if modelID == "" {
		modelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	return &BedrockClient{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Messages         []claudeMessage `json:"messages"`
	Temperature      float64         `json:"temperature"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Generate invokes the model and returns its text output
func (b *BedrockClient) Generate(ctx context.Context, prompt, system string, maxTokens int, temperature float64) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	body, err := json.Marshal(claudeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           system,
		Messages:         []claudeMessage{{Role: "user", Content: prompt}},
		Temperature:      temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to invoke model: %w", err)
	}

	var parsed claudeResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse model response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("empty model response")
	}
	return parsed.Content[0].Text, nil
}
