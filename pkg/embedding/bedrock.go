package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/placemesh/placemesh/pkg/observability"
)

// BedrockConfig configures the Titan embedding provider
type BedrockConfig struct {
	Region    string
	ModelID   string
	Dimension int
	Version   string
}

// BedrockProvider implements Provider over AWS Bedrock Titan embeddings
type BedrockProvider struct {
	client    *bedrockruntime.Client
	modelID   string
	dimension int
	version   string
	logger    observability.Logger
	metrics   observability.MetricsClient
}

// NewBedrockProvider creates a Titan-backed embedding provider
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig, logger observability.Logger, metrics observability.MetricsClient) (*BedrockProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "amazon.titan-embed-text-v2:0"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if logger == nil {
		logger = observability.NewLogger("embedding.bedrock")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &BedrockProvider{
		client:    bedrockruntime.NewFromConfig(awsCfg),
		modelID:   cfg.ModelID,
		dimension: cfg.Dimension,
		version:   cfg.Version,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions"`
	Normalize  bool   `json:"normalize"`
}

type titanResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the Titan embedding for text
func (p *BedrockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanRequest{
		InputText:  text,
		Dimensions: p.dimension,
		Normalize:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	timer := p.metrics.StartTimer("embedding.latency", nil)
	resp, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
	})
	timer()
	if err != nil {
		p.metrics.IncrementCounter("embedding.errors", 1)
		return nil, fmt.Errorf("failed to invoke embedding model: %w", err)
	}

	var parsed titanResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(parsed.Embedding) != p.dimension {
		p.logger.Error("Embedding dimension mismatch", map[string]interface{}{
			"model":    p.modelID,
			"expected": p.dimension,
			"actual":   len(parsed.Embedding),
		})
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, p.dimension, len(parsed.Embedding))
	}
	return parsed.Embedding, nil
}

// Dimension returns the configured vector length
func (p *BedrockProvider) Dimension() int { return p.dimension }

// Version returns the model version tag
func (p *BedrockProvider) Version() string { return p.version }
