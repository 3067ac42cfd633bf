// Package extraction provides the client for the external AI extraction
// service that scans document fragments and proposes knowledge candidates.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ofisk/loresmith-ai-sub003/internal/config"
	"github.com/ofisk/loresmith-ai-sub003/internal/model"
)

// Client defines the operations of the extraction service.
type Client interface {
	// Extract scans one stored fragment and returns candidate shards.
	Extract(ctx context.Context, req ExtractRequest) ([]model.ExtractedCandidate, error)
	// GenerateField produces a value for a single missing field of a
	// staged shard.
	GenerateField(ctx context.Context, campaignID, shardID, fieldName string) (string, error)
}

// ExtractRequest carries one fragment for the service to scan: its
// object-store key for provenance plus the fragment text itself, so the
// service does not need object-store access.
type ExtractRequest struct {
	FragmentKey string `json:"fragmentKey"`
	Text        string `json:"text"`
	FileName    string `json:"fileName"`
	CampaignID  string `json:"campaignId"`
	ResourceID  string `json:"resourceId"`
}

type extractResponse struct {
	Candidates []model.ExtractedCandidate `json:"candidates"`
}

type generateFieldRequest struct {
	CampaignID string `json:"campaignId"`
	ShardID    string `json:"shardId"`
	FieldName  string `json:"fieldName"`
}

type generateFieldResponse struct {
	Value string `json:"value"`
}

type httpClient struct {
	cfg    config.ExtractionConfig
	client *http.Client
}

// NewClient creates an extraction client from config.
func NewClient(cfg config.ExtractionConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if cfg.TimeoutSeconds == 0 {
		timeout = 120 * time.Second
	}
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) Extract(ctx context.Context, req ExtractRequest) ([]model.ExtractedCandidate, error) {
	var resp extractResponse
	if err := c.post(ctx, "/extract", req, &resp); err != nil {
		return nil, fmt.Errorf("extraction call failed for fragment %s: %w", req.FragmentKey, err)
	}
	return resp.Candidates, nil
}

func (c *httpClient) GenerateField(ctx context.Context, campaignID, shardID, fieldName string) (string, error) {
	req := generateFieldRequest{CampaignID: campaignID, ShardID: shardID, FieldName: fieldName}
	var resp generateFieldResponse
	if err := c.post(ctx, "/generate-field", req, &resp); err != nil {
		return "", fmt.Errorf("field generation failed for shard %s field %s: %w", shardID, fieldName, err)
	}
	return resp.Value, nil
}

func (c *httpClient) post(ctx context.Context, path string, body, out interface{}) error {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+path, bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call extraction api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("extraction api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode extraction response: %w", err)
	}
	return nil
}
