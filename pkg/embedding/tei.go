package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

type infoResponse struct {
	ModelID string `json:"model_id"`
}

// TEIClient talks to a text-embeddings-inference server. The server owns the
// single embedding model for the process; the model version is fetched lazily
// from /info on first use and cached.
type TEIClient struct {
	BaseURL    string
	HTTPClient *http.Client

	mu      sync.Mutex
	version string
}

func NewTEIClient(baseURL string) *TEIClient {
	return &TEIClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *TEIClient) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	jsonData, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/embed", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d, got %d", ErrNoOutput, len(texts), len(vectors))
	}

	return vectors, nil
}

func (c *TEIClient) ModelVersion(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version != "" {
		return c.version, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/info", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to query model info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("embedding service info returned status %d", resp.StatusCode)
	}

	var info infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("failed to unmarshal info: %w", err)
	}
	if info.ModelID == "" {
		return "", fmt.Errorf("embedding service reported empty model id")
	}

	c.version = info.ModelID
	return c.version, nil
}
