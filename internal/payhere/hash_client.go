package payhere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HashClient mints hashes through a remote hash endpoint, for deployments where the
// merchant secret lives in a separate signing service.
type HashClient struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
}

// hashResponse is the envelope returned by POST /api/v1/payments/hash
type hashResponse struct {
	Success bool        `json:"success"`
	Data    *HashResult `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// NewHashClient creates a client for the given hash endpoint URL
func NewHashClient(endpoint, authToken string) *HashClient {
	return &HashClient{
		endpoint:   endpoint,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// MintHash requests a hash for the order. A response without success=true is an error.
func (c *HashClient) MintHash(ctx context.Context, req HashRequest) (*HashResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hash request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create hash request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("hash request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed hashResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode hash response (status %d): %w", resp.StatusCode, err)
	}

	if !parsed.Success || parsed.Data == nil || parsed.Data.Hash == "" {
		msg := strings.TrimSpace(parsed.Error)
		if msg == "" {
			msg = fmt.Sprintf("hash service returned status %d", resp.StatusCode)
		}
		return nil, errors.New(msg)
	}

	return parsed.Data, nil
}
