package seeding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/terra-clan/bracket-engine/internal/models"
)

// Assistant calls the external seeding service, which proposes a first
// level that keeps competitors of the same club apart early on.
type Assistant struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the assistant client
type Option func(*Assistant)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(a *Assistant) {
		a.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(a *Assistant) {
		a.httpClient.Timeout = timeout
	}
}

// WithAPIKey sets the bearer token sent with each request
func WithAPIKey(key string) Option {
	return func(a *Assistant) {
		a.apiKey = key
	}
}

// NewAssistant creates a seeding-service client
func NewAssistant(baseURL string, opts ...Option) *Assistant {
	a := &Assistant{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

type proposeRequest struct {
	CategoryID  string              `json:"category_id"`
	Competitors []models.Competitor `json:"competitors"`
}

// ProposeBracket asks the service for a first-level structure. Every
// failure is reported as models.ErrExternalService.
func (a *Assistant) ProposeBracket(ctx context.Context, categoryID string, competitors []models.Competitor) (*Proposal, error) {
	body, err := json.Marshal(proposeRequest{CategoryID: categoryID, Competitors: competitors})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/brackets/propose", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", models.ErrExternalService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", models.ErrExternalService, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", models.ErrExternalService, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", models.ErrExternalService, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var proposal Proposal
	if err := json.Unmarshal(data, &proposal); err != nil {
		return nil, fmt.Errorf("%w: failed to decode proposal: %v", models.ErrExternalService, err)
	}

	return &proposal, nil
}
