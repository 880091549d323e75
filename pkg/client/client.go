package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/terra-clan/bracket-engine/internal/models"
)

// Client is a Go SDK for the bracket-engine API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new bracket-engine client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error envelope returned by the server. It matches the
// engine's error taxonomy with errors.Is.
type APIError struct {
	Status  int                        `json:"-"`
	Code    string                     `json:"code"`
	Message string                     `json:"message"`
	Missing []models.MissingCompetitor `json:"missing,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Code, e.Message)
}

// Is maps the error code onto the engine's sentinel errors
func (e *APIError) Is(target error) bool {
	switch e.Code {
	case "validation_error":
		return target == models.ErrValidation
	case "forbidden":
		return target == models.ErrUnauthorized
	case "conflict":
		return target == models.ErrConflict
	case "not_found":
		return target == models.ErrNotFound
	case "external_service_error":
		return target == models.ErrExternalService
	}
	return false
}

// ScoreRequest is one judge's submission for one competitor
type ScoreRequest struct {
	JudgeID      string               `json:"judge_id"`
	CompetitorID string               `json:"competitor_id"`
	Value        *float64             `json:"value,omitempty"`
	Card         *models.SparringCard `json:"card,omitempty"`
}

// CategoryRequest creates or updates a category
type CategoryRequest struct {
	Name       string            `json:"name"`
	Discipline models.Discipline `json:"discipline"`
	Tatami     string            `json:"tatami,omitempty"`
}

// RegistrationRequest mirrors a registration record
type RegistrationRequest struct {
	Name     string `json:"name"`
	Club     string `json:"club,omitempty"`
	Approved bool   `json:"approved"`
	Paid     bool   `json:"paid"`
}

// JudgeRequest mirrors a judge assignment
type JudgeRequest struct {
	Tatami    string `json:"tatami,omitempty"`
	Confirmed bool   `json:"confirmed"`
}

// RoundRequest creates a forms round
type RoundRequest struct {
	Level         string   `json:"level"`
	CompetitorIDs []string `json:"competitor_ids"`
	Replace       bool     `json:"replace"`
}

// NextLevel is the outcome of a progression request
type NextLevel struct {
	Generated bool                  `json:"generated"`
	Units     []*models.ContestUnit `json:"units"`
}

type unitList struct {
	Units []*models.ContestUnit `json:"units"`
	Total int                   `json:"total"`
}

// SubmitScore records or replaces a judge's score
func (c *Client) SubmitScore(ctx context.Context, unitID string, req ScoreRequest) (*models.ScoreEntry, error) {
	var entry models.ScoreEntry
	if err := c.call(ctx, http.MethodPost, "/api/v1/units/"+url.PathEscape(unitID)+"/scores", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetResult returns the current result of a unit
func (c *Client) GetResult(ctx context.Context, unitID string) (*models.Result, error) {
	var result models.Result
	if err := c.call(ctx, http.MethodGet, "/api/v1/units/"+url.PathEscape(unitID)+"/result", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ResolveWinner completes a match from the scores submitted so far
func (c *Client) ResolveWinner(ctx context.Context, unitID string) (*models.ContestUnit, error) {
	var unit models.ContestUnit
	if err := c.call(ctx, http.MethodPost, "/api/v1/units/"+url.PathEscape(unitID)+"/resolve", nil, &unit); err != nil {
		return nil, err
	}
	return &unit, nil
}

// SetUnitStatus applies an explicit status change to a unit
func (c *Client) SetUnitStatus(ctx context.Context, unitID string, status models.UnitStatus) (*models.ContestUnit, error) {
	var unit models.ContestUnit
	body := map[string]models.UnitStatus{"status": status}
	if err := c.call(ctx, http.MethodPut, "/api/v1/units/"+url.PathEscape(unitID)+"/status", body, &unit); err != nil {
		return nil, err
	}
	return &unit, nil
}

// ListCategories lists categories, optionally of one discipline
func (c *Client) ListCategories(ctx context.Context, discipline models.Discipline) ([]*models.Category, error) {
	path := "/api/v1/categories"
	if discipline != "" {
		path += "?discipline=" + url.QueryEscape(string(discipline))
	}

	var out struct {
		Categories []*models.Category `json:"categories"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

// PutCategory creates or updates a category
func (c *Client) PutCategory(ctx context.Context, categoryID string, req CategoryRequest) (*models.Category, error) {
	var cat models.Category
	if err := c.call(ctx, http.MethodPut, categoryPath(categoryID, ""), req, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// PutRegistration mirrors a competitor's registration
func (c *Client) PutRegistration(ctx context.Context, categoryID, competitorID string, req RegistrationRequest) (*models.Registration, error) {
	var reg models.Registration
	if err := c.call(ctx, http.MethodPut, categoryPath(categoryID, "/registrations/"+url.PathEscape(competitorID)), req, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// PutJudge mirrors a judge assignment
func (c *Client) PutJudge(ctx context.Context, categoryID, judgeID string, req JudgeRequest) (*models.JudgeAssignment, error) {
	var a models.JudgeAssignment
	if err := c.call(ctx, http.MethodPut, categoryPath(categoryID, "/judges/"+url.PathEscape(judgeID)), req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GenerateDraws creates the first level of a category
func (c *Client) GenerateDraws(ctx context.Context, categoryID string, replace bool) (*models.Bracket, error) {
	var bracket models.Bracket
	body := map[string]bool{"replace": replace}
	if err := c.call(ctx, http.MethodPost, categoryPath(categoryID, "/draws"), body, &bracket); err != nil {
		return nil, err
	}
	return &bracket, nil
}

// GetBracket returns every level of a category
func (c *Client) GetBracket(ctx context.Context, categoryID string) (*models.Bracket, error) {
	var bracket models.Bracket
	if err := c.call(ctx, http.MethodGet, categoryPath(categoryID, "/bracket"), nil, &bracket); err != nil {
		return nil, err
	}
	return &bracket, nil
}

// CreateRound creates a forms round
func (c *Client) CreateRound(ctx context.Context, categoryID string, req RoundRequest) ([]*models.ContestUnit, error) {
	var out unitList
	if err := c.call(ctx, http.MethodPost, categoryPath(categoryID, "/rounds"), req, &out); err != nil {
		return nil, err
	}
	return out.Units, nil
}

// CreateBronzeMatch creates the bronze match between two competitors
func (c *Client) CreateBronzeMatch(ctx context.Context, categoryID, competitorID, opponentID string) (*models.ContestUnit, error) {
	var unit models.ContestUnit
	body := map[string]string{"competitor_id": competitorID, "opponent_id": opponentID}
	if err := c.call(ctx, http.MethodPost, categoryPath(categoryID, "/bronze"), body, &unit); err != nil {
		return nil, err
	}
	return &unit, nil
}

// GenerateNextLevel advances a completed level
func (c *Client) GenerateNextLevel(ctx context.Context, categoryID, level string) (*NextLevel, error) {
	var out NextLevel
	if err := c.call(ctx, http.MethodPost, levelPath(categoryID, level, "/next"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignPlacements ranks the terminal forms round
func (c *Client) AssignPlacements(ctx context.Context, categoryID, level string) ([]*models.ContestUnit, error) {
	var out unitList
	if err := c.call(ctx, http.MethodPost, levelPath(categoryID, level, "/placements"), nil, &out); err != nil {
		return nil, err
	}
	return out.Units, nil
}

// GetScoreboard returns the scoreboard of one level
func (c *Client) GetScoreboard(ctx context.Context, categoryID, level string) ([]models.ScoreboardRow, error) {
	var out struct {
		Rows []models.ScoreboardRow `json:"rows"`
	}
	if err := c.call(ctx, http.MethodGet, levelPath(categoryID, level, "/scoreboard"), nil, &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	return err
}

func categoryPath(categoryID, suffix string) string {
	return "/api/v1/categories/" + url.PathEscape(categoryID) + suffix
}

func levelPath(categoryID, level, suffix string) string {
	return categoryPath(categoryID, "/levels/"+url.PathEscape(level)+suffix)
}

// call sends body as JSON and decodes the data of the response envelope
// into out
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := c.doRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	endpoint := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			envelope.Error.Status = resp.StatusCode
			return nil, envelope.Error
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
