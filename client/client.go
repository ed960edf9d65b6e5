// Package client is the headless participant side of a battle: an API
// client for the lobby service, a poller that turns the shared lobby
// record into edge-triggered events, and a match runner that plays a
// started battle through to its resolved result. The mobile app
// implements the same loops; this package drives bots and end-to-end
// tests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"word-battle-system/models"
	"word-battle-system/services"
)

// APIClient calls the battle service as one authenticated participant.
// Requests carry the gateway shared secret plus the participant's
// X-User-ID, the same shape the gateway produces for the app.
type APIClient struct {
	BaseURL      string
	GatewayToken string
	UserID       string
	HTTPClient   *http.Client
}

func NewAPIClient(baseURL, gatewayToken, userID string) *APIClient {
	return &APIClient{
		BaseURL:      baseURL,
		GatewayToken: gatewayToken,
		UserID:       userID,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the battle service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("battle service returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the battle service.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a 409 — the expected soft failure
// when a guarded write lost its race.
func IsConflict(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusConflict
}

// IsForbidden reports whether err is a 403 — the caller is not (or no
// longer) a participant of the lobby.
func IsForbidden(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusForbidden
}

func (c *APIClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.GatewayToken)
	req.Header.Set("X-User-ID", c.UserID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call battle service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = json.Unmarshal(raw, &errBody)
		if errBody.Error == "" {
			errBody.Error = string(raw)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errBody.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *APIClient) CreateLobby(ctx context.Context, req services.CreateLobbyRequest) (*models.Lobby, error) {
	var lobby models.Lobby
	if err := c.do(ctx, "POST", "/lobbies", req, &lobby); err != nil {
		return nil, err
	}
	return &lobby, nil
}

func (c *APIClient) PreviewLobby(ctx context.Context, code string) (*services.LobbyPreview, error) {
	var preview services.LobbyPreview
	if err := c.do(ctx, "GET", "/lobbies/code/"+code+"/preview", nil, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

func (c *APIClient) JoinLobby(ctx context.Context, code string) (*models.Lobby, error) {
	var lobby models.Lobby
	if err := c.do(ctx, "POST", "/lobbies/code/"+code+"/join", nil, &lobby); err != nil {
		return nil, err
	}
	return &lobby, nil
}

func (c *APIClient) GetLobby(ctx context.Context, id string) (*models.Lobby, error) {
	var lobby models.Lobby
	if err := c.do(ctx, "GET", "/lobbies/"+id, nil, &lobby); err != nil {
		return nil, err
	}
	return &lobby, nil
}

func (c *APIClient) AcceptOpponent(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "/lobbies/"+id+"/accept", nil, nil)
}

func (c *APIClient) RejectOpponent(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "/lobbies/"+id+"/reject", nil, nil)
}

func (c *APIClient) KickOpponent(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "/lobbies/"+id+"/kick", nil, nil)
}

func (c *APIClient) MarkReady(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "/lobbies/"+id+"/ready", nil, nil)
}

func (c *APIClient) LeaveLobby(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "/lobbies/"+id+"/leave", nil, nil)
}

func (c *APIClient) StartMatch(ctx context.Context, id string) (*models.Lobby, error) {
	var lobby models.Lobby
	if err := c.do(ctx, "POST", "/lobbies/"+id+"/start", nil, &lobby); err != nil {
		return nil, err
	}
	return &lobby, nil
}

func (c *APIClient) ResetMatch(ctx context.Context, id string) (*models.Lobby, error) {
	var lobby models.Lobby
	if err := c.do(ctx, "POST", "/lobbies/"+id+"/reset", nil, &lobby); err != nil {
		return nil, err
	}
	return &lobby, nil
}

func (c *APIClient) SubmitScore(ctx context.Context, id string, score int64, stats models.PlayerStats) error {
	return c.do(ctx, "POST", "/lobbies/"+id+"/score", services.SubmitScoreRequest{
		Score: score,
		Stats: stats,
	}, nil)
}

func (c *APIClient) ReadScores(ctx context.Context, id string) (*services.ScoreboardResponse, error) {
	var scores services.ScoreboardResponse
	if err := c.do(ctx, "GET", "/lobbies/"+id+"/scores", nil, &scores); err != nil {
		return nil, err
	}
	return &scores, nil
}

func (c *APIClient) ResolveResult(ctx context.Context, id string) (*services.MatchResultResponse, error) {
	var result services.MatchResultResponse
	if err := c.do(ctx, "POST", "/lobbies/"+id+"/resolve", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
