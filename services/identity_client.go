// word-battle-system/services/identity_client.go
package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// IdentityClient talks to the identity service. In normal operation the
// gateway has already validated the caller and forwards X-User-ID, so
// this client only covers profile lookups the mirror cannot answer.
type IdentityClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type ProfileResponse struct {
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

func NewIdentityClient(baseURL, token string) *IdentityClient {
	return &IdentityClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetProfile fetches one user's public profile.
func (c *IdentityClient) GetProfile(userID string) (*ProfileResponse, error) {
	url := fmt.Sprintf("%s/api/v1/public/profiles/%s", c.BaseURL, userID)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("profile fetch failed: %d: %s", resp.StatusCode, string(body))
	}

	var out ProfileResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
