package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"word-battle-system/utils"

	"github.com/gosimple/slug"
)

// QuestionItem is one quiz item served by the content service. For
// vocab mode Prompt is the word to translate; for sentence mode it is a
// cloze sentence. Answer stays local to the client for self-checking —
// there is no server-side verification in this design.
type QuestionItem struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"`
	Answer  string   `json:"answer"`
	Mode    string   `json:"mode"`
}

// ContentClient fetches question pools from the vocabulary content
// service. Each participant fetches its own pool, so the two sides are
// not guaranteed identical question sets.
type ContentClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewContentClient(baseURL, token string) *ContentClient {
	return &ContentClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: utils.HTTPClient,
	}
}

// FetchQuestions pulls up to limit items for a category/subcategory and
// mode. Subcategory 0 means mix all subcategories and is simply omitted
// from the query.
func (c *ContentClient) FetchQuestions(ctx context.Context, category string, subcategory int, mode string, limit int) ([]QuestionItem, error) {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/questions", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("category", slug.Make(category))
	if subcategory > 0 {
		q.Set("subcategory", strconv.Itoa(subcategory))
	}
	q.Set("mode", mode)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call content service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("content service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Questions []QuestionItem `json:"questions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode content service response: %w", err)
	}

	return response.Questions, nil
}
