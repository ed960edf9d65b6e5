// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"word-battle-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteProfile matches the JSON served by the identity service's
// public profile feed.
type RemoteProfile struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Profiles []RemoteProfile `json:"profiles"`
}

// ProfileSyncWorker incrementally mirrors identity-service profiles
// into profile_mirror so lobby previews and result resolution can show
// display names without a per-request upstream call.
type ProfileSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewProfileSyncWorker(db *gorm.DB, identityBaseURL, endpointPath, serviceToken string) *ProfileSyncWorker {
	return &ProfileSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      identityBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	log.Println("[ProfileSync] starting (identity service -> profile_mirror)")
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	// Initial backfill from the beginning of time.
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("[ProfileSync] initial sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx, w.getLastSyncTime()); err != nil {
				log.Printf("[ProfileSync] sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("[ProfileSync] stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt in the local mirror.
func (w *ProfileSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM profile_mirror").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

// syncBatch fetches profile changes since the given time and upserts
// them into the mirror.
func (w *ProfileSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid identity service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpointURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to identity service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("identity service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode identity service response: %w", err)
	}

	if len(response.Profiles) == 0 {
		return nil
	}

	var upserted, failed int
	for _, remote := range response.Profiles {
		mirror := models.ProfileMirror{
			ID:             uuid.NewString(),
			ExternalUserID: remote.ExternalID,
			Username:       remote.Username,
			DisplayName:    remote.DisplayName,
			AvatarURL:      remote.AvatarURL,
			CreatedAt:      remote.CreatedAt,
			UpdatedAt:      remote.UpdatedAt,
		}
		err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "display_name", "avatar_url", "updated_at",
			}),
		}).Create(&mirror).Error
		if err != nil {
			failed++
			log.Printf("[ProfileSync] upsert failed for %s: %v", remote.ExternalID, err)
			continue
		}
		upserted++
	}

	log.Printf("[ProfileSync] upserted %d profile(s), %d failed", upserted, failed)
	return nil
}
