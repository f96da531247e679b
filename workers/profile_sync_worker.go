// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"nomad-gis/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteProfile matches one entry of the identity service's change feed.
type RemoteProfile struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	Role              string    `json:"role"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// GetProfileChangesResponse is the top-level structure of the sync service response.
type GetProfileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

var errIncompleteProfile = errors.New("incomplete profile")

// profileColumns are the only user columns the identity service owns.
var profileColumns = []string{"username", "email", "avatar_url", "role", "updated_at"}

// ProfileSyncWorker mirrors identity profiles into the users table. It never
// writes experience or level.
type ProfileSyncWorker struct {
	db           *gorm.DB
	log          *zap.Logger
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client

	mu     sync.Mutex
	cursor time.Time
}

func NewProfileSyncWorker(db *gorm.DB, log *zap.Logger, baseURL, endpointPath, serviceToken string, interval time.Duration) (*ProfileSyncWorker, error) {
	if _, err := url.Parse(baseURL); err != nil || strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("invalid identity sync URL %q", baseURL)
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileSyncWorker{
		db:           db,
		log:          log.Named("profile_sync"),
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	w.log.Info("starting profile sync worker", zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		w.log.Warn("initial profile sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.log.Error("profile sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.log.Info("profile sync worker stopped")
			return
		}
	}
}

// SyncOnce fetches changes since the last seen updated_at and upserts them. It
// returns the number of profiles written.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	profiles, err := w.fetch(ctx, w.cursor)
	if err != nil {
		return 0, err
	}
	if len(profiles) == 0 {
		w.log.Debug("no profile changes", zap.Time("since", w.cursor))
		return 0, nil
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].UpdatedAt.Before(profiles[j].UpdatedAt)
	})

	// The cursor stops at the first write failure so that profile is fetched
	// again next run. Incomplete profiles can never be written and are skipped.
	var upserted, failed int
	start, held := w.cursor, false
	for _, p := range profiles {
		if err := w.upsert(ctx, p); err != nil {
			w.log.Warn("profile upsert failed", zap.String("user_id", p.ID), zap.String("username", p.Username), zap.Error(err))
			if errors.Is(err, errIncompleteProfile) {
				continue
			}
			failed++
			if !held && !w.cursor.Before(p.UpdatedAt) {
				w.cursor = start
			}
			held = true
			continue
		}
		upserted++
		if !held && p.UpdatedAt.After(w.cursor) {
			w.cursor = p.UpdatedAt
		}
	}

	w.log.Info("profiles synced",
		zap.Int("received", len(profiles)),
		zap.Int("upserted", upserted),
		zap.Int("failed", failed),
		zap.Time("cursor", w.cursor),
	)
	return upserted, nil
}

func (w *ProfileSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base sync service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request to %s: %w", endpointURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service non-200 response: %d: %s", resp.StatusCode, string(body))
	}

	var response GetProfileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.Users, nil
}

func (w *ProfileSyncWorker) upsert(ctx context.Context, p RemoteProfile) error {
	if p.ID == "" || p.Username == "" || p.Email == "" {
		return errIncompleteProfile
	}
	role := p.Role
	if role == "" {
		role = models.RoleUser
	}

	local := models.User{
		ID:        p.ID,
		Username:  p.Username,
		Email:     p.Email,
		AvatarURL: p.ProfilePictureURL,
		Role:      role,
		Level:     1,
		Timestamps: models.Timestamps{
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		},
	}
	return w.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(profileColumns),
	}).Create(&local).Error
}
