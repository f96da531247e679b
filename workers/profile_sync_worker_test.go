package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"nomad-gis/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

type feed struct {
	mu      sync.Mutex
	pages   [][]RemoteProfile
	queries []string
	tokens  []string
}

func (f *feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, r.URL.Query().Get("since"))
	f.tokens = append(f.tokens, r.Header.Get("X-Service-Token"))

	var users []RemoteProfile
	if len(f.pages) > 0 {
		users, f.pages = f.pages[0], f.pages[1:]
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(GetProfileChangesResponse{Users: users})
}

func TestProfileSyncWorker_UpsertsProfileColumnsOnly(t *testing.T) {
	db := newTestDB(t)

	existingID := uuid.NewString()
	require.NoError(t, db.Create(&models.User{
		ID:         existingID,
		Username:   "old-name",
		Email:      "old@example.com",
		Experience: 42,
		Level:      3,
	}).Error)

	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	avatar := "https://cdn.example.com/a.png"
	newID := uuid.NewString()
	f := &feed{pages: [][]RemoteProfile{
		{
			{ID: existingID, Username: "new-name", Email: "new@example.com", ProfilePictureURL: &avatar, Role: models.RoleAdmin, UpdatedAt: updated},
			{ID: newID, Username: "fresh", Email: "fresh@example.com", UpdatedAt: updated.Add(-time.Hour)},
		},
	}}
	srv := httptest.NewServer(f)
	defer srv.Close()

	w, err := NewProfileSyncWorker(db, nil, srv.URL, "/api/v1/public/profiles", "svc-token", time.Minute)
	require.NoError(t, err)

	n, err := w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var existing models.User
	require.NoError(t, db.First(&existing, "id = ?", existingID).Error)
	assert.Equal(t, "new-name", existing.Username)
	assert.Equal(t, "new@example.com", existing.Email)
	assert.Equal(t, models.RoleAdmin, existing.Role)
	require.NotNil(t, existing.AvatarURL)
	assert.Equal(t, avatar, *existing.AvatarURL)
	assert.Equal(t, int64(42), existing.Experience)
	assert.Equal(t, 3, existing.Level)

	var fresh models.User
	require.NoError(t, db.First(&fresh, "id = ?", newID).Error)
	assert.Equal(t, models.RoleUser, fresh.Role)
	assert.Equal(t, 1, fresh.Level)
	assert.Equal(t, int64(0), fresh.Experience)

	_, err = w.SyncOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, f.queries, 2)
	assert.Equal(t, time.Time{}.Format(time.RFC3339), f.queries[0])
	assert.Equal(t, updated.Format(time.RFC3339), f.queries[1])
	assert.Equal(t, []string{"svc-token", "svc-token"}, f.tokens)
}

func TestProfileSyncWorker_FailedUpsertHoldsCursor(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.User{ID: uuid.NewString(), Username: "taken", Email: "taken@example.com"}).Error)

	t1 := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	blockedID, laterID := uuid.NewString(), uuid.NewString()
	later := RemoteProfile{ID: laterID, Username: "later", Email: "later@example.com", UpdatedAt: t2}
	f := &feed{pages: [][]RemoteProfile{
		{later, {ID: blockedID, Username: "blocked", Email: "taken@example.com", UpdatedAt: t1}},
		{{ID: blockedID, Username: "blocked", Email: "blocked@example.com", UpdatedAt: t1}, later},
	}}
	srv := httptest.NewServer(f)
	defer srv.Close()

	w, err := NewProfileSyncWorker(db, nil, srv.URL, "/profiles", "t", time.Minute)
	require.NoError(t, err)

	n, err := w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var blocked models.User
	require.NoError(t, db.First(&blocked, "id = ?", blockedID).Error)
	assert.Equal(t, "blocked@example.com", blocked.Email)

	_, err = w.SyncOnce(context.Background())
	require.NoError(t, err)

	zero := time.Time{}.Format(time.RFC3339)
	assert.Equal(t, []string{zero, zero, t2.Format(time.RFC3339)}, f.queries)
}

func TestProfileSyncWorker_Non200(t *testing.T) {
	db := newTestDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	w, err := NewProfileSyncWorker(db, nil, srv.URL, "/profiles", "bad", time.Minute)
	require.NoError(t, err)

	_, err = w.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestProfileSyncWorker_SkipsIncompleteProfiles(t *testing.T) {
	db := newTestDB(t)
	f := &feed{pages: [][]RemoteProfile{{{ID: uuid.NewString(), Username: "", Email: "x@example.com"}}}}
	srv := httptest.NewServer(f)
	defer srv.Close()

	w, err := NewProfileSyncWorker(db, nil, srv.URL, "/profiles", "t", time.Minute)
	require.NoError(t, err)

	n, err := w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}
