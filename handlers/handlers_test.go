package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"nomad-gis/metrics"
	"nomad-gis/models"
	"nomad-gis/services"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testServer struct {
	app *fiber.App
	db  *gorm.DB
	svc Services
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	m := metrics.New(prometheus.NewRegistry())
	ledger := services.NewProgressionLedger(m)
	engine := services.NewAchievementEngine(nil, m)
	catalog := services.NewCatalogService(db, nil, nil)
	_, err = catalog.EnsureDefaultAchievements(context.Background())
	require.NoError(t, err)

	svc := Services{
		Unlock:      services.NewUnlockOrchestrator(db, ledger, engine, services.DefaultUnlockXP, nil, m),
		Social:      services.NewSocialEventOrchestrator(db, engine, nil, m),
		Progression: services.NewProgressionService(db, ledger, nil, m),
		Leaderboard: services.NewLeaderboardService(db, 10, nil),
		Catalog:     catalog,
		Stats:       services.NewStatsService(db),
	}
	app := fiber.New()
	Setup(app, svc, nil)
	return &testServer{app: app, db: db, svc: svc}
}

func (s *testServer) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com"}
	require.NoError(t, s.db.Create(u).Error)
	return u
}

func (s *testServer) point(t *testing.T, lat, lon, radius float64) *models.MapPoint {
	t.Helper()
	p := &models.MapPoint{Name: "P", Latitude: lat, Longitude: lon, UnlockRadiusMeters: radius}
	require.NoError(t, s.db.Create(p).Error)
	return p
}

type call struct {
	method, path string
	userID       string
	roles        string
	body         interface{}
}

func (s *testServer) do(t *testing.T, c call, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}
	if c.roles != "" {
		req.Header.Set("X-User-Roles", c.roles)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestCheckLocation(t *testing.T) {
	s := newTestServer(t)
	u := s.user(t, "walker")
	p := s.point(t, 0, 0, 50)

	var out services.GameEventOutcome
	status := s.do(t, call{method: "POST", path: "/game/check-location", userID: u.ID,
		body: map[string]float64{"latitude": 0.0001, "longitude": 0.0001}}, &out)
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, out.Success)
	require.NotNil(t, out.UnlockedPointID)
	assert.Equal(t, p.ID, *out.UnlockedPointID)

	out = services.GameEventOutcome{}
	status = s.do(t, call{method: "POST", path: "/game/check-location", userID: u.ID,
		body: map[string]float64{"latitude": 0.0001, "longitude": 0.0001}}, &out)
	assert.Equal(t, fiber.StatusOK, status)
	assert.False(t, out.Success)

	status = s.do(t, call{method: "POST", path: "/game/check-location", userID: u.ID,
		body: map[string]float64{"latitude": 0.0001}}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status = s.do(t, call{method: "POST", path: "/game/check-location", userID: u.ID,
		body: map[string]float64{"latitude": 100, "longitude": 0}}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status = s.do(t, call{method: "POST", path: "/game/check-location", userID: uuid.NewString(),
		body: map[string]float64{"latitude": 0, "longitude": 0}}, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status = s.do(t, call{method: "POST", path: "/game/check-location",
		body: map[string]float64{"latitude": 0, "longitude": 0}}, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestMessageRoutes(t *testing.T) {
	s := newTestServer(t)
	author := s.user(t, "author")
	fan := s.user(t, "fan")
	p := s.point(t, 1, 1, 50)

	var posted services.GameEventOutcome
	status := s.do(t, call{method: "POST", path: "/messages", userID: author.ID,
		body: map[string]string{"map_point_id": p.ID, "content": "hello"}}, &posted)
	require.Equal(t, fiber.StatusCreated, status)
	require.NotNil(t, posted.CreatedMessage)
	assert.Len(t, posted.UnlockedAchievements, 1)
	msgID := posted.CreatedMessage.ID

	status = s.do(t, call{method: "POST", path: "/messages", userID: author.ID,
		body: map[string]string{"map_point_id": p.ID, "content": ""}}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	var liked services.GameEventOutcome
	status = s.do(t, call{method: "POST", path: "/messages/" + msgID + "/like", userID: fan.ID}, &liked)
	assert.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, liked.IsLiked)
	assert.True(t, *liked.IsLiked)

	var views []services.MessageView
	status = s.do(t, call{method: "GET", path: "/messages/point/" + p.ID, userID: fan.ID}, &views)
	assert.Equal(t, fiber.StatusOK, status)
	require.Len(t, views, 1)
	assert.Equal(t, int64(1), views[0].LikesCount)
	assert.True(t, views[0].IsLikedByCurrentUser)

	status = s.do(t, call{method: "DELETE", path: "/messages/" + msgID, userID: fan.ID}, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status = s.do(t, call{method: "DELETE", path: "/admin/messages/" + msgID, userID: fan.ID, roles: "User"}, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status = s.do(t, call{method: "DELETE", path: "/admin/messages/" + msgID, userID: fan.ID, roles: "Admin"}, nil)
	assert.Equal(t, fiber.StatusNoContent, status)

	status = s.do(t, call{method: "DELETE", path: "/messages/" + msgID, userID: author.ID}, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestProgressAndAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	u := s.user(t, "player")
	admin := s.user(t, "boss")

	var grant map[string]interface{}
	status := s.do(t, call{method: "POST", path: "/admin/xp/grant", userID: admin.ID, roles: "Admin",
		body: map[string]interface{}{"user_id": u.ID, "xp": 400, "reason": "tournament"}}, &grant)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, grant["leveled_up"])

	status = s.do(t, call{method: "POST", path: "/admin/xp/grant", userID: admin.ID, roles: "Admin",
		body: map[string]interface{}{"user_id": u.ID, "xp": 0}}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status = s.do(t, call{method: "POST", path: "/admin/xp/grant", userID: admin.ID, roles: "Admin",
		body: map[string]interface{}{"user_id": u.ID, "xp": int64(math.MaxInt64)}}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	var view services.ProgressView
	status = s.do(t, call{method: "GET", path: "/user/progress", userID: u.ID}, &view)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 3, view.User.Level)
	assert.Equal(t, int64(71), view.User.Experience)

	var stats services.DashboardStats
	status = s.do(t, call{method: "GET", path: "/admin/stats", userID: admin.ID, roles: "Admin"}, &stats)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, int64(2), stats.TotalUsers)
}

func TestLeaderboardRoute(t *testing.T) {
	s := newTestServer(t)
	u := s.user(t, "leader")
	s.point(t, 0, 0, 50)
	_, err := s.svc.Unlock.CheckAndUnlock(context.Background(), u.ID, 0, 0)
	require.NoError(t, err)
	require.NoError(t, s.svc.Leaderboard.Refresh(context.Background()))

	var body struct {
		Board   string                    `json:"board"`
		Entries []models.LeaderboardEntry `json:"entries"`
	}
	status := s.do(t, call{method: "GET", path: "/leaderboard/points", userID: u.ID}, &body)
	assert.Equal(t, fiber.StatusOK, status)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, u.ID, body.Entries[0].UserID)

	status = s.do(t, call{method: "GET", path: "/leaderboard/unknown", userID: u.ID}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := s.user(t, "admin")

	var p models.MapPoint
	status := s.do(t, call{method: "POST", path: "/admin/points", userID: admin.ID, roles: "Admin",
		body: map[string]interface{}{"name": "Tower", "latitude": 43.2, "longitude": 76.9, "unlock_radius_meters": 40}}, &p)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.NotEmpty(t, p.ID)

	var points []models.MapPoint
	status = s.do(t, call{method: "GET", path: "/points", userID: admin.ID}, &points)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, points, 1)

	form := &bytes.Buffer{}
	mw := multipart.NewWriter(form)
	require.NoError(t, mw.WriteField("code", "early_bird"))
	require.NoError(t, mw.WriteField("title", "Early Bird"))
	require.NoError(t, mw.WriteField("reward_points", "15"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/admin/achievements", form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", admin.ID)
	req.Header.Set("X-User-Roles", "Admin")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var created models.Achievement
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "EARLY_BIRD", created.Code)
	assert.Equal(t, int64(15), created.RewardPoints)

	var list []models.Achievement
	status = s.do(t, call{method: "GET", path: "/achievements", userID: admin.ID}, &list)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, list, len(models.DefaultAchievements)+1)

	status = s.do(t, call{method: "DELETE", path: "/admin/achievements/" + created.ID, userID: admin.ID, roles: "Admin"}, nil)
	assert.Equal(t, fiber.StatusNoContent, status)
	status = s.do(t, call{method: "DELETE", path: "/admin/achievements/" + created.ID, userID: admin.ID, roles: "Admin"}, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}
