package services

import (
	"context"
	"fmt"
	"testing"

	"nomad-gis/metrics"
	"nomad-gis/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database. One connection means
// transactions run one at a time, like row locks would force in Postgres.
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

type testEnv struct {
	DB           *gorm.DB
	Metrics      *metrics.Metrics
	Ledger       *ProgressionLedger
	Achievements *AchievementEngine
	Unlock       *UnlockOrchestrator
	Social       *SocialEventOrchestrator
	Progression  *ProgressionService
	Catalog      *CatalogService
}

// newTestEnv wires the services over a fresh database with the default catalog seeded.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	m := metrics.New(prometheus.NewRegistry())
	ledger := NewProgressionLedger(m)
	engine := NewAchievementEngine(nil, m)

	env := &testEnv{
		DB:           db,
		Metrics:      m,
		Ledger:       ledger,
		Achievements: engine,
		Unlock:       NewUnlockOrchestrator(db, ledger, engine, DefaultUnlockXP, nil, m),
		Social:       NewSocialEventOrchestrator(db, engine, nil, m),
		Progression:  NewProgressionService(db, ledger, nil, m),
		Catalog:      NewCatalogService(db, nil, nil),
	}
	_, err := env.Catalog.EnsureDefaultAchievements(context.Background())
	require.NoError(t, err)
	return env
}

func createUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com"}
	require.NoError(t, db.Create(u).Error)
	return u
}

func createPoint(t *testing.T, db *gorm.DB, name string, lat, lon, radius float64) *models.MapPoint {
	t.Helper()
	p := &models.MapPoint{Name: name, Latitude: lat, Longitude: lon, UnlockRadiusMeters: radius}
	require.NoError(t, db.Create(p).Error)
	return p
}

func reloadUser(t *testing.T, db *gorm.DB, id string) *models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	return &u
}

func codes(list []AchievementSummary) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Code)
	}
	return out
}

func rewardOf(t *testing.T, db *gorm.DB, code string) int64 {
	t.Helper()
	var a models.Achievement
	require.NoError(t, db.First(&a, "code = ?", code).Error)
	return a.RewardPoints
}
