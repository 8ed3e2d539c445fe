package postgres_test

import (
	"context"
	goerrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/infrastructure/persistence/postgres"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

// Collaborator-owned master tables the engine mutates. Production never
// migrates these; tests need a schema to write into.
type apiCredentialRow struct {
	ID               string `gorm:"primaryKey"`
	TenantID         string
	Name             string
	RiskScore        float64
	KillSwitchActive bool
	KillReason       *string
	LastRiskEvent    *time.Time
}

func (apiCredentialRow) TableName() string { return "api_credentials" }

type tenantRow struct {
	ID         string `gorm:"primaryKey"`
	ResellerID *string
	Status     string
}

func (tenantRow) TableName() string { return "tenants" }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection, or each pooled connection would see its own in-memory db.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, postgres.Migrate(db))
	require.NoError(t, db.AutoMigrate(&apiCredentialRow{}, &tenantRow{}))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedCredential(t *testing.T, db *gorm.DB, id, tenantID string, score float64, suspended bool) {
	t.Helper()
	require.NoError(t, db.Create(&apiCredentialRow{
		ID:               id,
		TenantID:         tenantID,
		Name:             "key " + id,
		RiskScore:        score,
		KillSwitchActive: suspended,
	}).Error)
}

func TestCredentialRepository_AddRiskScore(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewCredentialRepository(db, logger.NewNoopLogger())
	ctx := context.Background()
	seedCredential(t, db, "key-1", "t1", 0, false)

	score, err := repo.AddRiskScore(ctx, "key-1", 30)
	require.NoError(t, err)
	assert.Equal(t, 30.0, score)

	score, err = repo.AddRiskScore(ctx, "key-1", 50)
	require.NoError(t, err)
	assert.Equal(t, 80.0, score)

	cred, err := repo.GetByID(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, 80.0, cred.RiskScore)
	require.NotNil(t, cred.LastRiskEvent)

	_, err = repo.AddRiskScore(ctx, "missing", 10)
	assert.Error(t, err)
}

func TestCredentialRepository_GetByID_Absent(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewCredentialRepository(db, logger.NewNoopLogger())

	cred, err := repo.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestCredentialRepository_SuspendRestoreCycle(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewCredentialRepository(db, logger.NewNoopLogger())
	ctx := context.Background()
	seedCredential(t, db, "key-1", "t1", 85, false)

	flipped, err := repo.MarkSuspended(ctx, "key-1", "Multi-signal high risk detected")
	require.NoError(t, err)
	assert.True(t, flipped)

	// A second attempt finds the switch already flipped.
	flipped, err = repo.MarkSuspended(ctx, "key-1", "late duplicate")
	require.NoError(t, err)
	assert.False(t, flipped)

	suspended, err := repo.ListSuspended(ctx)
	require.NoError(t, err)
	require.Len(t, suspended, 1)
	assert.True(t, suspended[0].KillSwitchActive)
	assert.Equal(t, "Multi-signal high risk detected", suspended[0].KillReason)

	count, err := repo.CountSuspended(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, repo.MarkRestored(ctx, "key-1"))
	cred, err := repo.GetByID(ctx, "key-1")
	require.NoError(t, err)
	assert.False(t, cred.KillSwitchActive)
	assert.Empty(t, cred.KillReason)
}

func TestCredentialRepository_DecayUntilRecoveryFloor(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewCredentialRepository(db, logger.NewNoopLogger())
	ctx := context.Background()
	seedCredential(t, db, "key-1", "t1", 85, true)

	// 85 * 0.9^7 = 40.65 stays above the floor; the 8th sweep crosses it.
	for sweep := 1; sweep <= 7; sweep++ {
		require.NoError(t, repo.DecayScores(ctx, 0.9))
	}
	cred, err := repo.GetByID(ctx, "key-1")
	require.NoError(t, err)
	assert.Greater(t, cred.RiskScore, 40.0)

	require.NoError(t, repo.DecayScores(ctx, 0.9))
	cred, err = repo.GetByID(ctx, "key-1")
	require.NoError(t, err)
	assert.Less(t, cred.RiskScore, 40.0)
}

func TestTenantRepository_SuspendIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewTenantRepository(db, logger.NewNoopLogger())
	ctx := context.Background()
	require.NoError(t, db.Create(&tenantRow{ID: "t1", Status: "active"}).Error)

	changed, err := repo.Suspend(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Suspend(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRiskEventRepository_CategoriesSince(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewRiskEventRepository(db, logger.NewNoopLogger())
	ctx := context.Background()
	now := time.Now().UTC()

	events := []*models.ApiKeyRiskEvent{
		{ApiKeyID: "key-1", TenantID: "t1", RiskType: constants.RiskTypeRateSpike, Severity: constants.RiskSeverityHigh, Score: 30, CreatedAt: now.Add(-time.Minute)},
		{ApiKeyID: "key-1", TenantID: "t1", RiskType: constants.RiskTypeRateSpike, Severity: constants.RiskSeverityHigh, Score: 30, CreatedAt: now.Add(-2 * time.Minute)},
		{ApiKeyID: "key-1", TenantID: "t1", RiskType: constants.RiskTypeAuthSpam, Severity: constants.RiskSeverityCritical, Score: 50, CreatedAt: now.Add(-3 * time.Minute)},
		{ApiKeyID: "key-1", TenantID: "t1", RiskType: constants.RiskTypeGeoAnomaly, Severity: constants.RiskSeverityMedium, Score: 20, CreatedAt: now.Add(-10 * time.Minute)},
		{ApiKeyID: "key-2", TenantID: "t1", RiskType: constants.RiskTypeMaliciousIP, Severity: constants.RiskSeverityCritical, Score: 50, CreatedAt: now.Add(-time.Minute)},
	}
	for _, e := range events {
		require.NoError(t, repo.Append(ctx, e))
	}

	categories, err := repo.CategoriesSince(ctx, "key-1", now.Add(-constants.CategoryWindow))
	require.NoError(t, err)
	assert.Len(t, categories, 2)
	assert.Contains(t, categories, constants.RiskTypeRateSpike)
	assert.Contains(t, categories, constants.RiskTypeAuthSpam)

	recent, err := repo.RecentForKey(ctx, "key-1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, recent, 4)
}

func TestRiskEventRepository_AppendAssignsIDs(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewRiskEventRepository(db, logger.NewNoopLogger())

	event := &models.ApiKeyRiskEvent{
		ApiKeyID: "key-1",
		TenantID: "t1",
		RiskType: constants.RiskTypeAIMLSignal,
		Severity: constants.RiskSeverityMedium,
		Score:    20,
		Metadata: map[string]interface{}{"mlScore": 0.7},
	}
	require.NoError(t, repo.Append(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestTenantRiskRepository_UpsertAndAggregates(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewTenantRiskRepository(db, logger.NewNoopLogger())
	ctx := context.Background()

	scores := []*models.TenantRiskScore{
		{TenantID: "t1", CurrentScore: 10, Status: constants.RiskStatusNormal, LastIncidentAt: time.Now().UTC()},
		{TenantID: "t2", CurrentScore: 40, Status: constants.RiskStatusWarning, LastIncidentAt: time.Now().UTC()},
		{TenantID: "t3", CurrentScore: 70, Status: constants.RiskStatusHighRisk, LastIncidentAt: time.Now().UTC()},
		{TenantID: "t4", CurrentScore: 90, Status: constants.RiskStatusCritical, LastIncidentAt: time.Now().UTC()},
	}
	for _, s := range scores {
		require.NoError(t, repo.Upsert(ctx, s))
	}

	// Upserting the same tenant replaces rather than duplicates.
	require.NoError(t, repo.Upsert(ctx, &models.TenantRiskScore{
		TenantID: "t1", CurrentScore: 35, Status: constants.RiskStatusWarning, LastIncidentAt: time.Now().UTC(),
	}))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 35.0, got.CurrentScore)
	assert.Equal(t, constants.RiskStatusWarning, got.Status)

	avg, err := repo.AverageScore(ctx)
	require.NoError(t, err)
	assert.InDelta(t, (35.0+40+70+90)/4, avg, 1e-9)

	count, err := repo.CountByStatus(ctx, constants.RiskStatusHighRisk, constants.RiskStatusCritical)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	missing, err := repo.Get(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTenantRiskRepository_ResellerRollup(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewTenantRiskRepository(db, logger.NewNoopLogger())
	ctx := context.Background()

	reseller := "r1"
	require.NoError(t, db.Create(&tenantRow{ID: "t1", ResellerID: &reseller, Status: "active"}).Error)
	require.NoError(t, db.Create(&tenantRow{ID: "t2", ResellerID: &reseller, Status: "active"}).Error)
	require.NoError(t, db.Create(&tenantRow{ID: "t3", Status: "active"}).Error)

	require.NoError(t, repo.Upsert(ctx, &models.TenantRiskScore{TenantID: "t1", CurrentScore: 20, Status: constants.RiskStatusNormal}))
	require.NoError(t, repo.Upsert(ctx, &models.TenantRiskScore{TenantID: "t2", CurrentScore: 80, Status: constants.RiskStatusCritical}))
	require.NoError(t, repo.Upsert(ctx, &models.TenantRiskScore{TenantID: "t3", CurrentScore: 100, Status: constants.RiskStatusCritical}))

	avg, highRisk, err := repo.ResellerRollup(ctx, reseller)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, avg, 1e-9)
	assert.Equal(t, 1, highRisk)
}

func TestSnapshotRepository_AppendRecent(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewSnapshotRepository(db, logger.NewNoopLogger())
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Append(ctx, &models.PlatformRiskSnapshot{
			OverallScore: float64(i * 10),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := repo.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, 40.0, recent[0].OverallScore)
	assert.Equal(t, 30.0, recent[1].OverallScore)
	assert.Equal(t, 20.0, recent[2].OverallScore)
}

func TestClusterRepository_AppendRecent(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewClusterRepository(db, logger.NewNoopLogger())
	ctx := context.Background()

	cluster := &models.PlatformAnomalyCluster{
		ClusterSignature:    "pattern_abc123",
		AffectedTenantCount: 6,
		RiskLevel:           constants.ClusterRiskHigh,
		Metadata: map[string]interface{}{
			"tenants": []string{"t1", "t2", "t3", "t4", "t5", "t6"},
		},
	}
	require.NoError(t, repo.Append(ctx, cluster))
	assert.NotEmpty(t, cluster.ID)

	recent, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "pattern_abc123", recent[0].ClusterSignature)
	assert.Equal(t, 6, recent[0].AffectedTenantCount)
	assert.Equal(t, constants.ClusterRiskHigh, recent[0].RiskLevel)
	assert.NotNil(t, recent[0].Metadata["tenants"])
}

func TestHourlyMetricRepository_UpsertIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewHourlyMetricRepository(db, logger.NewNoopLogger())
	ctx := context.Background()
	bucket := time.Now().UTC().Truncate(time.Hour)

	metric := &models.TenantHourlyMetric{
		TenantID:       "t1",
		HourBucket:     bucket,
		MessagesSent:   1000,
		MessagesFailed: 50,
		ApiCalls:       200,
		DistinctIPs:    9,
		FailedRatio:    5,
	}
	require.NoError(t, repo.Upsert(ctx, metric))

	// Rerunning the rollup for the same bucket replaces the row in place.
	rerun := &models.TenantHourlyMetric{
		TenantID:       "t1",
		HourBucket:     bucket,
		MessagesSent:   1000,
		MessagesFailed: 50,
		ApiCalls:       200,
		DistinctIPs:    9,
		FailedRatio:    5,
	}
	require.NoError(t, repo.Upsert(ctx, rerun))

	rows, err := repo.ForHour(ctx, bucket)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1000), rows[0].MessagesSent)
	assert.Equal(t, int64(9), rows[0].DistinctIPs)
}

func TestHourlyMetricRepository_Baseline(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewHourlyMetricRepository(db, logger.NewNoopLogger())
	ctx := context.Background()
	bucket := time.Now().UTC().Truncate(time.Hour)

	avgMessages, avgFailed, err := repo.Baseline(ctx, bucket)
	require.NoError(t, err)
	assert.Zero(t, avgMessages)
	assert.Zero(t, avgFailed)

	require.NoError(t, repo.Upsert(ctx, &models.TenantHourlyMetric{TenantID: "t1", HourBucket: bucket, MessagesSent: 100, FailedRatio: 2}))
	require.NoError(t, repo.Upsert(ctx, &models.TenantHourlyMetric{TenantID: "t2", HourBucket: bucket, MessagesSent: 300, FailedRatio: 4}))

	avgMessages, avgFailed, err = repo.Baseline(ctx, bucket)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, avgMessages, 1e-9)
	assert.InDelta(t, 3.0, avgFailed, 1e-9)
}

func TestPolicyRepository_GetOrCreatePolicy(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewPolicyRepository(db, logger.NewNoopLogger())
	ctx := context.Background()

	defaults := models.RLPolicy{CurrentThreshold: 80, ExplorationRate: 0.1, LearningRate: 0.01}
	policy, err := repo.GetOrCreatePolicy(ctx, constants.PolicyGlobalKillSwitch, defaults)
	require.NoError(t, err)
	assert.Equal(t, 80.0, policy.CurrentThreshold)

	// The second call returns the stored row, not the new defaults.
	policy, err = repo.GetOrCreatePolicy(ctx, constants.PolicyGlobalKillSwitch, models.RLPolicy{CurrentThreshold: 999})
	require.NoError(t, err)
	assert.Equal(t, 80.0, policy.CurrentThreshold)

	policy.CurrentThreshold = 75
	require.NoError(t, repo.SavePolicy(ctx, policy))
	policy, err = repo.GetOrCreatePolicy(ctx, constants.PolicyGlobalKillSwitch, defaults)
	require.NoError(t, err)
	assert.Equal(t, 75.0, policy.CurrentThreshold)
}

func TestPolicyRepository_ExperienceLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewPolicyRepository(db, logger.NewNoopLogger())
	ctx := context.Background()

	exp := &models.RLExperience{
		State:  models.SystemState{AvgRisk: 12, SpikeVelocity: 7, FailureRate: 0.5, SuspensionCount: 2},
		Action: 1,
	}
	require.NoError(t, repo.AppendExperience(ctx, exp))
	assert.NotEmpty(t, exp.ID)

	require.NoError(t, repo.AssignReward(ctx, exp.ID, 1.5))

	err := repo.AssignReward(ctx, "missing-experience", 1.0)
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, errors.ErrNotFound))
}
