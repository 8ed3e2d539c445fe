package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/pkg/constants"
)

func TestStatusForScore(t *testing.T) {
	testCases := []struct {
		score  float64
		status constants.RiskStatus
	}{
		{0, constants.RiskStatusNormal},
		{29.9, constants.RiskStatusNormal},
		{30, constants.RiskStatusWarning},
		{59.9, constants.RiskStatusWarning},
		{60, constants.RiskStatusHighRisk},
		{79.9, constants.RiskStatusHighRisk},
		{80, constants.RiskStatusCritical},
		{100, constants.RiskStatusCritical},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.status, models.StatusForScore(tc.score), "score %v", tc.score)
	}
}

func TestBehaviorVector(t *testing.T) {
	metric := &models.TenantHourlyMetric{
		MessagesSent:   12000,
		MessagesFailed: 600,
		ApiCalls:       300,
		FailedRatio:    5,
	}
	assert.Equal(t, []float64{12000, 5, 300}, metric.BehaviorVector())
}

func TestUsageEvent_ApiKeyID(t *testing.T) {
	event := &models.UsageEvent{}
	assert.Empty(t, event.ApiKeyID())

	event.Metadata = map[string]interface{}{"apiKeyId": 42}
	assert.Empty(t, event.ApiKeyID())

	event.Metadata = map[string]interface{}{"apiKeyId": "key-1"}
	assert.Equal(t, "key-1", event.ApiKeyID())
}

func TestSecurityEvent_ApiKeyID(t *testing.T) {
	event := &models.SecurityEvent{ResourceID: "key-res"}
	assert.Equal(t, "key-res", event.ApiKeyID())

	event.Metadata = map[string]interface{}{"apiKeyId": "key-meta"}
	assert.Equal(t, "key-meta", event.ApiKeyID())
}
