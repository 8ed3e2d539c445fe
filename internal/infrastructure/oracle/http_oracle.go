// Package oracle is the HTTP client for the external ML scoring service.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/service"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

var _ service.ScoreOracle = (*HTTPOracle)(nil)

// HTTPOracle calls the scoring endpoint over HTTP. Callers wrap it with the
// heuristic fallback, so any failure here surfaces as ErrOracleUnavailable
// rather than propagating transport detail.
type HTTPOracle struct {
	endpoint string
	client   *http.Client
	log      logger.Logger
}

// NewHTTPOracle creates a new HTTPOracle. An empty endpoint yields a client
// whose every call fails, which pushes evaluation onto the heuristic.
func NewHTTPOracle(cfg config.OracleConfig, log logger.Logger) *HTTPOracle {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPOracle{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log.WithComponent("HTTPOracle"),
	}
}

type scoreResponse struct {
	AnomalyScore float64 `json:"anomaly_score"`
	IsAnomaly    bool    `json:"is_anomaly"`
	Confidence   string  `json:"confidence"`
}

// Score posts the feature vector and returns the anomaly score in [0,1].
func (o *HTTPOracle) Score(ctx context.Context, features models.FeatureVector) (float64, error) {
	if o.endpoint == "" {
		return 0, errors.ErrOracleUnavailable
	}

	body, err := json.Marshal(features)
	if err != nil {
		return 0, errors.ErrInternal.WithError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/score", bytes.NewReader(body))
	if err != nil {
		return 0, errors.ErrOracleUnavailable.WithError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, errors.ErrOracleUnavailable.WithError(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.ErrOracleUnavailable.WithError(fmt.Errorf("scoring service returned %d", resp.StatusCode))
	}

	var parsed scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, errors.ErrOracleUnavailable.WithError(err)
	}

	score := parsed.AnomalyScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}
