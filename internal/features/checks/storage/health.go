// Package storage checks storage-cluster health through its management API.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Cray-HPE/sat-sub000/internal/common"
	"github.com/Cray-HPE/sat-sub000/internal/features/checks/rest"
	"github.com/Cray-HPE/sat-sub000/pkg/waiting"
)

// Health status values reported by the storage cluster.
const (
	StatusOK   = "HEALTH_OK"
	StatusWarn = "HEALTH_WARN"
	StatusErr  = "HEALTH_ERR"
)

// healthReport is the subset of the health payload we consume.
type healthReport struct {
	Status string `json:"status"`
}

// HealthCondition is satisfied once the storage cluster reports HEALTH_OK.
// A degraded or erroring cluster is "not yet": both states can recover while
// recovery operations proceed elsewhere.
type HealthCondition struct {
	client  *rest.Client
	baseURL string

	// AcceptWarn treats HEALTH_WARN as healthy. Planned node shutdowns leave
	// the cluster in WARN until rebalancing finishes.
	AcceptWarn bool

	logger *slog.Logger
}

// NewHealthCondition creates a storage health condition.
func NewHealthCondition(client *rest.Client, baseURL string, logger *slog.Logger) *HealthCondition {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthCondition{
		client:  client,
		baseURL: baseURL,
		logger:  logger,
	}
}

// ConditionName implements waiting.Condition.
func (c *HealthCondition) ConditionName() string {
	return "storage cluster healthy"
}

// HasCompleted implements waiting.Condition.
func (c *HealthCondition) HasCompleted(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/api/health", c.baseURL)

	resp, err := c.client.Get(ctx, url, nil)
	if err != nil {
		c.logger.Debug("storage health endpoint not reachable", "error", err)
		return false, nil
	}

	body, err := c.client.ReadResponseBody(resp)
	if err != nil {
		return false, nil
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// Fall through to decode.
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, waiting.Failf("storage health check rejected with status %d", resp.StatusCode)
	default:
		c.logger.Debug("storage health poll rejected",
			"error", common.NewUnexpectedStatusError("storage", resp.StatusCode))
		return false, nil
	}

	var report healthReport
	if err := json.Unmarshal(body, &report); err != nil {
		return false, waiting.Failf("malformed storage health report: %v", err)
	}

	switch report.Status {
	case StatusOK:
		return true, nil
	case StatusWarn:
		return c.AcceptWarn, nil
	default:
		return false, nil
	}
}
