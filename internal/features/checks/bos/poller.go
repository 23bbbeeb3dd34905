// Package bos polls the boot orchestration service for session completion.
package bos

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

// sessionStatus is the subset of the BOS session status payload we consume.
type sessionStatus struct {
	Status     string `json:"status"`
	ErrorCount int    `json:"error_count"`
}

const statusComplete = "complete"

// Poller checks boot-orchestration sessions for completion. It satisfies
// both waiting.Condition for a single session and waiting.GroupCondition
// over a set of session IDs.
type Poller struct {
	client   *rest.Client
	baseURL  string
	sessions []string
	logger   *slog.Logger
}

// NewPoller creates a poller over the given session IDs.
func NewPoller(client *rest.Client, baseURL string, sessions []string, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:   client,
		baseURL:  baseURL,
		sessions: sessions,
		logger:   logger,
	}
}

// ConditionName implements waiting.Condition.
func (p *Poller) ConditionName() string {
	if len(p.sessions) == 1 {
		return fmt.Sprintf("boot session %s complete", p.sessions[0])
	}
	return fmt.Sprintf("%d boot sessions complete", len(p.sessions))
}

// HasCompleted reports whether every session has completed.
func (p *Poller) HasCompleted(ctx context.Context) (bool, error) {
	for _, session := range p.sessions {
		done, err := p.MemberHasCompleted(ctx, session)
		if err != nil {
			return false, err
		}
		if !done {
			return false, nil
		}
	}
	return true, nil
}

// MemberHasCompleted reports whether a single session has completed.
// A missing session or a session that finished with errors is a permanent
// failure; an unreachable service is treated as "not yet".
func (p *Poller) MemberHasCompleted(ctx context.Context, session string) (bool, error) {
	url := fmt.Sprintf("%s/v2/sessions/%s/status", p.baseURL, session)

	resp, err := p.client.Get(ctx, url, nil)
	if err != nil {
		// The service may itself be mid-boot during a staged bring-up.
		p.logger.Debug("boot orchestration service not reachable",
			"session", session,
			"error", err)
		return false, nil
	}

	body, err := p.client.ReadResponseBody(resp)
	if err != nil {
		return false, nil
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// Fall through to decode.
	case http.StatusNotFound:
		return false, waiting.Failf("boot session %s does not exist", session)
	default:
		p.logger.Debug("boot session status poll rejected",
			"session", session,
			"error", common.NewUnexpectedStatusError("bos", resp.StatusCode))
		return false, nil
	}

	var status sessionStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return false, waiting.Failf("malformed status for boot session %s: %v", session, err)
	}

	if status.Status != statusComplete {
		return false, nil
	}
	if status.ErrorCount > 0 {
		return false, waiting.Failf("boot session %s completed with %d errors", session, status.ErrorCount)
	}
	return true, nil
}
