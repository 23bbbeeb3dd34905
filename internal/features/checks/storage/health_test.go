package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cray-HPE/sat-sub000/internal/features/checks/rest"
	"github.com/Cray-HPE/sat-sub000/pkg/waiting"
)

func newTestClient(t *testing.T) *rest.Client {
	t.Helper()

	cfg := rest.DefaultClientConfig()
	cfg.EnableHTTP2 = false
	cfg.MaxRetryElapsed = 0

	client, err := rest.NewClient(cfg)
	require.NoError(t, err)
	return client
}

func healthServer(status string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"` + status + `"}`))
	}))
}

func TestHealthConditionOK(t *testing.T) {
	server := healthServer(StatusOK)
	defer server.Close()

	cond := NewHealthCondition(newTestClient(t), server.URL, nil)

	done, err := cond.HasCompleted(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
}

func TestHealthConditionWarn(t *testing.T) {
	server := healthServer(StatusWarn)
	defer server.Close()

	cond := NewHealthCondition(newTestClient(t), server.URL, nil)

	done, err := cond.HasCompleted(context.Background())
	require.NoError(t, err)
	assert.False(t, done)

	cond.AcceptWarn = true
	done, err = cond.HasCompleted(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
}

func TestHealthConditionErrIsNotYet(t *testing.T) {
	server := healthServer(StatusErr)
	defer server.Close()

	cond := NewHealthCondition(newTestClient(t), server.URL, nil)

	done, err := cond.HasCompleted(context.Background())
	require.NoError(t, err)
	assert.False(t, done)
}

func TestHealthConditionRejectedIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	cond := NewHealthCondition(newTestClient(t), server.URL, nil)

	done, err := cond.HasCompleted(context.Background())
	assert.False(t, done)
	assert.True(t, waiting.IsFailure(err))
}

func TestHealthConditionUnreachableIsNotYet(t *testing.T) {
	server := healthServer(StatusOK)
	server.Close()

	cond := NewHealthCondition(newTestClient(t), server.URL, nil)

	done, err := cond.HasCompleted(context.Background())
	assert.False(t, done)
	assert.NoError(t, err)
}
