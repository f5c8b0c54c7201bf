package failover

import (
	"context"
	"net/http"
	"testing"

	apierrors "github.com/kestrel-oss/credrelay/internal/errors"
	"github.com/kestrel-oss/credrelay/internal/credlock"
	"github.com/kestrel-oss/credrelay/internal/healthpool"
	"github.com/kestrel-oss/credrelay/internal/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor() *Executor {
	return &Executor{
		Selector: selector.New(healthpool.NewTracker()),
		Health:   healthpool.NewTracker(),
		Locks:    credlock.NewTable(false),
	}
}

func TestRunRetriesOnTransientFailure(t *testing.T) {
	e := newExecutor()
	candidates := []selector.Candidate{{ID: "a", Provider: "kiro"}, {ID: "b", Provider: "kiro"}}

	attempts := 0
	err := e.Run(context.Background(), selector.StrategyHybrid, candidates, "", 0, nil, func(ctx context.Context, credID string) error {
		attempts++
		if credID == "a" {
			return apierrors.New(http.StatusServiceUnavailable, "unavailable", "server_error", "down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, attempts, 1)
}

func TestRunAbortsOnBadRequest(t *testing.T) {
	e := newExecutor()
	candidates := []selector.Candidate{{ID: "a", Provider: "kiro"}, {ID: "b", Provider: "kiro"}}

	attempts := 0
	err := e.Run(context.Background(), selector.StrategyHybrid, candidates, "", 0, nil, func(ctx context.Context, credID string) error {
		attempts++
		return apierrors.New(http.StatusBadRequest, "invalid_request_error", "invalid_request_error", "bad input")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRunNoCredentials(t *testing.T) {
	e := newExecutor()
	err := e.Run(context.Background(), selector.StrategyHybrid, nil, "", 0, nil, func(ctx context.Context, credID string) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrNoCredentials)
}
