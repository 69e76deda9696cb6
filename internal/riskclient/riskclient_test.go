package riskclient_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyghost/backtestkit/internal/enginerr"
	"github.com/guyghost/backtestkit/internal/riskclient"
	"github.com/guyghost/backtestkit/internal/signal"
)

func TestCheckSignalAcceptsWhenNoPredicatesConfigured(t *testing.T) {
	client := riskclient.New(riskclient.RiskSchema{Name: "r1"})
	err := client.CheckSignal(context.Background(), signal.Row{}, 0)
	require.NoError(t, err)
}

func TestCheckSignalRejectsWhenMaxConcurrentPositionsReached(t *testing.T) {
	client := riskclient.New(riskclient.RiskSchema{Name: "r1", MaxConcurrentPositions: 1})
	err := client.CheckSignal(context.Background(), signal.Row{}, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, enginerr.ErrRiskRejected))
}

func TestCheckSignalStopsAtFirstFailingPredicate(t *testing.T) {
	calls := 0
	failing := func(ctx context.Context, candidate signal.Row, openPositions int) error {
		calls++
		return errors.New("rejected by policy")
	}
	neverCalled := func(ctx context.Context, candidate signal.Row, openPositions int) error {
		calls++
		return nil
	}

	client := riskclient.New(riskclient.RiskSchema{
		Name:       "r1",
		Predicates: []riskclient.Predicate{failing, neverCalled},
	})

	err := client.CheckSignal(context.Background(), signal.Row{}, 0)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRiskSchemaValidateRejectsEmptyName(t *testing.T) {
	require.Error(t, riskclient.RiskSchema{}.Validate())
}
