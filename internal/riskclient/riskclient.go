// Package riskclient implements the risk-gate collaborator consulted by
// the signal state machine before a candidate signal may transition into
// pending (spec.md §4.5 step 2g, §4.1). The ordered-predicate design
// generalizes the teacher's own ordered CanTrade/ValidateOrder checks
// (internal/risk/manager.go) into a user-extensible list.
package riskclient

import (
	"context"
	"fmt"

	"github.com/guyghost/backtestkit/internal/enginerr"
	"github.com/guyghost/backtestkit/internal/signal"
)

// Predicate is one ordered risk check. It returns a non-nil error (with a
// human-readable reason) to reject the candidate signal; the first
// failing predicate wins and short-circuits the remaining checks, the
// same ordered-check idiom as the teacher's CanTrade/ValidateOrder.
type Predicate func(ctx context.Context, candidate signal.Row, openPositions int) error

// RiskSchema is the user-supplied collaborator contract for risk
// management.
type RiskSchema struct {
	Name                   string
	MaxConcurrentPositions int
	Predicates             []Predicate
}

// Validate implements schema.Validatable.
func (s RiskSchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: risk schema name must not be empty", enginerr.ErrInvalidSignal)
	}
	if s.MaxConcurrentPositions < 0 {
		return fmt.Errorf("%w: risk schema %q has negative MaxConcurrentPositions", enginerr.ErrInvalidSignal, s.Name)
	}
	return nil
}

// ClientRisk evaluates candidate signals against a RiskSchema.
type ClientRisk struct {
	schema RiskSchema
}

// New constructs a ClientRisk for the given schema.
func New(schema RiskSchema) *ClientRisk {
	return &ClientRisk{schema: schema}
}

// CheckSignal rejects the candidate if the concurrent-position budget is
// exhausted or any ordered predicate fails, wrapping the first failure
// as enginerr.ErrRiskRejected.
func (c *ClientRisk) CheckSignal(ctx context.Context, candidate signal.Row, openPositions int) error {
	if c.schema.MaxConcurrentPositions > 0 && openPositions >= c.schema.MaxConcurrentPositions {
		return fmt.Errorf("%w: max concurrent positions (%d) reached", enginerr.ErrRiskRejected, c.schema.MaxConcurrentPositions)
	}

	for i, predicate := range c.schema.Predicates {
		if err := predicate(ctx, candidate, openPositions); err != nil {
			return fmt.Errorf("%w: predicate %d: %v", enginerr.ErrRiskRejected, i, err)
		}
	}

	return nil
}
