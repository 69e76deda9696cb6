// Package frameclient implements the time-frame collaborator consulted
// by the backtest loop (spec.md §4.9 step 2): a monotonically ascending
// vector of timestamps to iterate over.
package frameclient

import (
	"fmt"
	"time"

	"github.com/guyghost/backtestkit/internal/enginerr"
)

// GetTimeframesFunc produces the ascending timestamp vector for a
// backtest run.
type GetTimeframesFunc func() ([]time.Time, error)

// FrameSchema is the user-supplied collaborator contract for frame
// generation.
type FrameSchema struct {
	Name          string
	GetTimeframes GetTimeframesFunc
}

// Validate implements schema.Validatable.
func (s FrameSchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: frame schema name must not be empty", enginerr.ErrInvalidSignal)
	}
	if s.GetTimeframes == nil {
		return fmt.Errorf("%w: frame schema %q missing GetTimeframes", enginerr.ErrInvalidSignal, s.Name)
	}
	return nil
}

// ClientFrame resolves a FrameSchema's timeframe vector, validating that
// it is non-empty and strictly ascending.
type ClientFrame struct {
	schema FrameSchema
}

// New constructs a ClientFrame for the given schema.
func New(schema FrameSchema) *ClientFrame {
	return &ClientFrame{schema: schema}
}

// GetTimeframes returns the schema's timestamp vector, rejecting a
// result that is empty or not strictly ascending.
func (c *ClientFrame) GetTimeframes() ([]time.Time, error) {
	frames, err := c.schema.GetTimeframes()
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("frame schema %q produced no timeframes", c.schema.Name)
	}
	for i := 1; i < len(frames); i++ {
		if !frames[i].After(frames[i-1]) {
			return nil, fmt.Errorf("frame schema %q produced non-ascending timeframes at index %d", c.schema.Name, i)
		}
	}
	return frames, nil
}
