// Package enginerr defines the engine's error taxonomy as sentinel values,
// classified with errors.Is/errors.As rather than string matching.
package enginerr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap with fmt.Errorf("...: %w", Err) at the call site
// to add context; callers classify with errors.Is.
var (
	ErrInvalidSignal       = errors.New("invalid signal")
	ErrRiskRejected        = errors.New("risk rejected")
	ErrCandleAnomaly       = errors.New("candle anomaly detected")
	ErrCandleFetchFailed   = errors.New("candle fetch failed")
	ErrFutureDataInLive    = errors.New("future data requested in live mode")
	ErrContextMissing      = errors.New("ambient context missing")
	ErrSchemaMissing       = errors.New("schema missing")
	ErrDuplicateSchema     = errors.New("duplicate schema")
	ErrPersistenceFailure  = errors.New("persistence failure")
	ErrUserCallbackPanic   = errors.New("user callback panicked")
	ErrSignalIDInUse       = errors.New("signal id already in use")
)

// Fatal reports whether err belongs to the taxonomy's fatal class
// (FutureDataInLive, ContextMissing, schema errors). Fatal errors
// propagate to the exit event and terminate the owning task; everything
// else is recoverable and published to the error event instead.
func Fatal(err error) bool {
	switch {
	case errors.Is(err, ErrFutureDataInLive),
		errors.Is(err, ErrContextMissing),
		errors.Is(err, ErrSchemaMissing),
		errors.Is(err, ErrDuplicateSchema):
		return true
	default:
		return false
	}
}

// Op identifies the engine operation that produced an error, mirroring
// the teacher's order/errors taxonomy.
type Op string

const (
	OpValidateSignal  Op = "validate_signal"
	OpGetSignal       Op = "get_signal"
	OpGetCandles      Op = "get_candles"
	OpGetNextCandles  Op = "get_next_candles"
	OpAveragePrice    Op = "average_price"
	OpRiskCheck       Op = "risk_check"
	OpPersistWrite    Op = "persist_write"
	OpPersistRead     Op = "persist_read"
	OpScheduleTick    Op = "schedule_tick"
	OpPendingTick     Op = "pending_tick"
)

// EngineError carries the operation and symbol/strategy context around a
// wrapped sentinel error.
type EngineError struct {
	Op     Op
	Target string // usually "strategyName:symbol"
	Err    error
}

func (e *EngineError) Error() string {
	if e == nil {
		return ""
	}
	if e.Target != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New constructs an EngineError, passing through err unchanged when it is
// already an *EngineError (idempotent wrapping).
func New(op Op, target string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	return &EngineError{Op: op, Target: target, Err: err}
}
