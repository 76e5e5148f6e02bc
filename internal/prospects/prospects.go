// Package prospects is the client side of the prospect backend. The
// engine only ever reads the prospect set and patches visit outcomes;
// CRUD belongs to an external collaborator.
package prospects

import (
	"context"
	"errors"
	"net"

	"fieldroute/internal/model"
)

// ErrNotFound is returned when a prospect id is unknown.
var ErrNotFound = errors.New("prospects: not found")

// ErrUnavailable marks a submit failure caused by connectivity rather
// than by the request itself. Callers queue these for replay.
var ErrUnavailable = errors.New("prospects: backend unavailable")

// ErrInvalidOutcome marks a submit rejected by validation. These are
// never queued; the user must correct the input.
var ErrInvalidOutcome = errors.New("prospects: invalid outcome")

// Repository reads prospects and applies partial visit-outcome patches.
// ApplyOutcome only touches the fields the outcome actually sets
// (status, temperature, notes); nil fields are left alone.
type Repository interface {
	List(ctx context.Context) ([]*model.Prospect, error)
	Get(ctx context.Context, id string) (*model.Prospect, error)
	ApplyOutcome(ctx context.Context, id string, outcome model.VisitOutcome) error
}

// IsNetworkError reports whether a submit failure should be queued for
// replay instead of surfaced to the user. Timeouts and transport
// errors qualify; validation errors do not.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ValidateOutcome rejects outcomes carrying out-of-vocabulary values
// before they reach the backend or the queue.
func ValidateOutcome(outcome model.VisitOutcome) error {
	if outcome.Status != nil && !model.ValidStatuses[*outcome.Status] {
		return errors.Join(ErrInvalidOutcome, errors.New("unknown status "+string(*outcome.Status)))
	}
	if outcome.Temperature != nil && !model.ValidTemperatures[*outcome.Temperature] {
		return errors.Join(ErrInvalidOutcome, errors.New("unknown temperature "+string(*outcome.Temperature)))
	}
	return nil
}
