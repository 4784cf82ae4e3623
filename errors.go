package taskpool

import (
	"errors"
	"fmt"
)

// ErrDuplicateID reports that a plain bulk insert hit an id that already
// exists in the store. Callers degrade to per-item inserts to keep counts
// exact; this is never surfaced to end users as a failure.
var ErrDuplicateID = errors.New("duplicate task id")

// GatewayError wraps a failure talking to an external collaborator (store,
// broker, archive, signal feed). Background loops log these and wait for the
// next cycle; interactive operations surface them to the caller.
type GatewayError struct {
	Gateway string
	Op      string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s gateway: %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ValidationError reports malformed caller input. The request is rejected
// before any side effect.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
