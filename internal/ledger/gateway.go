package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("ledger: record not found")
	ErrNoIdentity     = errors.New("ledger: no wallet identity for namespace")
	ErrSessionClosed  = errors.New("ledger: session closed")
	ErrUnknownFn      = errors.New("ledger: unknown contract function")
	ErrDuplicateEntry = errors.New("ledger: record already exists")
)

// Error wraps a failure raised by a contract invocation.
type Error struct {
	Fn      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger: %s: %s", e.Fn, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Gateway opens sessions against the distributed ledger under a named
// identity namespace. Which cryptographic wallet identity signs a session's
// operations is determined entirely by the namespace hint; this service never
// performs ledger I/O itself.
type Gateway interface {
	Connect(ctx context.Context, identityHint string) (Session, error)
}

// Session submits and evaluates named contract functions. Submit writes to
// the ledger; Evaluate is read-only.
type Session interface {
	Submit(ctx context.Context, fn string, args ...string) ([]byte, error)
	Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error)
	Close() error
}
