package ledger

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// record is a stored ledger entry in the in-process gateway.
type record struct {
	ID        string    `json:"id"`
	Payload   string    `json:"payload"`
	Namespace string    `json:"namespace"`
	CreatedAt time.Time `json:"createdAt"`
}

// InMemoryGateway is an in-process Gateway used in tests and as the default
// wiring when no real ledger endpoint is configured. It honors the same
// contract function names the real network exposes.
type InMemoryGateway struct {
	mu      sync.RWMutex
	records map[string]record
}

func NewInMemoryGateway() *InMemoryGateway {
	return &InMemoryGateway{records: make(map[string]record)}
}

// Connect opens a session signing as the given identity namespace. An empty
// hint means the caller's role has no wallet identity and cannot transact.
func (g *InMemoryGateway) Connect(ctx context.Context, identityHint string) (Session, error) {
	if strings.TrimSpace(identityHint) == "" {
		return nil, ErrNoIdentity
	}
	return &inMemorySession{gw: g, namespace: identityHint}, nil
}

type inMemorySession struct {
	gw        *InMemoryGateway
	namespace string
	closed    bool
}

func (s *inMemorySession) Submit(ctx context.Context, fn string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, ErrSessionClosed
	}
	switch fn {
	case "CreateRecord":
		if len(args) != 2 {
			return nil, &Error{Fn: fn, Message: "expected id and payload", Err: ErrUnknownFn}
		}
		return s.gw.createRecord(s.namespace, args[0], args[1])
	default:
		return nil, &Error{Fn: fn, Message: "not part of the contract", Err: ErrUnknownFn}
	}
}

func (s *inMemorySession) Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, ErrSessionClosed
	}
	switch fn {
	case "ReadRecord":
		if len(args) != 1 {
			return nil, &Error{Fn: fn, Message: "expected id", Err: ErrUnknownFn}
		}
		return s.gw.readRecord(args[0])
	default:
		return nil, &Error{Fn: fn, Message: "not part of the contract", Err: ErrUnknownFn}
	}
}

func (s *inMemorySession) Close() error {
	s.closed = true
	return nil
}

func (g *InMemoryGateway) createRecord(namespace, id, payload string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.records[id]; exists {
		return nil, &Error{Fn: "CreateRecord", Message: "record already exists", Err: ErrDuplicateEntry}
	}
	rec := record{
		ID:        id,
		Payload:   payload,
		Namespace: namespace,
		CreatedAt: time.Now().UTC(),
	}
	g.records[id] = rec
	return json.Marshal(rec)
}

func (g *InMemoryGateway) readRecord(id string) ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.records[id]
	if !ok {
		return nil, &Error{Fn: "ReadRecord", Message: "record not found", Err: ErrNotFound}
	}
	return json.Marshal(rec)
}
