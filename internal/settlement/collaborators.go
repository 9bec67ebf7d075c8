package settlement

import (
	"context"
	"sync"
)

// DrawRequest describes the room a random value is requested for.
type DrawRequest struct {
	RoomID  RoomID `json:"room_id"`
	Entries int    `json:"entries"`
	Total   uint64 `json:"total"`
}

// RandomResponse is one oracle answer. OracleID names the responder and is
// compared against the engine's expected oracle.
type RandomResponse struct {
	OracleID Identity `json:"oracle_id"`
	Value    uint64   `json:"random_number"`
	Proof    string   `json:"proof,omitempty"`
}

// RandomnessOracle supplies one unsigned value per draw.
type RandomnessOracle interface {
	Draw(ctx context.Context, req DrawRequest) (RandomResponse, error)
}

// IdentifiedOracle is implemented by oracles that know their own identity.
type IdentifiedOracle interface {
	ID() Identity
}

// TransferService moves value between custodial accounts. Implementations
// either fully apply a transfer or fail with ErrInsufficientFunds or
// ErrTransferRejected.
type TransferService interface {
	TransferNative(ctx context.Context, from, to Identity, amount uint64) error
	TransferToken(ctx context.Context, asset, from, to Identity, amount uint64) error
}

// BalanceReader reports custodial balances.
type BalanceReader interface {
	NativeBalance(ctx context.Context, account Identity) (uint64, error)
	TokenBalance(ctx context.Context, asset, account Identity) (uint64, error)
}

// Custody is the asset collaborator the engine is built with.
type Custody interface {
	TransferService
	BalanceReader
}

// Changes is the set of records one operation writes.
type Changes struct {
	Registry *Registry
	Room     *Room
}

// Store persists the registry and rooms. Commit must apply all of Changes
// or none of them. LoadRegistry returns ErrConfigNotInitialized and
// LoadRoom ErrRoomNotFound when the record is absent.
type Store interface {
	LoadRegistry(ctx context.Context) (Registry, error)
	LoadRoom(ctx context.Context, id RoomID) (Room, error)
	ListRooms(ctx context.Context, limit int) ([]Room, error)
	Commit(ctx context.Context, changes Changes) error
}

// Locker serializes engine operations.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// LocalLocker is an in-process Locker that honours context cancellation
// while waiting.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

// Lock blocks until key is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
