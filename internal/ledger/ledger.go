package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrOverflow indicates a credit would push a balance past 256 bits.
	ErrOverflow = errors.New("balance overflow")

	// ErrTxDone is returned when a committed or rolled back transaction is used again.
	ErrTxDone = errors.New("transaction already finished")
)

// Log is an append-only record emitted by a contract account.
type Log struct {
	ID        uuid.UUID
	Contract  common.Address
	Topic     string
	Data      []byte
	CreatedAt time.Time
}

// Reader exposes the read side shared by the ledger and its transactions.
type Reader interface {
	Balance(ctx context.Context, addr common.Address) (*uint256.Int, error)
	Counter(ctx context.Context, addr common.Address, name string) (uint64, error)
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
// Reads on the Ledger itself only observe committed state. Top-level
// transactions are serialized: Begin blocks until the previous one finishes.
type Ledger interface {
	Reader
	Begin(ctx context.Context) (Tx, error)
	Logs(ctx context.Context, contract common.Address, topic string) ([]Log, error)
}

// Tx is a unit of work over the ledger. Begin on a Tx opens a nested
// transaction whose effects reach the parent only on Commit, and vanish with
// the parent if the parent is rolled back. Rollback after Commit is a no-op.
type Tx interface {
	Reader
	Begin(ctx context.Context) (Tx, error)
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	Mint(ctx context.Context, to common.Address, amount *uint256.Int) error
	IncrementCounter(ctx context.Context, addr common.Address, name string) (uint64, error)
	AppendLog(ctx context.Context, log Log) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
