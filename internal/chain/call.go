package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/congo-pay/custody/internal/ledger"
)

// ErrReverted is returned by recipients that refuse a value transfer.
var ErrReverted = errors.New("execution reverted")

// Recipient is the acceptance logic attached to an account. It runs after the
// value has been credited and may consume gas, fail or call back into other
// contracts with the context it was given.
type Recipient interface {
	Receive(ctx context.Context, call *Call) error
}

// RecipientFunc adapts a function to a Recipient.
type RecipientFunc func(ctx context.Context, call *Call) error

// Receive calls f.
func (f RecipientFunc) Receive(ctx context.Context, call *Call) error {
	return f(ctx, call)
}

// Call describes one execution of contract logic: an inbound value delivery
// or a direct invocation.
type Call struct {
	From  common.Address
	To    common.Address
	Value *uint256.Int
	Data  []byte
	Gas   *GasMeter

	frame *frame
	now   func() time.Time
}

// Tx exposes the ledger transaction of the current frame.
func (c *Call) Tx() ledger.Tx {
	return c.frame.tx
}

// Depth reports how deep the call sits in the current transaction.
func (c *Call) Depth() int {
	return c.frame.depth
}

// Emit appends a log on behalf of the called contract. It is published only
// if the enclosing top-level transaction commits.
func (c *Call) Emit(ctx context.Context, topic string, data []byte) error {
	log := ledger.Log{
		ID:        uuid.New(),
		Contract:  c.To,
		Topic:     topic,
		Data:      data,
		CreatedAt: c.now().UTC(),
	}
	if err := c.frame.tx.AppendLog(ctx, log); err != nil {
		return err
	}
	c.frame.logs = append(c.frame.logs, log)
	return nil
}

type frame struct {
	tx    ledger.Tx
	gas   *GasMeter
	depth int
	logs  []ledger.Log
}

type frameKey struct{}

func withFrame(ctx context.Context, f *frame) context.Context {
	return context.WithValue(ctx, frameKey{}, f)
}

func frameFrom(ctx context.Context) (*frame, bool) {
	f, ok := ctx.Value(frameKey{}).(*frame)
	return f, ok
}
