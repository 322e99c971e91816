// Package chain is the execution environment wallets run inside: it moves
// value between accounts, runs recipient logic under a gas ceiling and makes
// every top-level operation atomic.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/congo-pay/custody/internal/events"
	"github.com/congo-pay/custody/internal/ledger"
)

// MaxCallDepth bounds nested deliveries and invocations.
const MaxCallDepth = 1024

// ErrCallDepth is returned when nesting exceeds MaxCallDepth.
var ErrCallDepth = errors.New("max call depth exceeded")

// Environment routes value and calls between accounts on top of a ledger.
type Environment struct {
	ledger    ledger.Ledger
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.RWMutex
	recipients map[common.Address]Recipient
}

// NewEnvironment builds an environment. publisher may be nil.
func NewEnvironment(l ledger.Ledger, publisher events.Publisher, logger *slog.Logger) *Environment {
	return &Environment{
		ledger:     l,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
		recipients: make(map[common.Address]Recipient),
	}
}

// Register attaches acceptance logic to addr, turning it into a contract account.
func (e *Environment) Register(addr common.Address, r Recipient) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recipients[addr] = r
}

// Lookup returns the logic attached to addr, if any.
func (e *Environment) Lookup(addr common.Address) (Recipient, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.recipients[addr]
	return r, ok
}

// Execute runs fn as one atomic unit. Called with a context that already
// carries a frame it nests inside it; otherwise it opens a top-level
// transaction and publishes the logs it produced once committed.
func (e *Environment) Execute(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return e.atomic(ctx, nil, func(ctx context.Context, f *frame) error {
		return fn(ctx, f.tx)
	})
}

// Invoke runs fn as a direct call from caller into contract.
func (e *Environment) Invoke(ctx context.Context, caller, contract common.Address, fn func(ctx context.Context, call *Call) error) error {
	return e.metered(ctx, UnlimitedGas(), func(ctx context.Context, f *frame) error {
		return fn(ctx, &Call{
			From:  caller,
			To:    contract,
			Value: new(uint256.Int),
			Gas:   f.gas,
			frame: f,
			now:   e.now,
		})
	})
}

// SendTransaction delivers value from an external account to any account,
// running the destination's logic without a gas ceiling. Payload is handed to
// the recipient untouched.
func (e *Environment) SendTransaction(ctx context.Context, from, to common.Address, value *uint256.Int, data []byte) error {
	return e.deliver(ctx, from, to, value, data, UnlimitedGas())
}

// Transfer delivers value under the stipend and reports any failure.
func (e *Environment) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	return e.deliver(ctx, from, to, amount, nil, NewGasMeter(Stipend))
}

// Send delivers value under the stipend and reports only whether it succeeded.
func (e *Environment) Send(ctx context.Context, from, to common.Address, amount *uint256.Int) bool {
	if err := e.deliver(ctx, from, to, amount, nil, NewGasMeter(Stipend)); err != nil {
		e.logger.Debug("send failed", "from", from.Hex(), "to", to.Hex(), "error", err)
		return false
	}
	return true
}

// Call delivers value and data with no gas ceiling and reports only whether it succeeded.
func (e *Environment) Call(ctx context.Context, from, to common.Address, amount *uint256.Int, data []byte) bool {
	if err := e.deliver(ctx, from, to, amount, data, UnlimitedGas()); err != nil {
		e.logger.Debug("call failed", "from", from.Hex(), "to", to.Hex(), "error", err)
		return false
	}
	return true
}

// Mint credits value to an account out of thin air.
func (e *Environment) Mint(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return e.Execute(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.Mint(ctx, to, amount)
	})
}

// Balance reads addr's balance as seen by the current frame, or the committed
// balance outside of one.
func (e *Environment) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	if f, ok := frameFrom(ctx); ok {
		return f.tx.Balance(ctx, addr)
	}
	return e.ledger.Balance(ctx, addr)
}

// Counter reads a per-account counter, frame aware like Balance.
func (e *Environment) Counter(ctx context.Context, addr common.Address, name string) (uint64, error) {
	if f, ok := frameFrom(ctx); ok {
		return f.tx.Counter(ctx, addr, name)
	}
	return e.ledger.Counter(ctx, addr, name)
}

// Logs lists committed logs of a contract for one topic.
func (e *Environment) Logs(ctx context.Context, contract common.Address, topic string) ([]ledger.Log, error) {
	return e.ledger.Logs(ctx, contract, topic)
}

// deliver credits value before the recipient runs, so a re-entering recipient
// already observes the debited source.
func (e *Environment) deliver(ctx context.Context, from, to common.Address, value *uint256.Int, data []byte, gas *GasMeter) error {
	if value == nil {
		value = new(uint256.Int)
	}
	if parent, ok := frameFrom(ctx); ok && !value.IsZero() {
		if err := parent.gas.Consume(ValueTransferGas); err != nil {
			return err
		}
	}
	return e.metered(ctx, gas, func(ctx context.Context, f *frame) error {
		if err := f.tx.Transfer(ctx, from, to, value); err != nil {
			return err
		}
		r, ok := e.Lookup(to)
		if !ok {
			return nil
		}
		return r.Receive(ctx, &Call{
			From:  from,
			To:    to,
			Value: new(uint256.Int).Set(value),
			Data:  data,
			Gas:   f.gas,
			frame: f,
			now:   e.now,
		})
	})
}

// metered runs fn in a frame whose gas is drawn from the calling frame: the
// nested ceiling never exceeds what the caller has left, and whatever the
// nested frame burns is charged back to the caller.
func (e *Environment) metered(ctx context.Context, requested *GasMeter, fn func(ctx context.Context, f *frame) error) error {
	parent, ok := frameFrom(ctx)
	if !ok {
		return e.atomic(ctx, requested, fn)
	}
	gas := parent.gas.capped(requested)
	err := e.atomic(ctx, gas, fn)
	_ = parent.gas.Consume(gas.Used()) // bounded by the cap
	return err
}

// atomic runs fn in a new frame. A nil gas meter shares the parent's meter,
// or is unlimited at the top level.
func (e *Environment) atomic(ctx context.Context, gas *GasMeter, fn func(ctx context.Context, f *frame) error) error {
	if parent, ok := frameFrom(ctx); ok {
		if parent.depth+1 > MaxCallDepth {
			return ErrCallDepth
		}
		if gas == nil {
			gas = parent.gas
		}
		tx, err := parent.tx.Begin(ctx)
		if err != nil {
			return err
		}
		f := &frame{tx: tx, gas: gas, depth: parent.depth + 1}
		if err := fn(withFrame(ctx, f), f); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				e.logger.Error("rollback nested frame", "depth", f.depth, "error", rbErr)
			}
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		parent.logs = append(parent.logs, f.logs...)
		return nil
	}

	tx, err := e.ledger.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if gas == nil {
		gas = UnlimitedGas()
	}
	f := &frame{tx: tx, gas: gas}
	if err := fn(withFrame(ctx, f), f); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	e.publish(ctx, f.logs)
	return nil
}

func (e *Environment) publish(ctx context.Context, logs []ledger.Log) {
	if e.publisher == nil {
		return
	}
	for _, lg := range logs {
		if err := e.publisher.Publish(ctx, lg); err != nil {
			e.logger.Warn("publish event", "topic", lg.Topic, "contract", lg.Contract.Hex(), "id", lg.ID.String(), "error", err)
		}
	}
}
