package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type counterKey struct {
	addr common.Address
	name string
}

type inMemoryLedger struct {
	writer sync.Mutex // held for the lifetime of the open top-level transaction

	mu       sync.RWMutex
	balances map[common.Address]*uint256.Int
	counters map[counterKey]uint64
	logs     []Log
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances: make(map[common.Address]*uint256.Int),
		counters: make(map[counterKey]uint64),
	}
}

func (l *inMemoryLedger) Balance(_ context.Context, addr common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(addr), nil
}

func (l *inMemoryLedger) balanceLocked(addr common.Address) *uint256.Int {
	if bal, ok := l.balances[addr]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

func (l *inMemoryLedger) Counter(_ context.Context, addr common.Address, name string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counters[counterKey{addr, name}], nil
}

func (l *inMemoryLedger) Logs(_ context.Context, contract common.Address, topic string) ([]Log, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Log
	for _, lg := range l.logs {
		if lg.Contract == contract && lg.Topic == topic {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (l *inMemoryLedger) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.writer.Lock()
	return newMemTx(l, nil), nil
}

// memTx buffers writes in overlays; reads fall through parents to the
// committed maps.
type memTx struct {
	ledger   *inMemoryLedger
	parent   *memTx
	balances map[common.Address]*uint256.Int
	counters map[counterKey]uint64
	logs     []Log
	done     bool
}

func newMemTx(l *inMemoryLedger, parent *memTx) *memTx {
	return &memTx{
		ledger:   l,
		parent:   parent,
		balances: make(map[common.Address]*uint256.Int),
		counters: make(map[counterKey]uint64),
	}
}

func (t *memTx) Begin(_ context.Context) (Tx, error) {
	if t.done {
		return nil, ErrTxDone
	}
	return newMemTx(t.ledger, t), nil
}

func (t *memTx) Balance(_ context.Context, addr common.Address) (*uint256.Int, error) {
	if t.done {
		return nil, ErrTxDone
	}
	return t.balance(addr), nil
}

func (t *memTx) balance(addr common.Address) *uint256.Int {
	for tx := t; tx != nil; tx = tx.parent {
		if bal, ok := tx.balances[addr]; ok {
			return new(uint256.Int).Set(bal)
		}
	}
	t.ledger.mu.RLock()
	defer t.ledger.mu.RUnlock()
	return t.ledger.balanceLocked(addr)
}

func (t *memTx) Counter(_ context.Context, addr common.Address, name string) (uint64, error) {
	if t.done {
		return 0, ErrTxDone
	}
	return t.counter(counterKey{addr, name}), nil
}

func (t *memTx) counter(key counterKey) uint64 {
	for tx := t; tx != nil; tx = tx.parent {
		if v, ok := tx.counters[key]; ok {
			return v
		}
	}
	t.ledger.mu.RLock()
	defer t.ledger.mu.RUnlock()
	return t.ledger.counters[key]
}

func (t *memTx) Transfer(_ context.Context, from, to common.Address, amount *uint256.Int) error {
	if t.done {
		return ErrTxDone
	}
	fromBalance := t.balance(from)
	if fromBalance.Lt(amount) {
		return ErrInsufficientFunds
	}
	if from == to {
		return nil
	}

	toBalance := t.balance(to)
	if _, overflow := toBalance.AddOverflow(toBalance, amount); overflow {
		return ErrOverflow
	}
	t.balances[from] = fromBalance.Sub(fromBalance, amount)
	t.balances[to] = toBalance
	return nil
}

func (t *memTx) Mint(_ context.Context, to common.Address, amount *uint256.Int) error {
	if t.done {
		return ErrTxDone
	}
	bal := t.balance(to)
	if _, overflow := bal.AddOverflow(bal, amount); overflow {
		return ErrOverflow
	}
	t.balances[to] = bal
	return nil
}

func (t *memTx) IncrementCounter(_ context.Context, addr common.Address, name string) (uint64, error) {
	if t.done {
		return 0, ErrTxDone
	}
	key := counterKey{addr, name}
	next := t.counter(key) + 1
	t.counters[key] = next
	return next, nil
}

func (t *memTx) AppendLog(_ context.Context, log Log) error {
	if t.done {
		return ErrTxDone
	}
	t.logs = append(t.logs, log)
	return nil
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return ErrTxDone
	}
	if t.parent != nil {
		if t.parent.done {
			return ErrTxDone
		}
		t.done = true
		for addr, bal := range t.balances {
			t.parent.balances[addr] = bal
		}
		for key, v := range t.counters {
			t.parent.counters[key] = v
		}
		t.parent.logs = append(t.parent.logs, t.logs...)
		return nil
	}

	t.done = true
	l := t.ledger
	l.mu.Lock()
	for addr, bal := range t.balances {
		l.balances[addr] = bal
	}
	for key, v := range t.counters {
		l.counters[key] = v
	}
	l.logs = append(l.logs, t.logs...)
	l.mu.Unlock()
	l.writer.Unlock()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if t.parent == nil {
		t.ledger.writer.Unlock()
	}
	return nil
}
