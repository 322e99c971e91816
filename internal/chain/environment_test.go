package chain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/logging"
)

var (
	alice    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob      = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	contract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

type capturePublisher struct {
	mu   sync.Mutex
	logs []ledger.Log
}

func (p *capturePublisher) Publish(_ context.Context, log ledger.Log) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logs = append(p.logs, log)
	return nil
}

func newTestEnv(t *testing.T) (*Environment, ledger.Ledger, *capturePublisher) {
	t.Helper()
	l := ledger.NewInMemory()
	pub := &capturePublisher{}
	return NewEnvironment(l, pub, logging.Discard()), l, pub
}

func balanceOf(t *testing.T, env *Environment, addr common.Address) uint64 {
	t.Helper()
	bal, err := env.Balance(context.Background(), addr)
	if err != nil {
		t.Fatalf("balance %s: %v", addr.Hex(), err)
	}
	return bal.Uint64()
}

func TestGasMeter(t *testing.T) {
	m := NewGasMeter(Stipend)
	if err := m.Consume(2000); err != nil {
		t.Fatalf("consume within stipend: %v", err)
	}
	if m.Remaining() != 300 {
		t.Fatalf("expected 300 remaining, got %d", m.Remaining())
	}
	if err := m.Consume(301); !errors.Is(err, ErrOutOfGas) {
		t.Fatalf("expected out of gas, got %v", err)
	}
	if m.Remaining() != 0 {
		t.Fatalf("failed charge should exhaust meter, %d left", m.Remaining())
	}

	u := UnlimitedGas()
	if err := u.Consume(1 << 40); err != nil || !u.Unlimited() {
		t.Fatalf("unlimited meter refused charge: %v", err)
	}
}

func TestSendTransactionToPlainAccount(t *testing.T) {
	env, l, _ := newTestEnv(t)
	ledger.SeedBalance(l, alice, uint256.NewInt(1_000))

	if err := env.SendTransaction(context.Background(), alice, bob, uint256.NewInt(400), []byte{0x12, 0x34}); err != nil {
		t.Fatalf("send transaction: %v", err)
	}
	if got := balanceOf(t, env, bob); got != 400 {
		t.Fatalf("expected bob 400, got %d", got)
	}
	if got := balanceOf(t, env, alice); got != 600 {
		t.Fatalf("expected alice 600, got %d", got)
	}

	err := env.SendTransaction(context.Background(), alice, bob, uint256.NewInt(1_000), nil)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestRecipientSeesCreditAndPayload(t *testing.T) {
	env, l, pub := newTestEnv(t)
	ledger.SeedBalance(l, alice, uint256.NewInt(1_000))

	var seen *Call
	env.Register(contract, RecipientFunc(func(ctx context.Context, call *Call) error {
		seen = call
		bal, err := call.Tx().Balance(ctx, contract)
		if err != nil {
			return err
		}
		if bal.Uint64() != 250 {
			t.Errorf("recipient should observe credited balance, got %d", bal.Uint64())
		}
		return call.Emit(ctx, "Received", []byte(`{}`))
	}))

	if err := env.SendTransaction(context.Background(), alice, contract, uint256.NewInt(250), []byte{0x12, 0x34}); err != nil {
		t.Fatalf("send transaction: %v", err)
	}
	if seen == nil || seen.From != alice || seen.Value.Uint64() != 250 || len(seen.Data) != 2 {
		t.Fatalf("unexpected call %+v", seen)
	}
	if len(pub.logs) != 1 || pub.logs[0].Contract != contract {
		t.Fatalf("expected one published log from contract, got %+v", pub.logs)
	}
}

func TestRevertingRecipientRollsBack(t *testing.T) {
	env, l, pub := newTestEnv(t)
	ledger.SeedBalance(l, alice, uint256.NewInt(1_000))
	env.Register(contract, RecipientFunc(func(ctx context.Context, call *Call) error {
		call.Emit(ctx, "Received", nil)
		return ErrReverted
	}))

	err := env.SendTransaction(context.Background(), alice, contract, uint256.NewInt(100), nil)
	if !errors.Is(err, ErrReverted) {
		t.Fatalf("expected revert, got %v", err)
	}
	if got := balanceOf(t, env, alice); got != 1_000 {
		t.Fatalf("expected alice untouched, got %d", got)
	}
	if len(pub.logs) != 0 {
		t.Fatalf("reverted logs must not be published, got %d", len(pub.logs))
	}
}

func gasHungry(cost uint64) Recipient {
	return RecipientFunc(func(_ context.Context, call *Call) error {
		return call.Gas.Consume(cost)
	})
}

func TestDeliveryMechanismsInsideInvocation(t *testing.T) {
	env, l, _ := newTestEnv(t)
	ledger.SeedBalance(l, contract, uint256.NewInt(1_000))
	env.Register(bob, gasHungry(5_000))
	ctx := context.Background()

	err := env.Invoke(ctx, alice, contract, func(ctx context.Context, call *Call) error {
		if err := env.Transfer(ctx, contract, bob, uint256.NewInt(10)); !errors.Is(err, ErrOutOfGas) {
			t.Errorf("transfer: expected out of gas, got %v", err)
		}
		if env.Send(ctx, contract, bob, uint256.NewInt(10)) {
			t.Errorf("send should report failure under the stipend")
		}
		if !env.Call(ctx, contract, bob, uint256.NewInt(10), nil) {
			t.Errorf("call should succeed without a ceiling")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got := balanceOf(t, env, bob); got != 10 {
		t.Fatalf("only the call should have moved value, bob has %d", got)
	}
	if got := balanceOf(t, env, contract); got != 990 {
		t.Fatalf("expected contract 990, got %d", got)
	}
}

func TestCallDepthIsBounded(t *testing.T) {
	env, l, _ := newTestEnv(t)
	ledger.SeedBalance(l, alice, uint256.NewInt(1))

	var deepest int
	env.Register(contract, RecipientFunc(func(ctx context.Context, call *Call) error {
		deepest = call.Depth()
		env.Call(ctx, contract, contract, new(uint256.Int), nil)
		return nil
	}))

	if err := env.SendTransaction(context.Background(), alice, contract, uint256.NewInt(1), nil); err != nil {
		t.Fatalf("send transaction: %v", err)
	}
	if deepest != MaxCallDepth {
		t.Fatalf("expected recursion to stop at depth %d, got %d", MaxCallDepth, deepest)
	}
}

func TestMintAndCounterOutsideFrame(t *testing.T) {
	env, _, _ := newTestEnv(t)
	ctx := context.Background()
	if err := env.Mint(ctx, alice, uint256.NewInt(77)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := balanceOf(t, env, alice); got != 77 {
		t.Fatalf("expected 77, got %d", got)
	}

	err := env.Execute(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.IncrementCounter(ctx, alice, "nonce")
		return err
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if n, _ := env.Counter(ctx, alice, "nonce"); n != 1 {
		t.Fatalf("expected nonce 1, got %d", n)
	}
}

func TestNestedDeliveriesDrawFromCallerGas(t *testing.T) {
	env, l, _ := newTestEnv(t)
	relay := common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	ledger.SeedBalance(l, contract, uint256.NewInt(1_000))
	env.Register(bob, gasHungry(5_000))

	forwarded := 0
	env.Register(relay, RecipientFunc(func(ctx context.Context, call *Call) error {
		if !env.Call(ctx, relay, bob, call.Value, nil) {
			return ErrReverted
		}
		forwarded++
		return nil
	}))
	ctx := context.Background()

	err := env.Invoke(ctx, alice, contract, func(ctx context.Context, call *Call) error {
		if err := env.Transfer(ctx, contract, relay, uint256.NewInt(10)); !errors.Is(err, ErrReverted) {
			t.Errorf("transfer through relay: expected revert, got %v", err)
		}
		if env.Send(ctx, contract, relay, uint256.NewInt(10)) {
			t.Errorf("send through relay should fail under the stipend")
		}
		if !env.Call(ctx, contract, relay, uint256.NewInt(10), nil) {
			t.Errorf("call through relay should succeed without a ceiling")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if forwarded != 1 {
		t.Fatalf("expected one forwarded delivery, got %d", forwarded)
	}
	if got := balanceOf(t, env, bob); got != 10 {
		t.Fatalf("expected bob 10, got %d", got)
	}
	if got := balanceOf(t, env, relay); got != 0 {
		t.Fatalf("expected relay to hold nothing, got %d", got)
	}
}

func TestStipendCapsZeroValueNestedCalls(t *testing.T) {
	env, l, _ := newTestEnv(t)
	relay := common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	ledger.SeedBalance(l, contract, uint256.NewInt(1_000))
	env.Register(bob, gasHungry(Stipend+1))

	var nested bool
	env.Register(relay, RecipientFunc(func(ctx context.Context, call *Call) error {
		nested = env.Call(ctx, relay, bob, new(uint256.Int), nil)
		return nil
	}))

	err := env.Invoke(context.Background(), alice, contract, func(ctx context.Context, call *Call) error {
		return env.Transfer(ctx, contract, relay, uint256.NewInt(1))
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if nested {
		t.Fatalf("nested call must not get more gas than the stipend left")
	}
}

func TestNestedGasIsChargedToCaller(t *testing.T) {
	env, _, _ := newTestEnv(t)
	env.Register(bob, gasHungry(1_000))

	err := env.Invoke(context.Background(), alice, contract, func(ctx context.Context, call *Call) error {
		if !env.Call(ctx, contract, bob, new(uint256.Int), nil) {
			t.Errorf("zero value call should succeed")
		}
		if call.Gas.Used() != 1_000 {
			t.Errorf("expected caller charged 1000, got %d", call.Gas.Used())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
}
