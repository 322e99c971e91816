package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/congo-pay/custody/internal/chain"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/units"
)

const (
	// TopicDeposit is the log topic of accepted deposits.
	TopicDeposit = "Deposit"

	counterDeposits    = "deposits"
	counterDeployments = "deployments"

	// sender, amount and depositCount, one 32 byte word each
	depositLogDataSize = 3 * 32

	gasCounterUpdate = params.SstoreResetGasEIP2200
	gasDepositLog    = params.LogGas + params.LogTopicGas + depositLogDataSize*params.LogDataGas
	// DepositGas is charged to the inbound transfer for one counter update
	// and one Deposit log. It exceeds chain.Stipend.
	DepositGas = gasCounterUpdate + gasDepositLog
)

var (
	// ErrInsufficientBalance is returned by every outbound send asking for more
	// than the wallet holds. The message is part of the public interface.
	ErrInsufficientBalance = errors.New("Not enough balance") //nolint:stylecheck

	// ErrTransferRejected wraps the destination's failure under MechanismTransfer.
	ErrTransferRejected = errors.New("transfer rejected by destination")
	// ErrSendRejected is returned when MechanismSend reports failure.
	ErrSendRejected = errors.New("send rejected by destination")
	// ErrCallRejected is returned when MechanismCall reports failure.
	ErrCallRejected = errors.New("call rejected by destination")

	// ErrNotOwner indicates the caller does not own the wallet.
	ErrNotOwner = errors.New("not owner of wallet")
	// ErrInvalidOwner rejects deployments for the zero address.
	ErrInvalidOwner = errors.New("owner address is required")
	// ErrInvalidMechanism rejects unknown send mechanisms.
	ErrInvalidMechanism = errors.New("unknown send mechanism")
)

// Runtime is the execution environment wallets are deployed into.
type Runtime interface {
	Register(addr common.Address, r chain.Recipient)
	Execute(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error
	Invoke(ctx context.Context, caller, contract common.Address, fn func(ctx context.Context, call *chain.Call) error) error
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	Send(ctx context.Context, from, to common.Address, amount *uint256.Int) bool
	Call(ctx context.Context, from, to common.Address, amount *uint256.Int, data []byte) bool
	Balance(ctx context.Context, addr common.Address) (*uint256.Int, error)
	Counter(ctx context.Context, addr common.Address, name string) (uint64, error)
	Logs(ctx context.Context, contract common.Address, topic string) ([]ledger.Log, error)
}

// Options tunes wallet policy.
type Options struct {
	// OwnerOnly restricts outbound sends to the deploying owner.
	OwnerOnly bool
}

// Service deploys wallets and implements their deposit and send logic.
type Service struct {
	repo    Repository
	runtime Runtime
	logger  *slog.Logger
	opts    Options
	now     func() time.Time
}

// NewService builds a wallet service instance.
func NewService(repo Repository, runtime Runtime, logger *slog.Logger, opts Options) *Service {
	return &Service{repo: repo, runtime: runtime, logger: logger, opts: opts, now: time.Now}
}

// Deploy creates a wallet for owner at an address derived from the owner and
// its deployment count. The new wallet has no deposits.
func (s *Service) Deploy(ctx context.Context, owner common.Address) (Wallet, error) {
	if owner == (common.Address{}) {
		return Wallet{}, ErrInvalidOwner
	}

	var (
		w       Wallet
		created bool
	)
	err := s.runtime.Execute(ctx, func(ctx context.Context, tx ledger.Tx) error {
		deployed, err := tx.IncrementCounter(ctx, owner, counterDeployments)
		if err != nil {
			return err
		}
		w = Wallet{
			Address:   crypto.CreateAddress(owner, deployed-1),
			Owner:     owner,
			CreatedAt: s.now().UTC(),
		}
		if err := s.repo.Create(ctx, w); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		// the record is written outside the ledger transaction
		if created {
			if delErr := s.repo.Delete(context.WithoutCancel(ctx), w.Address); delErr != nil {
				s.logger.Error("remove wallet of failed deployment", "address", w.Address.Hex(), "error", delErr)
			}
		}
		return Wallet{}, fmt.Errorf("deploy wallet: %w", err)
	}

	s.runtime.Register(w.Address, s)
	s.logger.Info("wallet deployed", "address", w.Address.Hex(), "owner", owner.Hex())
	return w, nil
}

// Restore registers every persisted wallet with the runtime.
func (s *Service) Restore(ctx context.Context) (int, error) {
	wallets, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, w := range wallets {
		s.runtime.Register(w.Address, s)
	}
	return len(wallets), nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, addr common.Address) (Wallet, error) {
	return s.repo.Get(ctx, addr)
}

// Receive is the single inbound path: plain transfers and transfers carrying
// any payload are accepted alike.
func (s *Service) Receive(ctx context.Context, call *chain.Call) error {
	return s.acceptDeposit(ctx, call)
}

func (s *Service) acceptDeposit(ctx context.Context, call *chain.Call) error {
	if err := call.Gas.Consume(DepositGas); err != nil {
		return err
	}
	count, err := call.Tx().IncrementCounter(ctx, call.To, counterDeposits)
	if err != nil {
		return err
	}
	data, err := json.Marshal(depositRecord{
		Sender:       call.From.Hex(),
		Amount:       call.Value.Dec(),
		DepositCount: count,
	})
	if err != nil {
		return err
	}
	if err := call.Emit(ctx, TopicDeposit, data); err != nil {
		return err
	}
	s.logger.Debug("deposit accepted", "wallet", call.To.Hex(), "sender", call.From.Hex(),
		"amount", units.FormatEther(call.Value), "deposit_count", count)
	return nil
}

// ContractBalance returns the value held by the wallet.
func (s *Service) ContractBalance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	if _, err := s.repo.Get(ctx, addr); err != nil {
		return nil, err
	}
	return s.runtime.Balance(ctx, addr)
}

// DepositCount returns how many deposits the wallet has accepted.
func (s *Service) DepositCount(ctx context.Context, addr common.Address) (uint64, error) {
	if _, err := s.repo.Get(ctx, addr); err != nil {
		return 0, err
	}
	return s.runtime.Counter(ctx, addr, counterDeposits)
}

// Deposits returns the wallet's Deposit records in emission order.
func (s *Service) Deposits(ctx context.Context, addr common.Address) ([]Deposit, error) {
	if _, err := s.repo.Get(ctx, addr); err != nil {
		return nil, err
	}
	logs, err := s.runtime.Logs(ctx, addr, TopicDeposit)
	if err != nil {
		return nil, err
	}
	out := make([]Deposit, 0, len(logs))
	for _, lg := range logs {
		d, err := decodeDeposit(lg)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func decodeDeposit(lg ledger.Log) (Deposit, error) {
	var rec depositRecord
	if err := json.Unmarshal(lg.Data, &rec); err != nil {
		return Deposit{}, fmt.Errorf("decode deposit %s: %w", lg.ID, err)
	}
	amount, err := uint256.FromDecimal(rec.Amount)
	if err != nil {
		return Deposit{}, fmt.Errorf("decode deposit %s amount: %w", lg.ID, err)
	}
	return Deposit{
		ID:           lg.ID,
		Wallet:       lg.Contract,
		Sender:       common.HexToAddress(rec.Sender),
		Amount:       amount,
		DepositCount: rec.DepositCount,
		At:           lg.CreatedAt,
	}, nil
}

// SendViaTransfer forwards value under the stipend; any rejection fails the send.
func (s *Service) SendViaTransfer(ctx context.Context, input SendInput) (SendResult, error) {
	return s.Send(ctx, MechanismTransfer, input)
}

// SendViaSend forwards value under the stipend and fails the send when the
// delivery reports failure.
func (s *Service) SendViaSend(ctx context.Context, input SendInput) (SendResult, error) {
	return s.Send(ctx, MechanismSend, input)
}

// SendViaCall forwards value without a gas ceiling and fails the send when the
// delivery reports failure.
func (s *Service) SendViaCall(ctx context.Context, input SendInput) (SendResult, error) {
	return s.Send(ctx, MechanismCall, input)
}

// Send moves amount from the wallet to the destination using mechanism m.
// Either the full amount moves or nothing changes.
func (s *Service) Send(ctx context.Context, m Mechanism, input SendInput) (SendResult, error) {
	if !m.Valid() {
		return SendResult{}, ErrInvalidMechanism
	}
	amount := input.Amount
	if amount == nil {
		amount = new(uint256.Int)
	}

	w, err := s.repo.Get(ctx, input.Wallet)
	if err != nil {
		return SendResult{}, err
	}

	var remaining *uint256.Int
	err = s.runtime.Invoke(ctx, input.Caller, w.Address, func(ctx context.Context, call *chain.Call) error {
		if s.opts.OwnerOnly && call.From != w.Owner {
			return ErrNotOwner
		}
		balance, err := call.Tx().Balance(ctx, w.Address)
		if err != nil {
			return err
		}
		if balance.Lt(amount) {
			return ErrInsufficientBalance
		}

		switch m {
		case MechanismTransfer:
			if err := s.runtime.Transfer(ctx, w.Address, input.Destination, amount); err != nil {
				return fmt.Errorf("%w: %w", ErrTransferRejected, err)
			}
		case MechanismSend:
			if ok := s.runtime.Send(ctx, w.Address, input.Destination, amount); !ok {
				return ErrSendRejected
			}
		case MechanismCall:
			if ok := s.runtime.Call(ctx, w.Address, input.Destination, amount, nil); !ok {
				return ErrCallRejected
			}
		}

		remaining, err = call.Tx().Balance(ctx, w.Address)
		return err
	})
	if err != nil {
		s.logger.Warn("wallet send failed", "wallet", w.Address.Hex(), "mechanism", string(m),
			"destination", input.Destination.Hex(), "amount", units.FormatEther(amount), "error", err)
		return SendResult{}, err
	}

	s.logger.Info("wallet send", "wallet", w.Address.Hex(), "mechanism", string(m),
		"destination", input.Destination.Hex(), "amount", units.FormatEther(amount))
	return SendResult{
		Wallet:        w.Address,
		Destination:   input.Destination,
		Amount:        new(uint256.Int).Set(amount),
		Mechanism:     m,
		WalletBalance: remaining,
		CompletedAt:   s.now().UTC(),
	}, nil
}
