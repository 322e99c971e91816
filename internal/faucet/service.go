// Package faucet credits external accounts in development environments.
package faucet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/congo-pay/custody/internal/chain"
	"github.com/congo-pay/custody/internal/units"
)

var (
	// ErrZeroValue rejects empty funding requests.
	ErrZeroValue = errors.New("value must be positive")
	// ErrAboveLimit rejects requests above the configured per-request maximum.
	ErrAboveLimit = errors.New("value above faucet limit")
	// ErrContractAccount rejects funding of accounts with attached logic;
	// they only take value through transactions.
	ErrContractAccount = errors.New("cannot fund a contract account")
)

// Minter creates value, reads balances and knows which accounts are contracts.
type Minter interface {
	Mint(ctx context.Context, to common.Address, amount *uint256.Int) error
	Balance(ctx context.Context, addr common.Address) (*uint256.Int, error)
	Lookup(addr common.Address) (chain.Recipient, bool)
}

// Service funds accounts up to a per-request maximum.
type Service struct {
	minter Minter
	limit  *uint256.Int
	logger *slog.Logger
}

// NewService builds a faucet. A nil limit means no maximum.
func NewService(minter Minter, limit *uint256.Int, logger *slog.Logger) *Service {
	return &Service{minter: minter, limit: limit, logger: logger}
}

// Fund mints value to addr and returns the resulting balance.
func (s *Service) Fund(ctx context.Context, addr common.Address, value *uint256.Int) (*uint256.Int, error) {
	if value == nil || value.IsZero() {
		return nil, ErrZeroValue
	}
	if _, contract := s.minter.Lookup(addr); contract {
		return nil, fmt.Errorf("%w: %s", ErrContractAccount, addr.Hex())
	}
	if s.limit != nil && value.Gt(s.limit) {
		return nil, fmt.Errorf("%w: max %s ether", ErrAboveLimit, units.FormatEther(s.limit))
	}
	if err := s.minter.Mint(ctx, addr, value); err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	bal, err := s.minter.Balance(ctx, addr)
	if err != nil {
		return nil, err
	}
	s.logger.Info("account funded", "address", addr.Hex(), "amount", units.FormatEther(value))
	return bal, nil
}
