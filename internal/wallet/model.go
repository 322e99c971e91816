package wallet

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Wallet is a custodial contract account holding a single native balance.
type Wallet struct {
	Address   common.Address
	Owner     common.Address
	CreatedAt time.Time
}

// Deposit is the record emitted for every accepted inbound transfer.
type Deposit struct {
	ID           uuid.UUID
	Wallet       common.Address
	Sender       common.Address
	Amount       *uint256.Int
	DepositCount uint64
	At           time.Time
}

// Mechanism selects how an outbound send forwards value.
type Mechanism string

const (
	// MechanismTransfer forwards under the stipend and fails on any rejection.
	MechanismTransfer Mechanism = "transfer"
	// MechanismSend forwards under the stipend and checks a success flag.
	MechanismSend Mechanism = "send"
	// MechanismCall forwards without a gas ceiling and checks a success flag.
	MechanismCall Mechanism = "call"
)

// Valid reports whether m names a known mechanism.
func (m Mechanism) Valid() bool {
	switch m {
	case MechanismTransfer, MechanismSend, MechanismCall:
		return true
	}
	return false
}

// SendInput captures an outbound send request.
type SendInput struct {
	Caller      common.Address
	Wallet      common.Address
	Destination common.Address
	Amount      *uint256.Int
}

// SendResult describes a completed outbound send.
type SendResult struct {
	Wallet        common.Address
	Destination   common.Address
	Amount        *uint256.Int
	Mechanism     Mechanism
	WalletBalance *uint256.Int
	CompletedAt   time.Time
}

// depositRecord is the JSON body of a Deposit log.
type depositRecord struct {
	Sender       string `json:"sender"`
	Amount       string `json:"amount"`
	DepositCount uint64 `json:"depositCount"`
}
