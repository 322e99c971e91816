package chain

import (
	"errors"
	"math"

	"github.com/ethereum/go-ethereum/params"
)

const (
	// Stipend is the gas ceiling granted to a recipient by transfer and send.
	Stipend = params.CallStipend
	// ValueTransferGas is charged to the calling frame for every nested
	// delivery that moves value.
	ValueTransferGas = params.CallValueTransferGas
)

// ErrOutOfGas is returned when a recipient's logic exceeds its gas ceiling.
var ErrOutOfGas = errors.New("out of gas")

// GasMeter tracks the work a recipient performs against its ceiling.
type GasMeter struct {
	limit     uint64
	used      uint64
	unlimited bool
}

// NewGasMeter returns a meter capped at limit.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// UnlimitedGas returns a meter with no ceiling.
func UnlimitedGas() *GasMeter {
	return &GasMeter{limit: math.MaxUint64, unlimited: true}
}

// Consume charges amount and fails once the ceiling is crossed. A failed
// charge exhausts the meter.
func (m *GasMeter) Consume(amount uint64) error {
	if m.unlimited {
		m.used += amount
		return nil
	}
	if amount > m.limit-m.used {
		m.used = m.limit
		return ErrOutOfGas
	}
	m.used += amount
	return nil
}

// Used reports the gas consumed so far.
func (m *GasMeter) Used() uint64 { return m.used }

// Remaining reports the gas left before the ceiling.
func (m *GasMeter) Remaining() uint64 {
	if m.unlimited {
		return math.MaxUint64
	}
	return m.limit - m.used
}

// Unlimited reports whether the meter has no ceiling.
func (m *GasMeter) Unlimited() bool { return m.unlimited }

// capped returns a meter for a nested frame: the requested ceiling, bounded
// by what m has left.
func (m *GasMeter) capped(requested *GasMeter) *GasMeter {
	if m.unlimited {
		return requested
	}
	limit := m.Remaining()
	if !requested.unlimited && requested.limit < limit {
		limit = requested.limit
	}
	return NewGasMeter(limit)
}
