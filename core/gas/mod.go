// Package gas implements the execution meter. Gas is charged at
// host-function call boundaries against a fixed limit; the meter fails the
// instant the running total would exceed it.
package gas

import "fmt"

// Host operations known to the cost table.
const (
	OpLog            = "log"
	OpEmitEvent      = "emit_event"
	OpGetStorage     = "get_storage"
	OpSetStorage     = "set_storage"
	OpGetBalance     = "get_balance"
	OpGetBlockHeight = "get_block_height"
	OpGetTimestamp   = "get_timestamp"
	OpGetSender      = "get_sender"
	OpGetValue       = "get_value"
	OpTransfer       = "transfer"
)

// Costs maps a host operation to its gas cost. Unknown operations fall back
// to DefaultCost.
type Costs map[string]uint64

// DefaultCost is charged for operations absent from the table.
const DefaultCost uint64 = 1

// DefaultCosts returns the default cost table.
func DefaultCosts() Costs {
	return Costs{
		OpLog:            2,
		OpEmitEvent:      5,
		OpGetStorage:     3,
		OpSetStorage:     5,
		OpGetBalance:     2,
		OpGetBlockHeight: 1,
		OpGetTimestamp:   1,
		OpGetSender:      1,
		OpGetValue:       1,
		OpTransfer:       2,
	}
}

// Cost returns the cost of the operation, or the default cost when the
// operation is not in the table.
func (c Costs) Cost(op string) uint64 {
	cost, ok := c[op]
	if !ok {
		return DefaultCost
	}

	return cost
}

// OutOfGasError is returned when a charge would exceed the limit. The
// attempt counts as fully consumed: after the error the meter reports
// Used() == Limit().
type OutOfGasError struct {
	Limit uint64
	Op    string
}

// Error implements error.
func (e *OutOfGasError) Error() string {
	return fmt.Sprintf("out of gas: limit %d exceeded by '%s'", e.Limit, e.Op)
}

// Meter tracks a monotonically increasing gas total against a fixed limit.
// It is not safe for concurrent use: one meter belongs to one execution.
type Meter struct {
	limit uint64
	used  uint64
	costs Costs
}

// NewMeter returns a meter for the given limit and cost table. A nil table
// falls back to the defaults.
func NewMeter(limit uint64, costs Costs) *Meter {
	if costs == nil {
		costs = DefaultCosts()
	}

	return &Meter{
		limit: limit,
		costs: costs,
	}
}

// Limit returns the gas limit of the meter.
func (m *Meter) Limit() uint64 {
	return m.limit
}

// Used returns the gas consumed so far.
func (m *Meter) Used() uint64 {
	return m.used
}

// Remaining returns the gas left before the limit.
func (m *Meter) Remaining() uint64 {
	return m.limit - m.used
}

// Charge adds the cost of the operation to the running total. When the total
// would exceed the limit it consumes everything and returns an
// *OutOfGasError.
func (m *Meter) Charge(op string) error {
	return m.ChargeN(op, 1)
}

// ChargeN charges the operation n times at once. An overflowing
// multiplication exceeds any limit, so it drains the meter outright instead
// of wrapping into a small charge.
func (m *Meter) ChargeN(op string, n uint64) error {
	unit := m.costs.Cost(op)

	cost := unit * n
	if n != 0 && cost/n != unit {
		m.used = m.limit

		return &OutOfGasError{Limit: m.limit, Op: op}
	}

	if m.used+cost > m.limit || m.used+cost < m.used {
		m.used = m.limit

		return &OutOfGasError{Limit: m.limit, Op: op}
	}

	m.used += cost

	return nil
}

// Consume adds a raw amount of gas, used for flat charges that are not tied
// to a host operation. The same overflow rule as Charge applies.
func (m *Meter) Consume(amount uint64) error {
	if m.used+amount > m.limit || m.used+amount < m.used {
		m.used = m.limit

		return &OutOfGasError{Limit: m.limit, Op: "consume"}
	}

	m.used += amount

	return nil
}
