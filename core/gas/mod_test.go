package gas

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosts_Cost(t *testing.T) {
	costs := DefaultCosts()

	require.Equal(t, uint64(2), costs.Cost(OpLog))
	require.Equal(t, uint64(5), costs.Cost(OpSetStorage))
	require.Equal(t, DefaultCost, costs.Cost("something_unknown"))
}

func TestMeter_Charge(t *testing.T) {
	meter := NewMeter(100, nil)

	require.NoError(t, meter.Charge(OpLog))
	require.Equal(t, uint64(2), meter.Used())

	require.NoError(t, meter.ChargeN(OpSetStorage, 3))
	require.Equal(t, uint64(17), meter.Used())
	require.Equal(t, uint64(83), meter.Remaining())
	require.Equal(t, uint64(100), meter.Limit())
}

func TestMeter_OutOfGas(t *testing.T) {
	meter := NewMeter(10, Costs{OpSetStorage: 4})

	require.NoError(t, meter.Charge(OpSetStorage))
	require.NoError(t, meter.Charge(OpSetStorage))

	err := meter.Charge(OpSetStorage)
	require.Error(t, err)

	oog, ok := err.(*OutOfGasError)
	require.True(t, ok)
	require.Equal(t, uint64(10), oog.Limit)
	require.Contains(t, err.Error(), "out of gas")

	// The failed attempt counts as full consumption.
	require.Equal(t, meter.Limit(), meter.Used())
	require.Equal(t, uint64(0), meter.Remaining())
}

func TestMeter_ExactLimit(t *testing.T) {
	meter := NewMeter(6, Costs{OpLog: 3})

	require.NoError(t, meter.ChargeN(OpLog, 2))
	require.Equal(t, meter.Limit(), meter.Used())

	require.Error(t, meter.Charge(OpLog))
}

func TestMeter_Consume(t *testing.T) {
	meter := NewMeter(50, nil)

	require.NoError(t, meter.Consume(49))
	require.NoError(t, meter.Consume(1))

	err := meter.Consume(1)
	require.Error(t, err)
	require.Equal(t, uint64(50), meter.Used())
}

func TestMeter_ChargeN_Overflow(t *testing.T) {
	// OpLog costs 2, so this product wraps to zero; the meter must treat it
	// as exceeding the limit, not as a free charge.
	meter := NewMeter(100, nil)

	err := meter.ChargeN(OpLog, 1<<63)
	require.Error(t, err)

	oog, ok := err.(*OutOfGasError)
	require.True(t, ok)
	require.Equal(t, OpLog, oog.Op)
	require.Equal(t, meter.Limit(), meter.Used())

	meter = NewMeter(100, nil)
	require.NoError(t, meter.ChargeN(OpLog, 0))
	require.Equal(t, uint64(0), meter.Used())
}

func TestMeter_Overflow(t *testing.T) {
	meter := NewMeter(^uint64(0), nil)

	require.NoError(t, meter.Consume(^uint64(0) - 1))

	err := meter.Consume(^uint64(0))
	require.Error(t, err)
	require.Equal(t, meter.Limit(), meter.Used())
}
