package orderbook

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelTotalCannotOverflow(t *testing.T) {
	e := newTestEngine(t, 8, 1, 4)
	place(t, e, Sell, "10", math.MaxInt64)

	_, trades, err := e.PlaceOrder(Sell, d("10"), 1)
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, IsCapacity(err))
	assert.Nil(t, trades)
	assert.Equal(t, 1, e.Stats().Orders)

	depth := e.Depth(0)
	require.Len(t, depth.Asks, 1)
	assert.Equal(t, int64(math.MaxInt64), depth.Asks[0].Quantity)

	// fully fillable, so it needs no bid level even though none is free for it
	place(t, e, Buy, "1", 1)
	_, trades = place(t, e, Buy, "10", 3)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(3), trades[0].Quantity)
	assert.Equal(t, int64(math.MaxInt64-3), e.Depth(0).Asks[0].Quantity)
	checkBook(t, e)
}

func TestLiquiditySumSaturates(t *testing.T) {
	e := newTestEngine(t, 8, 2, 4)
	place(t, e, Sell, "10", 5)
	place(t, e, Sell, "11", math.MaxInt64)
	place(t, e, Buy, "1", 1)
	place(t, e, Buy, "2", 1)

	// 5 + MaxInt64 would wrap; the order must still be admitted and fill
	_, trades := place(t, e, Buy, "11", math.MaxInt64)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(5), trades[0].Quantity)
	assert.Equal(t, int64(math.MaxInt64-5), trades[1].Quantity)

	depth := e.Depth(0)
	require.Len(t, depth.Asks, 1)
	assert.Equal(t, int64(5), depth.Asks[0].Quantity)
	checkBook(t, e)
}

func TestRestoreRejectsOverflowingLevel(t *testing.T) {
	cfg := Config{MaxOrders: 4, MaxPriceLevels: 2, MaxOrdersPerLevel: 4}
	_, err := Restore(State{Config: cfg, Seq: 2, Orders: []Order{
		{ID: 0, Side: Sell, Price: d("10"), Quantity: math.MaxInt64, Remaining: math.MaxInt64, Seq: 1},
		{ID: 1, Side: Sell, Price: d("10"), Quantity: 1, Remaining: 1, Seq: 2},
	}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
