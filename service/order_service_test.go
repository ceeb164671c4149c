package service

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"matchcore/domain/orderbook"
	"matchcore/infra/codec"
	"matchcore/infra/journal"
	"matchcore/infra/metrics"
	"matchcore/infra/outbox"
	"matchcore/infra/sequence"
)

var testCfg = orderbook.Config{MaxOrders: 16, MaxPriceLevels: 4, MaxOrdersPerLevel: 4}

type fixture struct {
	svc        *OrderService
	journalDir string
	outbox     *outbox.Outbox
	metrics    *metrics.Metrics
}

func newFixture(t *testing.T, cfg orderbook.Config) *fixture {
	t.Helper()
	engine, err := orderbook.New(cfg)
	require.NoError(t, err)

	dir := t.TempDir()
	j, err := journal.Open(journal.Config{Dir: dir, SegmentSize: 1 << 20, SyncEvery: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	ob, err := outbox.Open(outbox.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ob.Close() })

	m := metrics.New(prometheus.NewRegistry())
	svc, err := NewOrderService(engine, sequence.New(0), Options{
		Journal: j,
		Outbox:  ob,
		Codec:   codec.JSON{},
		Metrics: m,
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return &fixture{svc: svc, journalDir: dir, outbox: ob, metrics: m}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) place(t *testing.T, side orderbook.Side, price string, qty int64) PlaceResult {
	t.Helper()
	res, err := f.svc.PlaceOrder(context.Background(), side, d(price), qty)
	require.NoError(t, err)
	return res
}

func TestPlaceOrderStoresTradeEvents(t *testing.T) {
	f := newFixture(t, testCfg)
	f.place(t, orderbook.Sell, "101", 10)
	f.place(t, orderbook.Sell, "101", 5)
	f.place(t, orderbook.Sell, "102", 20)

	res := f.place(t, orderbook.Buy, "102", 18)
	assert.Equal(t, uint64(4), res.Seq)
	assert.Equal(t, orderbook.OrderID(3), res.Order.ID)
	assert.Zero(t, res.Order.Remaining)
	require.Len(t, res.Trades, 3)

	var events []*codec.TradeEvent
	require.NoError(t, f.outbox.ScanPending(func(e outbox.Entry) error {
		ev, err := codec.JSON{}.Decode(e.Payload)
		if err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	}))
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, uint64(4), ev.CommandSeq)
		assert.Equal(t, uint32(i), ev.Index)
		assert.Equal(t, codec.EventID(4, i), ev.EventID)
		assert.True(t, res.Trades[i].Price.Equal(ev.Price))
		assert.Equal(t, res.Trades[i].Quantity, ev.Quantity)
		assert.Equal(t, uint32(res.Trades[i].MakerID), ev.MakerID)
	}

	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.OrdersPlaced))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.Trades))
	assert.Equal(t, 18.0, testutil.ToFloat64(f.metrics.TradedQuantity))
}

func TestPlaceOrderInvalidArgsNotJournaled(t *testing.T) {
	f := newFixture(t, testCfg)

	_, err := f.svc.PlaceOrder(context.Background(), orderbook.Buy, d("0"), 1)
	assert.ErrorIs(t, err, orderbook.ErrInvalidArgument)
	_, err = f.svc.PlaceOrder(context.Background(), orderbook.Side(9), d("1"), 1)
	assert.ErrorIs(t, err, orderbook.ErrInvalidArgument)
	_, err = f.svc.PlaceOrder(context.Background(), orderbook.Sell, d("1"), 0)
	assert.ErrorIs(t, err, orderbook.ErrInvalidArgument)

	assert.Zero(t, f.svc.LastSeq())
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.OrdersRejected.WithLabelValues("invalid_argument")))

	seq, err := journal.Replay(f.journalDir, func(*journal.Record) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, seq)
}

func TestPlaceOrderCanceledContext(t *testing.T) {
	f := newFixture(t, testCfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.PlaceOrder(ctx, orderbook.Buy, d("1"), 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.svc.LastSeq())
}

func TestPlaceOrderCapacityRejection(t *testing.T) {
	f := newFixture(t, orderbook.Config{MaxOrders: 1, MaxPriceLevels: 1, MaxOrdersPerLevel: 1})
	f.place(t, orderbook.Buy, "100", 1)

	_, err := f.svc.PlaceOrder(context.Background(), orderbook.Buy, d("99"), 1)
	assert.ErrorIs(t, err, orderbook.ErrArenaFull)
	assert.Equal(t, "arena_full", RejectReason(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersRejected.WithLabelValues("arena_full")))

	assert.Equal(t, orderbook.Stats{Orders: 1, BidLevels: 1}, f.svc.Stats())
}

func TestQueries(t *testing.T) {
	f := newFixture(t, testCfg)
	f.place(t, orderbook.Buy, "99.5", 3)
	f.place(t, orderbook.Buy, "99.5", 2)
	f.place(t, orderbook.Sell, "100.25", 7)

	top := f.svc.TopOfBook()
	require.True(t, top.BestBid.Valid)
	require.True(t, top.BestAsk.Valid)
	assert.True(t, top.BestBid.Decimal.Equal(d("99.5")))
	assert.True(t, top.BestAsk.Decimal.Equal(d("100.25")))

	depth := f.svc.Depth(0)
	require.Len(t, depth.Bids, 1)
	assert.Equal(t, int64(5), depth.Bids[0].Quantity)
	assert.Equal(t, 2, depth.Bids[0].Orders)
	require.Len(t, depth.Asks, 1)

	o, err := f.svc.GetOrder(2)
	require.NoError(t, err)
	assert.Equal(t, orderbook.Sell, o.Side)
	assert.Equal(t, int64(7), o.Remaining)

	_, err = f.svc.GetOrder(3)
	assert.ErrorIs(t, err, orderbook.ErrOrderNotFound)
}

func TestReplayJournalRebuildsBook(t *testing.T) {
	cfg := orderbook.Config{MaxOrders: 4, MaxPriceLevels: 2, MaxOrdersPerLevel: 2}
	f := newFixture(t, cfg)
	f.place(t, orderbook.Sell, "101", 10)
	f.place(t, orderbook.Sell, "102", 4)
	_, err := f.svc.PlaceOrder(context.Background(), orderbook.Sell, d("103"), 1)
	require.ErrorIs(t, err, orderbook.ErrPriceLevelCapacity)
	f.place(t, orderbook.Buy, "101.5", 6)
	f.place(t, orderbook.Buy, "100", 2)

	want := f.svc.Depth(0)

	fresh, err := orderbook.New(cfg)
	require.NoError(t, err)
	last, err := ReplayJournal(f.journalDir, fresh, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)

	got := fresh.Depth(0)
	require.Len(t, got.Bids, len(want.Bids))
	require.Len(t, got.Asks, len(want.Asks))
	for i := range want.Bids {
		assert.True(t, want.Bids[i].Price.Equal(got.Bids[i].Price))
		assert.Equal(t, want.Bids[i].Quantity, got.Bids[i].Quantity)
	}
	for i := range want.Asks {
		assert.True(t, want.Asks[i].Price.Equal(got.Asks[i].Price))
		assert.Equal(t, want.Asks[i].Quantity, got.Asks[i].Quantity)
	}
	assert.Equal(t, f.svc.Stats(), fresh.Stats())
}

func TestPlacePayloadCodec(t *testing.T) {
	b := encodePlace(orderbook.Sell, d("101.250"), 42)
	assert.Equal(t, "1|101.25|42", string(b))

	side, price, qty, err := decodePlace(b)
	require.NoError(t, err)
	assert.Equal(t, orderbook.Sell, side)
	assert.True(t, price.Equal(d("101.25")))
	assert.Equal(t, int64(42), qty)

	for _, bad := range []string{"", "1|2", "x|1|1", "1|abc|1", "1|1|y"} {
		_, _, _, err := decodePlace([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestConcurrentPlaceOrder(t *testing.T) {
	engine, err := orderbook.New(orderbook.Config{MaxOrders: 1024, MaxPriceLevels: 8, MaxOrdersPerLevel: 1024})
	require.NoError(t, err)
	svc, err := NewOrderService(engine, sequence.New(0), Options{})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seqs = map[uint64]bool{}
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			side := orderbook.Side(w % 2)
			for i := 0; i < 50; i++ {
				res, err := svc.PlaceOrder(context.Background(), side, d("100"), 1)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seqs[res.Seq] = true
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, seqs, 400)
	assert.Equal(t, uint64(400), svc.LastSeq())
	st := svc.Stats()
	assert.Equal(t, 400, st.Orders)
	assert.Zero(t, st.BidLevels)
	assert.Zero(t, st.AskLevels)
}

func TestNewOrderServiceRequiresCodecWithOutbox(t *testing.T) {
	engine, err := orderbook.New(testCfg)
	require.NoError(t, err)
	ob, err := outbox.Open(outbox.Config{InMemory: true})
	require.NoError(t, err)
	defer ob.Close()

	_, err = NewOrderService(engine, sequence.New(0), Options{Outbox: ob})
	assert.Error(t, err)
}

type failingCodec struct{ codec.JSON }

func (failingCodec) Encode(*codec.TradeEvent) ([]byte, error) {
	return nil, errors.New("encoder unavailable")
}

func TestPlaceOrderOutboxFailureKeepsResult(t *testing.T) {
	engine, err := orderbook.New(testCfg)
	require.NoError(t, err)
	ob, err := outbox.Open(outbox.Config{InMemory: true})
	require.NoError(t, err)
	defer ob.Close()

	svc, err := NewOrderService(engine, sequence.New(0), Options{Outbox: ob, Codec: failingCodec{}})
	require.NoError(t, err)

	_, err = svc.PlaceOrder(context.Background(), orderbook.Sell, d("10"), 2)
	require.NoError(t, err)
	res, err := svc.PlaceOrder(context.Background(), orderbook.Buy, d("10"), 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutboxWrite))
	assert.Len(t, res.Trades, 1)
	assert.Equal(t, uint64(2), res.Seq)
	assert.Zero(t, svc.Stats().AskLevels)
}
