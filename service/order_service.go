package service

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchcore/domain/orderbook"
	"matchcore/infra/codec"
	"matchcore/infra/journal"
	"matchcore/infra/metrics"
	"matchcore/infra/outbox"
	"matchcore/infra/sequence"
)

// ErrOutboxWrite means the order was placed but its trade events were not
// stored for publishing.
var ErrOutboxWrite = errors.New("trade events not stored")

// Options holds the optional collaborators. Nil members are skipped.
type Options struct {
	Journal *journal.Journal
	Outbox  *outbox.Outbox
	Codec   codec.Codec // required with Outbox
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

type OrderService struct {
	mu sync.Mutex

	engine  *orderbook.Engine
	seq     *sequence.Sequencer
	journal *journal.Journal
	outbox  *outbox.Outbox
	codec   codec.Codec
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewOrderService(engine *orderbook.Engine, seq *sequence.Sequencer, opts Options) (*OrderService, error) {
	if engine == nil || seq == nil {
		return nil, errors.New("service: engine and sequencer required")
	}
	if opts.Outbox != nil && opts.Codec == nil {
		return nil, errors.New("service: outbox needs a codec")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &OrderService{
		engine:  engine,
		seq:     seq,
		journal: opts.Journal,
		outbox:  opts.Outbox,
		codec:   opts.Codec,
		metrics: opts.Metrics,
		log:     opts.Logger,
		now:     opts.Now,
	}, nil
}

// ---- commands ----

type PlaceResult struct {
	Seq    uint64 // command sequence
	Order  orderbook.Order
	Trades []orderbook.Trade
}

// PlaceOrder journals the command, runs it through the engine and stores one
// outbox event per trade.
//
// When the outbox write fails the order has already traded; the result is
// returned together with an error wrapping ErrOutboxWrite.
func (s *OrderService) PlaceOrder(ctx context.Context, side orderbook.Side, price decimal.Decimal, qty int64) (PlaceResult, error) {
	if err := ctx.Err(); err != nil {
		return PlaceResult{}, err
	}
	if err := validate(side, price, qty); err != nil {
		s.reject(err)
		return PlaceResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	seq := s.seq.Next()

	// 1. intent
	if s.journal != nil {
		rec := journal.NewRecord(journal.RecordPlace, seq, encodePlace(side, price, qty))
		if err := s.journal.Append(rec); err != nil {
			s.log.Error("journal append failed", zap.Uint64("seq", seq), zap.Error(err))
			return PlaceResult{}, errors.Wrap(err, "journal")
		}
	}

	// 2. deterministic domain logic
	id, trades, err := s.engine.PlaceOrder(side, price, qty)
	if err != nil {
		s.reject(err)
		s.log.Debug("order rejected",
			zap.Uint64("seq", seq),
			zap.Stringer("side", side),
			zap.Stringer("price", price),
			zap.Int64("qty", qty),
			zap.Error(err),
		)
		return PlaceResult{}, err
	}
	order, _ := s.engine.GetOrder(id)
	res := PlaceResult{Seq: seq, Order: order, Trades: trades}

	s.record(res, start)

	// 3. outbound events
	if err := s.storeEvents(seq, trades); err != nil {
		s.log.Error("outbox write failed",
			zap.Uint64("seq", seq),
			zap.Uint32("order_id", uint32(id)),
			zap.Int("trades", len(trades)),
			zap.Error(err),
		)
		return res, errors.Mark(errors.Wrapf(err, "order %d", id), ErrOutboxWrite)
	}
	return res, nil
}

func (s *OrderService) storeEvents(seq uint64, trades []orderbook.Trade) error {
	if s.outbox == nil || len(trades) == 0 {
		return nil
	}
	now := s.now()
	payloads := make([][]byte, len(trades))
	for i, tr := range trades {
		b, err := s.codec.Encode(codec.NewTradeEvent(seq, i, tr, now))
		if err != nil {
			return errors.Wrapf(err, "encode trade %d", i)
		}
		payloads[i] = b
	}
	return s.outbox.PutNew(seq, payloads)
}

func (s *OrderService) record(res PlaceResult, start time.Time) {
	s.log.Debug("order placed",
		zap.Uint64("seq", res.Seq),
		zap.Uint32("order_id", uint32(res.Order.ID)),
		zap.Stringer("side", res.Order.Side),
		zap.Stringer("price", res.Order.Price),
		zap.Int64("qty", res.Order.Quantity),
		zap.Int64("remaining", res.Order.Remaining),
		zap.Int("trades", len(res.Trades)),
	)
	if s.metrics == nil {
		return
	}
	s.metrics.OrdersPlaced.Inc()
	for _, tr := range res.Trades {
		s.metrics.Trades.Inc()
		s.metrics.TradedQuantity.Add(float64(tr.Quantity))
	}
	st := s.engine.Stats()
	s.metrics.Book(st.Orders, st.BidLevels, st.AskLevels)
	s.metrics.PlaceLatency.Observe(s.now().Sub(start).Seconds())
}

func (s *OrderService) reject(err error) {
	if s.metrics != nil {
		s.metrics.Rejected(RejectReason(err))
	}
}

// RejectReason names the rejection class of err for metrics and clients.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, orderbook.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, orderbook.ErrArenaFull):
		return "arena_full"
	case errors.Is(err, orderbook.ErrPriceLevelCapacity):
		return "price_level_capacity"
	case errors.Is(err, orderbook.ErrQueueFull):
		return "queue_full"
	default:
		return "internal"
	}
}

func validate(side orderbook.Side, price decimal.Decimal, qty int64) error {
	switch {
	case !side.Valid():
		return errors.Wrapf(orderbook.ErrInvalidArgument, "side %d", side)
	case qty <= 0:
		return errors.Wrapf(orderbook.ErrInvalidArgument, "quantity %d must be positive", qty)
	case price.Sign() <= 0:
		return errors.Wrapf(orderbook.ErrInvalidArgument, "price %s must be positive", price)
	}
	return nil
}

// ---- queries ----

func (s *OrderService) GetOrder(id orderbook.OrderID) (orderbook.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.GetOrder(id)
}

func (s *OrderService) TopOfBook() orderbook.Top {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.TopOfBook()
}

func (s *OrderService) Depth(limit int) orderbook.Depth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Depth(limit)
}

func (s *OrderService) Stats() orderbook.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Stats()
}

// LastSeq returns the last command sequence handed out.
func (s *OrderService) LastSeq() uint64 {
	return s.seq.Current()
}
