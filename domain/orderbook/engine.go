package orderbook

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Config holds the engine's hard memory ceilings. They cannot change after
// New returns.
type Config struct {
	MaxOrders         int // arena capacity
	MaxPriceLevels    int // distinct prices per side
	MaxOrdersPerLevel int // queue capacity of one price level
}

func (c Config) Validate() error {
	switch {
	case c.MaxOrders <= 0 || uint64(c.MaxOrders) > math.MaxUint32:
		return errors.Wrapf(ErrInvalidConfig, "max orders %d", c.MaxOrders)
	case c.MaxPriceLevels <= 0:
		return errors.Wrapf(ErrInvalidConfig, "max price levels %d", c.MaxPriceLevels)
	case c.MaxOrdersPerLevel <= 0:
		return errors.Wrapf(ErrInvalidConfig, "max orders per level %d", c.MaxOrdersPerLevel)
	}
	return nil
}

// Engine matches limit orders for one instrument. Not safe for concurrent use.
type Engine struct {
	cfg   Config
	arena *Arena
	bids  *SideBook
	asks  *SideBook
	seq   uint64
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:   cfg,
		arena: NewArena(cfg.MaxOrders),
		bids:  NewSideBook(Buy, cfg.MaxPriceLevels, cfg.MaxOrdersPerLevel),
		asks:  NewSideBook(Sell, cfg.MaxPriceLevels, cfg.MaxOrdersPerLevel),
	}, nil
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) book(s Side) *SideBook {
	if s == Buy {
		return e.bids
	}
	return e.asks
}

// ---- commands ----

// PlaceOrder matches a new limit order against the opposite side and rests
// any remainder on its own side. Trades are returned in execution order.
//
// A rejected order leaves the engine untouched: it is not allocated, does
// not consume an arrival stamp and produces no trades.
func (e *Engine) PlaceOrder(side Side, price decimal.Decimal, qty int64) (OrderID, []Trade, error) {
	if err := e.admit(side, price, qty); err != nil {
		return 0, nil, err
	}

	e.seq++
	id, err := e.arena.Alloc(Order{
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Remaining: qty,
		Seq:       e.seq,
	})
	if err != nil {
		// admit checked the arena; unreachable
		e.seq--
		return 0, nil, err
	}

	trades := e.match(id)

	if taker := e.arena.at(id); taker.Remaining > 0 {
		if err := e.rest(id); err != nil {
			// admit checked level and queue room; unreachable
			return id, trades, errors.Wrap(err, "rest remainder")
		}
	}
	return id, trades, nil
}

// admit validates the request and verifies every capacity the call could
// need before anything is mutated.
func (e *Engine) admit(side Side, price decimal.Decimal, qty int64) error {
	if !side.Valid() {
		return errors.Wrapf(ErrInvalidArgument, "side %d", side)
	}
	if qty <= 0 {
		return errors.Wrapf(ErrInvalidArgument, "quantity %d must be positive", qty)
	}
	if price.Sign() <= 0 {
		return errors.Wrapf(ErrInvalidArgument, "price %s must be positive", price)
	}
	if e.arena.Full() {
		return errors.Wrapf(ErrArenaFull, "capacity %d", e.arena.Cap())
	}

	available := e.liquidity(side, price, qty)
	if available >= qty {
		return nil // fully filled, nothing rests
	}
	remainder := qty - available

	own := e.book(side)
	if i := own.FindLevel(price); i >= 0 {
		lvl := own.Level(i)
		if lvl.queue.Full() {
			return errors.Wrapf(ErrQueueFull, "%s level %s holds %d orders", side, price, lvl.Orders())
		}
		if lvl.TotalQty > math.MaxInt64-remainder {
			return errors.Wrapf(ErrInvalidArgument, "%s level %s cannot hold %d more", side, price, remainder)
		}
		return nil
	}
	if own.Full() {
		return errors.Wrapf(ErrPriceLevelCapacity, "%s side holds %d levels, cannot add %s", side, own.Len(), price)
	}
	return nil
}

// liquidity sums the opposite side's quantity crossable at limit, stopping
// once want is reached. The sum saturates at want.
func (e *Engine) liquidity(side Side, limit decimal.Decimal, want int64) int64 {
	opp := e.book(side.Opposite())
	var available int64
	opp.Walk(func(lvl *PriceLevel) bool {
		if !opp.marketable(lvl.Price, limit) {
			return false
		}
		if lvl.TotalQty >= want-available {
			available = want
			return false
		}
		available += lvl.TotalQty
		return true
	})
	return available
}

// ---- matching ----

func (e *Engine) match(takerID OrderID) []Trade {
	taker := e.arena.at(takerID)
	opp := e.book(taker.Side.Opposite())

	var trades []Trade
	for taker.Remaining > 0 {
		best := opp.BestIndex()
		if best < 0 {
			break
		}
		lvl := opp.Level(best)
		if !opp.marketable(lvl.Price, taker.Price) {
			break
		}

		trades = e.walkLevel(taker, lvl, trades)

		if lvl.Empty() {
			opp.RemoveLevel(best)
		}
	}
	return trades
}

// walkLevel fills taker against lvl's queue in FIFO order.
func (e *Engine) walkLevel(taker *Order, lvl *PriceLevel, trades []Trade) []Trade {
	for taker.Remaining > 0 {
		makerID, ok := lvl.queue.Peek()
		if !ok {
			break
		}
		maker := e.arena.at(makerID)
		if !maker.Active() {
			// left behind by an earlier fill
			lvl.queue.Dequeue()
			continue
		}

		qty := min(taker.Remaining, maker.Remaining)
		taker.Remaining -= qty
		maker.Remaining -= qty
		lvl.TotalQty -= qty

		trades = append(trades, Trade{
			Price:     maker.Price,
			Quantity:  qty,
			TakerID:   taker.ID,
			MakerID:   maker.ID,
			TakerSide: taker.Side,
		})

		if !maker.Active() {
			lvl.queue.Dequeue()
		}
	}
	return trades
}

func (e *Engine) rest(id OrderID) error {
	o := e.arena.at(id)
	own := e.book(o.Side)

	if i := own.FindLevel(o.Price); i >= 0 && own.Level(i).TotalQty > math.MaxInt64-o.Remaining {
		return errors.Wrapf(ErrInvalidArgument, "%s level %s total quantity overflows", o.Side, o.Price)
	}
	i, err := own.GetOrCreateLevel(o.Price)
	if err != nil {
		return err
	}
	lvl := own.Level(i)
	if !lvl.queue.Enqueue(id) {
		if lvl.Empty() {
			own.RemoveLevel(i)
		}
		return errors.Wrapf(ErrQueueFull, "%s level %s", o.Side, o.Price)
	}
	lvl.TotalQty += o.Remaining
	return nil
}

// ---- queries ----

// GetOrder returns a snapshot of order id.
func (e *Engine) GetOrder(id OrderID) (Order, error) {
	return e.arena.Get(id)
}

// Top is the best bid and best ask; either may be absent.
type Top struct {
	BestBid decimal.NullDecimal
	BestAsk decimal.NullDecimal
}

func (e *Engine) TopOfBook() Top {
	return Top{
		BestBid: e.bids.BestPrice(),
		BestAsk: e.asks.BestPrice(),
	}
}

// LevelView is an aggregated, read-only price level.
type LevelView struct {
	Price    decimal.Decimal
	Quantity int64
	Orders   int
}

type Depth struct {
	Bids []LevelView // best (highest) first
	Asks []LevelView // best (lowest) first
}

// Depth returns up to limit levels per side, best first. limit <= 0 means all.
func (e *Engine) Depth(limit int) Depth {
	return Depth{
		Bids: levelViews(e.bids, limit),
		Asks: levelViews(e.asks, limit),
	}
}

func levelViews(b *SideBook, limit int) []LevelView {
	n := b.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]LevelView, 0, n)
	b.Walk(func(lvl *PriceLevel) bool {
		if len(out) == n {
			return false
		}
		out = append(out, LevelView{Price: lvl.Price, Quantity: lvl.TotalQty, Orders: lvl.Orders()})
		return true
	})
	return out
}

// Stats reports arena and book occupancy.
type Stats struct {
	Orders    int
	BidLevels int
	AskLevels int
}

func (e *Engine) Stats() Stats {
	return Stats{
		Orders:    e.arena.Len(),
		BidLevels: e.bids.Len(),
		AskLevels: e.asks.Len(),
	}
}
