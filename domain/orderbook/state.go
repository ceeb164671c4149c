package orderbook

import "github.com/cockroachdb/errors"

// State is a full copy of an engine: every allocated order in id order plus
// the arrival counter. Resting queues are implied by (Side, Price, Seq).
type State struct {
	Config Config
	Seq    uint64
	Orders []Order
}

// State copies the engine. O(allocated orders).
func (e *Engine) State() State {
	orders := make([]Order, e.arena.Len())
	copy(orders, e.arena.orders)
	return State{Config: e.cfg, Seq: e.seq, Orders: orders}
}

// Restore builds an engine equal to the one st was taken from.
func Restore(st State) (*Engine, error) {
	e, err := New(st.Config)
	if err != nil {
		return nil, err
	}
	if len(st.Orders) > st.Config.MaxOrders {
		return nil, errors.Wrapf(ErrArenaFull, "state holds %d orders", len(st.Orders))
	}

	var prev uint64
	for i, o := range st.Orders {
		switch {
		case o.ID != OrderID(i):
			return nil, errors.Newf("restore: order at %d has id %d", i, o.ID)
		case !o.Side.Valid() || o.Price.Sign() <= 0 || o.Quantity <= 0:
			return nil, errors.Newf("restore: order %d malformed", o.ID)
		case o.Remaining < 0 || o.Remaining > o.Quantity:
			return nil, errors.Newf("restore: order %d remaining %d of %d", o.ID, o.Remaining, o.Quantity)
		case o.Seq <= prev || o.Seq > st.Seq:
			return nil, errors.Newf("restore: order %d seq %d out of order", o.ID, o.Seq)
		}
		prev = o.Seq

		if _, err := e.arena.Alloc(o); err != nil {
			return nil, err
		}
		// id order is arrival order, so queues come back in FIFO order
		if o.Active() {
			if err := e.rest(o.ID); err != nil {
				return nil, errors.Wrapf(err, "restore: order %d", o.ID)
			}
		}
	}
	e.seq = st.Seq

	bid, ask := e.bids.BestPrice(), e.asks.BestPrice()
	if bid.Valid && ask.Valid && bid.Decimal.GreaterThanOrEqual(ask.Decimal) {
		return nil, errors.Newf("restore: crossed book bid %s ask %s", bid.Decimal, ask.Decimal)
	}
	return e, nil
}
