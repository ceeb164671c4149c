package orderbook

import "github.com/cockroachdb/errors"

// Arena is an append-only store of orders. An order's index is its
// identity for the lifetime of the arena.
type Arena struct {
	orders []Order
}

func NewArena(capacity int) *Arena {
	return &Arena{orders: make([]Order, 0, capacity)}
}

// Alloc stores o and assigns it the next index.
func (a *Arena) Alloc(o Order) (OrderID, error) {
	if a.Full() {
		return 0, errors.Wrapf(ErrArenaFull, "capacity %d", cap(a.orders))
	}
	o.ID = OrderID(len(a.orders))
	a.orders = append(a.orders, o)
	return o.ID, nil
}

// Get returns a snapshot of the order. An unallocated id is both
// ErrOrderNotFound and ErrInvalidArgument.
func (a *Arena) Get(id OrderID) (Order, error) {
	if int(id) >= len(a.orders) {
		err := errors.Wrapf(ErrOrderNotFound, "order %d (allocated %d)", id, len(a.orders))
		return Order{}, errors.Mark(err, ErrInvalidArgument)
	}
	return a.orders[id], nil
}

// at gives write access to a live slot. id must have been returned by Alloc.
func (a *Arena) at(id OrderID) *Order {
	return &a.orders[id]
}

func (a *Arena) Len() int { return len(a.orders) }

func (a *Arena) Cap() int { return cap(a.orders) }

func (a *Arena) Full() bool { return len(a.orders) == cap(a.orders) }
