package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceLevel is the FIFO of orders resting at one price.
type PriceLevel struct {
	Price decimal.Decimal

	queue Ring[OrderID]

	// TotalQty is the remaining quantity of all active orders in the queue.
	TotalQty int64

	inUse bool
}

func (p *PriceLevel) Empty() bool {
	return p.queue.Empty()
}

// Orders returns the number of queued references, including any inactive
// entries not yet dequeued.
func (p *PriceLevel) Orders() int {
	return p.queue.Len()
}

func (p *PriceLevel) InUse() bool {
	return p.inUse
}

// reset binds the slot to price, reusing the queue buffer when one exists.
func (p *PriceLevel) reset(price decimal.Decimal, queueCap int) {
	p.Price = price
	p.TotalQty = 0
	p.inUse = true
	if p.queue.Cap() != queueCap {
		p.queue.init(queueCap)
	} else {
		p.queue.Reset()
	}
}

func (p *PriceLevel) release() {
	p.Price = decimal.Zero
	p.TotalQty = 0
	p.inUse = false
	p.queue.Reset()
}

func (p *PriceLevel) String() string {
	return fmt.Sprintf("PriceLevel{Price=%s, Orders=%d, TotalQty=%d}", p.Price, p.queue.Len(), p.TotalQty)
}
