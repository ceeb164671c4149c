package orderbook

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// SideBook holds one side's price levels sorted ascending by price, unique
// by price. Bids read their best level from the end, asks from the front.
type SideBook struct {
	side     Side
	levels   []PriceLevel // len == max levels; [0:n) in use
	n        int
	queueCap int
}

func NewSideBook(side Side, maxLevels, queueCap int) *SideBook {
	return &SideBook{
		side:     side,
		levels:   make([]PriceLevel, maxLevels),
		queueCap: queueCap,
	}
}

func (b *SideBook) Side() Side { return b.side }

func (b *SideBook) Len() int { return b.n }

func (b *SideBook) Cap() int { return len(b.levels) }

func (b *SideBook) Full() bool { return b.n == len(b.levels) }

// Level returns the level at index i. i must be in [0, Len()).
func (b *SideBook) Level(i int) *PriceLevel {
	return &b.levels[i]
}

// search returns the insertion point for price and whether it is present.
func (b *SideBook) search(price decimal.Decimal) (int, bool) {
	i := sort.Search(b.n, func(i int) bool {
		return b.levels[i].Price.Cmp(price) >= 0
	})
	return i, i < b.n && b.levels[i].Price.Equal(price)
}

// FindLevel returns the index of the level at price, or -1.
func (b *SideBook) FindLevel(price decimal.Decimal) int {
	i, ok := b.search(price)
	if !ok {
		return -1
	}
	return i
}

// GetOrCreateLevel returns the index of the level at price, inserting a new
// one in sorted position when absent.
func (b *SideBook) GetOrCreateLevel(price decimal.Decimal) (int, error) {
	at, ok := b.search(price)
	if ok {
		return at, nil
	}
	if b.Full() {
		return -1, errors.Wrapf(ErrPriceLevelCapacity,
			"%s side holds %d levels, cannot add %s", b.side, b.n, price)
	}

	// levels[n] is a released slot; keep its queue buffer for the new level.
	spare := b.levels[b.n].queue
	copy(b.levels[at+1:b.n+1], b.levels[at:b.n])
	b.levels[at] = PriceLevel{queue: spare}
	b.levels[at].reset(price, b.queueCap)
	b.n++
	return at, nil
}

// RemoveLevel deletes the level at index i, keeping the rest sorted.
func (b *SideBook) RemoveLevel(i int) {
	if i < 0 || i >= b.n {
		return
	}
	removed := b.levels[i].queue
	copy(b.levels[i:b.n-1], b.levels[i+1:b.n])
	b.n--
	b.levels[b.n] = PriceLevel{queue: removed}
	b.levels[b.n].release()
}

// BestIndex returns the index of the best level, or -1 when empty.
func (b *SideBook) BestIndex() int {
	if b.n == 0 {
		return -1
	}
	if b.side == Buy {
		return b.n - 1
	}
	return 0
}

// BestPrice returns the best price, if any.
func (b *SideBook) BestPrice() decimal.NullDecimal {
	i := b.BestIndex()
	if i < 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(b.levels[i].Price)
}

// Walk visits levels from best to worst until fn returns false.
func (b *SideBook) Walk(fn func(*PriceLevel) bool) {
	if b.side == Buy {
		for i := b.n - 1; i >= 0; i-- {
			if !fn(&b.levels[i]) {
				return
			}
		}
		return
	}
	for i := 0; i < b.n; i++ {
		if !fn(&b.levels[i]) {
			return
		}
	}
}

// marketable reports whether a level at price crosses a taker limit on the
// opposite side.
func (b *SideBook) marketable(price, limit decimal.Decimal) bool {
	if b.side == Sell {
		// asks cross a buy limit at or above them
		return price.Cmp(limit) <= 0
	}
	return price.Cmp(limit) >= 0
}
