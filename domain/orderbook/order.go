package orderbook

import "github.com/shopspring/decimal"

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side a taker on s matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderID is the order's arena index. It is never reused.
type OrderID uint32

// Order is the arena record. Values returned to callers are snapshots.
type Order struct {
	ID        OrderID
	Side      Side
	Price     decimal.Decimal
	Quantity  int64 // as submitted
	Remaining int64
	Seq       uint64 // arrival stamp
}

// Active reports whether the order still has quantity to trade.
func (o Order) Active() bool {
	return o.Remaining > 0
}

func (o Order) Filled() int64 {
	return o.Quantity - o.Remaining
}

// Trade is one fill between an incoming taker and a resting maker.
// Price is always the maker's limit price.
type Trade struct {
	Price     decimal.Decimal
	Quantity  int64
	TakerID   OrderID
	MakerID   OrderID
	TakerSide Side
}
