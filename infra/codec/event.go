package codec

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"matchcore/domain/orderbook"
)

// eventNamespace scopes the name-based event ids.
var eventNamespace = uuid.MustParse("6f1d3c2a-8e51-4b7a-9a43-2f0e6c9d1b55")

// TradeEvent is the outbound form of one fill.
type TradeEvent struct {
	EventID    string          `json:"event_id"`
	CommandSeq uint64          `json:"command_seq"`
	Index      uint32          `json:"index"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int64           `json:"quantity"`
	TakerID    uint32          `json:"taker_id"`
	MakerID    uint32          `json:"maker_id"`
	TakerSide  orderbook.Side  `json:"taker_side"`
	Time       int64           `json:"time"`
}

// NewTradeEvent builds the event for the index-th trade of command seq.
// The event id is derived from (seq, index) so a re-publish carries the
// same id.
func NewTradeEvent(seq uint64, index int, tr orderbook.Trade, now time.Time) *TradeEvent {
	return &TradeEvent{
		EventID:    EventID(seq, index),
		CommandSeq: seq,
		Index:      uint32(index),
		Price:      tr.Price,
		Quantity:   tr.Quantity,
		TakerID:    uint32(tr.TakerID),
		MakerID:    uint32(tr.MakerID),
		TakerSide:  tr.TakerSide,
		Time:       now.UnixNano(),
	}
}

func EventID(seq uint64, index int) string {
	return uuid.NewSHA1(eventNamespace, []byte(Key(seq, index))).String()
}

// Key orders events by command then by position within the command.
func Key(seq uint64, index int) string {
	return fmt.Sprintf("%020d-%010d", seq, index)
}
