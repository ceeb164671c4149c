package codec

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"matchcore/domain/orderbook"
)

// Proto encodes TradeEvent in protobuf wire format:
//
//	message TradeEvent {
//	  string event_id    = 1;
//	  uint64 command_seq = 2;
//	  uint32 index       = 3;
//	  string price       = 4; // decimal string
//	  int64  quantity    = 5;
//	  uint32 taker_id    = 6;
//	  uint32 maker_id    = 7;
//	  uint32 taker_side  = 8; // 0 buy, 1 sell
//	  int64  time        = 9; // unix nanos
//	}
type Proto struct{}

const (
	fieldEventID protowire.Number = iota + 1
	fieldCommandSeq
	fieldIndex
	fieldPrice
	fieldQuantity
	fieldTakerID
	fieldMakerID
	fieldTakerSide
	fieldTime
)

func (Proto) Name() string { return "proto" }

func (Proto) Encode(ev *TradeEvent) ([]byte, error) {
	b := make([]byte, 0, 96)
	b = appendString(b, fieldEventID, ev.EventID)
	b = appendVarint(b, fieldCommandSeq, ev.CommandSeq)
	b = appendVarint(b, fieldIndex, uint64(ev.Index))
	b = appendString(b, fieldPrice, ev.Price.String())
	b = appendVarint(b, fieldQuantity, uint64(ev.Quantity))
	b = appendVarint(b, fieldTakerID, uint64(ev.TakerID))
	b = appendVarint(b, fieldMakerID, uint64(ev.MakerID))
	b = appendVarint(b, fieldTakerSide, uint64(ev.TakerSide))
	b = appendVarint(b, fieldTime, uint64(ev.Time))
	return b, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func (Proto) Decode(b []byte) (*TradeEvent, error) {
	ev := &TradeEvent{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "trade event tag")
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == fieldEventID || num == fieldPrice):
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, errors.Wrapf(protowire.ParseError(n), "trade event field %d", num)
			}
			b = b[n:]
			if num == fieldEventID {
				ev.EventID = s
				continue
			}
			p, err := decimal.NewFromString(s)
			if err != nil {
				return nil, errors.Wrapf(err, "trade event price %q", s)
			}
			ev.Price = p

		case typ == protowire.VarintType && num >= fieldCommandSeq && num <= fieldTime:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, errors.Wrapf(protowire.ParseError(n), "trade event field %d", num)
			}
			b = b[n:]
			setVarint(ev, num, v)

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, errors.Wrapf(protowire.ParseError(n), "trade event field %d", num)
			}
			b = b[n:]
		}
	}
	return ev, nil
}

func setVarint(ev *TradeEvent, num protowire.Number, v uint64) {
	switch num {
	case fieldCommandSeq:
		ev.CommandSeq = v
	case fieldIndex:
		ev.Index = uint32(v)
	case fieldQuantity:
		ev.Quantity = int64(v)
	case fieldTakerID:
		ev.TakerID = uint32(v)
	case fieldMakerID:
		ev.MakerID = uint32(v)
	case fieldTakerSide:
		ev.TakerSide = orderbook.Side(v)
	case fieldTime:
		ev.Time = int64(v)
	}
}
