package service

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchcore/domain/orderbook"
	"matchcore/infra/journal"
)

// Payload format: side|price|qty
func encodePlace(side orderbook.Side, price decimal.Decimal, qty int64) []byte {
	return []byte(strconv.Itoa(int(side)) + "|" + price.String() + "|" + strconv.FormatInt(qty, 10))
}

func decodePlace(b []byte) (orderbook.Side, decimal.Decimal, int64, error) {
	parts := strings.Split(string(b), "|")
	if len(parts) != 3 {
		return 0, decimal.Decimal{}, 0, errors.Newf("invalid place payload %q", b)
	}
	side, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return 0, decimal.Decimal{}, 0, errors.Wrap(err, "side")
	}
	price, err := decimal.NewFromString(parts[1])
	if err != nil {
		return 0, decimal.Decimal{}, 0, errors.Wrap(err, "price")
	}
	qty, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, decimal.Decimal{}, 0, errors.Wrap(err, "qty")
	}
	return orderbook.Side(side), price, qty, nil
}

/*
ReplayJournal applies every place command in dir with a sequence above
after and returns the last command sequence seen.

It must run before accepting traffic, on an engine that reflects exactly the
commands up to after (a fresh engine when after is 0, otherwise one restored
from the matching snapshot) and uses the ceilings the journal was written
with. Commands the engine rejected when they were first seen are rejected
again and skipped. The outbox is not replayed.
*/
func ReplayJournal(dir string, engine *orderbook.Engine, after uint64, log *zap.Logger) (uint64, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var applied, rejected int

	lastSeq, err := journal.Replay(dir, func(rec *journal.Record) error {
		if rec.Type != journal.RecordPlace || rec.Seq <= after {
			return nil
		}
		side, price, qty, err := decodePlace(rec.Data)
		if err != nil {
			return errors.Wrapf(err, "seq %d", rec.Seq)
		}
		if _, _, err := engine.PlaceOrder(side, price, qty); err != nil {
			if orderbook.IsCapacity(err) || errors.Is(err, orderbook.ErrInvalidArgument) {
				rejected++
				return nil
			}
			return errors.Wrapf(err, "seq %d", rec.Seq)
		}
		applied++
		return nil
	})
	if err != nil {
		return lastSeq, errors.Wrap(err, "journal replay")
	}

	log.Info("journal replay completed",
		zap.String("dir", dir),
		zap.Uint64("after", after),
		zap.Uint64("last_seq", lastSeq),
		zap.Int("applied", applied),
		zap.Int("rejected", rejected),
	)
	return lastSeq, nil
}
