package orderbook

import "github.com/cockroachdb/errors"

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOrderNotFound      = errors.New("order id out of range")
	ErrArenaFull          = errors.New("order arena full")
	ErrPriceLevelCapacity = errors.New("price level capacity exceeded")
	ErrQueueFull          = errors.New("price level queue full")
	ErrInvalidConfig      = errors.New("invalid engine config")
)

// IsCapacity reports whether err is one of the capacity rejections.
func IsCapacity(err error) bool {
	return errors.IsAny(err, ErrArenaFull, ErrPriceLevelCapacity, ErrQueueFull)
}
