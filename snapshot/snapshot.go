package snapshot

import (
	"time"

	"matchcore/domain/orderbook"
)

// Snapshot is the engine state after command Seq.
type Snapshot struct {
	Seq     uint64
	Created time.Time
	State   orderbook.State
}
