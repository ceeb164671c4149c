// Package orderbook implements a single-instrument limit order matching
// engine with price-time priority.
//
// All memory is bounded by three construction-time ceilings: the order
// arena capacity, the number of distinct price levels per side, and the
// number of orders resting at one price level. Orders live by value in the
// arena and are referenced everywhere else by their arena index, which is
// also their public OrderID.
//
// The engine is single-writer and deterministic. It performs no locking;
// callers that share an Engine across goroutines must serialise access.
package orderbook
