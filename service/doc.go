// Package service is the only write entry point into the matching engine.
//
// OrderService serialises every call, journals place commands before they
// reach the book, and turns trades into outbox events for the broadcaster.
// Transports such as gRPC sit on top of it.
package service
