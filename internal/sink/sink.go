// Package sink holds the destinations generated sales are delivered to.
package sink

import (
	"context"
	"errors"

	"coffeeshop/internal/sale"
)

// Failure kinds returned (wrapped) by the sinks. Only ErrPersistence is
// fatal to a worker; the others are logged and the record is dropped.
var (
	ErrPersistence = errors.New("persistence failure")
	ErrTransport   = errors.New("transport failure")
	ErrFileIO      = errors.New("file write failure")
)

// Sink defines the behaviour expected from every destination (output file,
// database table, REST endpoint, Redis list, Kafka topic).
//
// A Sink is owned by a single worker and is never called concurrently.
// Write delivers at most once: implementations must not retry.
type Sink interface {
	// Name identifies the sink in logs and counters.
	Name() string
	// Write delivers the record and returns an error wrapping one of the
	// failure kinds above.
	Write(ctx context.Context, rec *sale.Record) error
	// Close releases the sink's resources. It is called exactly once.
	Close() error
}

// Fatal reports whether err must stop the worker that received it.
func Fatal(err error) bool {
	return errors.Is(err, ErrPersistence)
}
