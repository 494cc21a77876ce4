package repository

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned by Next once the stream has ended without error
var ErrStreamClosed = errors.New("change stream closed")

// ChangeStream delivers change events in commit order
type ChangeStream[T any] interface {
	// Next blocks until the next event, ctx cancellation or stream failure
	Next(ctx context.Context) (T, error)
	Close(ctx context.Context) error
}
