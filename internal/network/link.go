// Package network is the device's view of connectivity: association with
// the access point and plain HTTP GETs against the backend.
package network

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrAssociation means the link did not associate within the connect timeout.
var ErrAssociation = errors.New("network association failed")

// Response is a GET result. Body must be closed by the caller.
type Response struct {
	Status        int
	Body          io.ReadCloser
	ContentLength int64 // -1 when unknown
}

type Link interface {
	// Connect blocks until the link is associated or timeout elapses.
	Connect(ctx context.Context, timeout time.Duration) bool
	IsConnected() bool
	Get(ctx context.Context, url string, timeout time.Duration) (Response, error)
}

// Resetter is implemented by links that can drop and restart association,
// used when connectivity has been lost for longer than the recovery timeout.
type Resetter interface {
	Reset() error
}
