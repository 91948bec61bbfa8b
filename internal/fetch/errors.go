package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/nativenav/weather-display-system/internal/station"
)

var (
	ErrFetchTimeout = errors.New("fetch timeout")
	ErrHTTPStatus   = errors.New("unexpected http status")
	ErrTransport    = errors.New("transport error")
	ErrCircuitOpen  = errors.New("circuit breaker open")
)

// StatusError carries the status of a non-2xx backend response.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d", ErrHTTPStatus, e.Status)
}

func (e *StatusError) Unwrap() error { return ErrHTTPStatus }

func classifyTransport(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrFetchTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

// errorKind is the short label logged with a failed attempt.
func errorKind(err error) string {
	switch {
	case errors.Is(err, station.ErrBufferOverflow):
		return "buffer_overflow"
	case errors.Is(err, station.ErrMissingFields):
		return "missing_fields"
	case errors.Is(err, station.ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, ErrFetchTimeout):
		return "timeout"
	case errors.Is(err, ErrHTTPStatus):
		return "http_status"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	default:
		return "transport"
	}
}
