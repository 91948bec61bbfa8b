package station

import "errors"

var (
	// ErrBufferOverflow means the payload did not fit the fixed parse buffer.
	// It is kept distinct from field errors so logs can tell them apart.
	ErrBufferOverflow = errors.New("parse buffer overflow")
	// ErrMalformedPayload means the body is not the expected JSON document.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrMissingFields means no station in the payload could be parsed.
	ErrMissingFields = errors.New("required fields missing for all stations")
)

// IsParseError reports whether err comes from payload parsing rather than
// from the transport.
func IsParseError(err error) bool {
	return errors.Is(err, ErrBufferOverflow) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrMissingFields)
}
