package trackapi

import "fmt"

// TransportError reports a network failure or a non-success HTTP status
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("track source: unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("track source: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports a body that is not a well-formed feature collection
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("track source: decoding feature collection: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
