package source

import "fmt"

// UpstreamHttpError is returned when RedisQ responds with a non-2xx
// status. The puller backs off and retries; it never persists anything
// for this tick.
type UpstreamHttpError struct {
	Status int
}

func (e *UpstreamHttpError) Error() string {
	return fmt.Sprintf("source: upstream responded %d", e.Status)
}

// DecodeError wraps a JSON decode failure on the RedisQ envelope.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("source: decode failed: %v", e.Err) }
func (e *DecodeError) Unwrap() error  { return e.Err }

// InvalidTimestamp is returned when killmail_time cannot be parsed as an
// ISO-8601 instant.
type InvalidTimestamp struct {
	Raw string
}

func (e *InvalidTimestamp) Error() string {
	return fmt.Sprintf("source: invalid timestamp %q", e.Raw)
}

// MissingPayload is returned when a package has no embedded killmail body.
type MissingPayload struct{}

func (e *MissingPayload) Error() string { return "source: package missing killmail payload" }
