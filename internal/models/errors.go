package models

import (
	"fmt"
	"strconv"
)

// TransportError reports a request that never produced an HTTP response
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-success HTTP status
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status: %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status: %d: %s", e.Op, e.StatusCode, e.Body)
}

// DecodeError reports a response body that did not match the expected shape
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TimeParseError reports a run timestamp that could not be parsed.
// It fails the whole batch the run belongs to and is never retried.
type TimeParseError struct {
	RunID uint64
	Field string
	Value string
	Err   error
}

func (e *TimeParseError) Error() string {
	return fmt.Sprintf("parse %s %q for run %s: %v", e.Field, e.Value, strconv.FormatUint(e.RunID, 10), e.Err)
}

func (e *TimeParseError) Unwrap() error { return e.Err }

// Permanent marks the error as not worth retrying
func (e *TimeParseError) Permanent() bool { return true }
