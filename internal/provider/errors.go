package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable means every attempt failed at the transport level
	ErrUnreachable = errors.New("provider unreachable")
	// ErrMalformedResponse means the provider replied with something that is not the expected JSON
	ErrMalformedResponse = errors.New("malformed provider response")
)

// LogicalError is a well-formed response whose status declares failure
type LogicalError struct {
	Action string
	Msg    string
}

func (e *LogicalError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("provider %s failed: %s", e.Action, msg)
}

// Reason returns the human-readable reason from the provider
func Reason(err error) string {
	var le *LogicalError
	if errors.As(err, &le) {
		return le.Msg
	}
	return ""
}
