package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrClosed is returned to callers whose client was shut down by its owner.
var ErrClosed = errors.New("quote client closed")

// ConnectionError means the transport is down. Retrying later is the only remedy.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection lost: " + e.Op
	}
	return fmt.Sprintf("connection lost: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NoDataError names every requested symbol the quote store has no entry for.
type NoDataError struct {
	Symbols []string
}

func (e *NoDataError) Error() string {
	return "no data for symbol " + strings.Join(e.Symbols, ", ")
}

// TimeoutError is returned when no correlated response arrived within After.
type TimeoutError struct {
	ID    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %s", e.ID, e.After)
}

// ProtocolError covers malformed requests or responses and correlation mismatches.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Reason }

// ErrorResponse renders err as a TypeError response correlated with id.
func ErrorResponse(id string, err error) WSResponse {
	resp := WSResponse{Type: TypeError, ID: id, Code: CodeProtocol, Message: err.Error()}
	var nd *NoDataError
	var pe *ProtocolError
	if errors.As(err, &pe) {
		resp.Message = pe.Reason
	}
	if errors.As(err, &nd) {
		resp.Code = CodeNoData
		resp.Symbols = nd.Symbols
		if len(nd.Symbols) == 1 {
			resp.Symbol = nd.Symbols[0]
		}
	}
	return resp
}

// ErrorFromResponse converts a TypeError envelope back into a typed error.
func ErrorFromResponse(env Envelope) error {
	switch env.Code {
	case CodeNoData:
		symbols := env.Symbols
		if len(symbols) == 0 && env.Symbol != "" {
			symbols = []string{env.Symbol}
		}
		return &NoDataError{Symbols: symbols}
	default:
		msg := env.Message
		if msg == "" {
			msg = "unspecified server error"
		}
		return &ProtocolError{Reason: msg}
	}
}
