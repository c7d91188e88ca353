package siridb

import (
	"context"
	"errors"

	"github.com/siridb/go-siridb-connector/internal/engine"
	"github.com/siridb/go-siridb-connector/internal/protocol"
)

// translate turns an engine.Response into (value, error), mapping the
// wire's error response types onto the typed error kinds callers can
// branch on with errors.As. Errors from the engine are converted too:
// timeouts become *TimeoutError, integer overflow *OverflowError, and
// anything else *ConnectionError.
func translate(resp engine.Response, err error) (any, error) {
	if err != nil {
		var te *engine.TimeoutError
		if errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Msg: err.Error()}
		}
		var oe *protocol.OverflowError
		if errors.As(err, &oe) {
			return nil, &OverflowError{Msg: err.Error()}
		}
		return nil, &ConnectionError{Msg: err.Error()}
	}
	if !protocol.ErrorTypes[resp.Type] {
		return resp.Value, nil
	}
	msg := errorMsg(resp.Value, "unspecified server error")
	switch resp.Type {
	case protocol.ErrQuery:
		return nil, &QueryError{Msg: msg}
	case protocol.ErrInsert:
		return nil, &InsertError{Msg: msg}
	case protocol.ErrServer:
		return nil, &ServerError{Msg: msg}
	case protocol.ErrPool:
		return nil, &PoolError{Msg: msg}
	case protocol.ErrUserAccess:
		return nil, &UserAuthError{Msg: msg}
	case protocol.ErrNotAuthenticated:
		return nil, &AuthenticationError{Msg: "this connection is not authenticated"}
	case protocol.ErrAuthCredentials:
		return nil, &AuthenticationError{Msg: "invalid credentials"}
	case protocol.ErrAuthUnknownDB:
		return nil, &AuthenticationError{Msg: "unknown database"}
	case protocol.ErrLoadingDB:
		return nil, &RuntimeServerError{Msg: "error loading database, check the siridb log files"}
	case protocol.ErrFile:
		return nil, &RuntimeServerError{Msg: "error retrieving file"}
	default: // protocol.Err, protocol.ErrMsg
		return nil, &RuntimeServerError{Msg: msg}
	}
}
