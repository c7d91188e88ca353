package siridb

import "github.com/siridb/go-siridb-connector/internal/protocol"

// TimePrecision selects the unit timestamps are expressed in for a
// query. None (-1, not the zero value; the zero value is Second) means
// "use the database's default precision" and sends a nil tag in the
// request payload.
type TimePrecision int8

const (
	None        TimePrecision = TimePrecision(protocol.PrecisionNone)
	Second      TimePrecision = TimePrecision(protocol.PrecisionSecond)
	Millisecond TimePrecision = TimePrecision(protocol.PrecisionMillisecond)
	Microsecond TimePrecision = TimePrecision(protocol.PrecisionMicrosecond)
	Nanosecond  TimePrecision = TimePrecision(protocol.PrecisionNanosecond)
)

// tag returns the value to place in a QUERY payload: nil for None, the
// numeric precision otherwise.
func (p TimePrecision) tag() any {
	if p == None {
		return nil
	}
	return int8(p)
}
