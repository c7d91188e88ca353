package protocol

import (
	"errors"
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []any{
		"select * from series",
		[]any{"user", "pass", "dbname"},
		map[string]any{"error_msg": "syntax error"},
		int64(42),
	}
	for _, v := range tests {
		b, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode(%v) failed: %v", v, err)
		}
		got, err := Decode(b)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if !reflect.DeepEqual(got, v) {
			t.Errorf("round trip = %#v, want %#v", got, v)
		}
	}
}

func TestEncodeRejectsOutOfRangeInteger(t *testing.T) {
	tests := []any{
		int64(1 << 62),
		map[string]any{"ts": int64(-(1 << 62) - 1)},
		[]any{"series", uint64(1 << 63)},
	}
	for _, v := range tests {
		_, err := Encode(v)
		if err == nil {
			t.Fatalf("Encode(%#v) = nil error, want OverflowError", v)
		}
		var oe *OverflowError
		if !errors.As(err, &oe) {
			t.Errorf("Encode(%#v) error = %v, want *OverflowError", v, err)
		}
	}
}

func TestEncodeAcceptsInRangeInteger(t *testing.T) {
	v := map[string]any{"ts": int64(1<<62 - 1)}
	if _, err := Encode(v); err != nil {
		t.Fatalf("Encode(%#v) failed: %v", v, err)
	}
}

func TestPackRequestNone(t *testing.T) {
	b, err := PackRequest(ReqPing, nil)
	if err != nil {
		t.Fatalf("PackRequest failed: %v", err)
	}
	if len(b) != 0 {
		t.Errorf("expected empty payload for PING, got %d bytes", len(b))
	}
}

func TestPackRequestEncoded(t *testing.T) {
	b, err := PackRequest(ReqAuth, []any{"user", "pass", "db"})
	if err != nil {
		t.Fatalf("PackRequest failed: %v", err)
	}
	v, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, ok := v.([]any)
	if !ok || len(got) != 3 {
		t.Fatalf("decoded auth payload = %#v", v)
	}
}

func TestUnpackResponseUnknownType(t *testing.T) {
	_, err := UnpackResponse(Type(0xEE), nil)
	if err == nil {
		t.Error("expected error for unknown response type")
	}
}

func TestUnpackResponseAck(t *testing.T) {
	v, err := UnpackResponse(ResAck, nil)
	if err != nil {
		t.Fatalf("UnpackResponse failed: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil value for ACK, got %v", v)
	}
}
