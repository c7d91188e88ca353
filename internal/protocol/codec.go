package protocol

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// maxSignedMagnitude is 2^62: SiriDB's signed 63-bit wire integer
// holds values in [-maxSignedMagnitude, maxSignedMagnitude-1]. Values
// outside that range must be rejected before encoding rather than
// silently wrapped or truncated by the server.
const maxSignedMagnitude = 1 << 62

// OverflowError indicates a value handed to Encode carries an integer
// outside SiriDB's signed 63-bit wire range.
type OverflowError struct {
	Value any
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("protocol: integer %v does not fit in a signed 63-bit value", e.Value)
}

// checkOverflow walks value recursively through maps, slices and
// arrays looking for an integer outside the signed 63-bit range.
func checkOverflow(value any) error {
	switch v := value.(type) {
	case int:
		return checkInt64(int64(v))
	case int64:
		return checkInt64(v)
	case uint:
		return checkUint64(uint64(v))
	case uint64:
		return checkUint64(v)
	case []any:
		for _, elem := range v {
			if err := checkOverflow(elem); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for _, elem := range v {
			if err := checkOverflow(elem); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := checkOverflow(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	case reflect.Map:
		for _, key := range rv.MapKeys() {
			if err := checkOverflow(rv.MapIndex(key).Interface()); err != nil {
				return err
			}
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return checkInt64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return checkUint64(rv.Uint())
	}
	return nil
}

func checkInt64(v int64) error {
	if v >= maxSignedMagnitude || v < -maxSignedMagnitude {
		return &OverflowError{Value: v}
	}
	return nil
}

func checkUint64(v uint64) error {
	if v >= uint64(maxSignedMagnitude) {
		return &OverflowError{Value: v}
	}
	return nil
}

// Encode serializes a value for an ENCODED-kind payload using a
// self-describing tagged-binary codec (CBOR) that round-trips
// tuples/arrays, string-keyed maps, integers, floats and strings.
func Encode(value any) ([]byte, error) {
	if err := checkOverflow(value); err != nil {
		return nil, err
	}
	b, err := cbor.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	if len(b) > MaxPackageSize {
		return nil, fmt.Errorf("protocol: encoded payload of %d bytes exceeds max package size %d", len(b), MaxPackageSize)
	}
	return b, nil
}

// decMode decodes maps into map[string]any and integers into int64;
// the codec's defaults would yield map[any]any and uint64.
var decMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Decode deserializes an ENCODED-kind payload into a generic value:
// map[string]any, []any, string, int64, float64, or nil.
func Decode(b []byte) (any, error) {
	var v any
	if err := decMode.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("protocol: decode: %w", err)
	}
	return v, nil
}

// PackRequest renders the payload to send for a request of the given
// type, dispatching on MapReqDType.
func PackRequest(tipe Type, value any) ([]byte, error) {
	kind, ok := MapReqDType[tipe]
	if !ok {
		return nil, fmt.Errorf("protocol: no payload kind registered for request type %s", tipe)
	}
	switch kind {
	case KindNone:
		return nil, nil
	case KindRaw:
		b, ok := value.([]byte)
		if !ok {
			return nil, fmt.Errorf("protocol: request type %s expects raw bytes", tipe)
		}
		return b, nil
	case KindEncoded:
		return Encode(value)
	default:
		return nil, fmt.Errorf("protocol: unknown payload kind for request type %s", tipe)
	}
}

// UnpackResponse decodes a response payload per MapResDType. Unknown
// response types are a protocol error.
func UnpackResponse(tipe Type, payload []byte) (any, error) {
	kind, ok := MapResDType[tipe]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown response type 0x%02x", byte(tipe))
	}
	switch kind {
	case KindNone:
		return nil, nil
	case KindRaw:
		return payload, nil
	case KindEncoded:
		return Decode(payload)
	default:
		return nil, fmt.Errorf("protocol: unknown payload kind for response type %s", tipe)
	}
}
