package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
)

// Value tags for BinaryCodec. Scalars are written directly to avoid
// reflection on the encode path; everything else falls back to JSON.
const (
	tagNil    byte = 0
	tagString byte = 1
	tagInt    byte = 2
	tagUint   byte = 3
	tagFloat  byte = 4
	tagBool   byte = 5
	tagBytes  byte = 6
	tagJSON   byte = 7
)

var errShortValue = errors.New("BinaryCodec: truncated value")

// BinaryCodec writes one tag byte followed by the value.
//
//	nil:    [0]
//	string: [1][utf-8 bytes]
//	int:    [2][varint]
//	uint:   [3][uvarint]
//	float:  [4][8-byte IEEE 754, big-endian]
//	bool:   [5][0|1]
//	[]byte: [6][raw bytes]
//	other:  [7][JSON]
//
// Decoding into an `any` yields string, int64, uint64, float64, bool or []byte.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte{tagNil}, nil
	case string:
		buf := make([]byte, 0, 1+len(x))
		buf = append(buf, tagString)
		return append(buf, x...), nil
	case int:
		return binary.AppendVarint([]byte{tagInt}, int64(x)), nil
	case int8:
		return binary.AppendVarint([]byte{tagInt}, int64(x)), nil
	case int16:
		return binary.AppendVarint([]byte{tagInt}, int64(x)), nil
	case int32:
		return binary.AppendVarint([]byte{tagInt}, int64(x)), nil
	case int64:
		return binary.AppendVarint([]byte{tagInt}, x), nil
	case uint:
		return binary.AppendUvarint([]byte{tagUint}, uint64(x)), nil
	case uint8:
		return binary.AppendUvarint([]byte{tagUint}, uint64(x)), nil
	case uint16:
		return binary.AppendUvarint([]byte{tagUint}, uint64(x)), nil
	case uint32:
		return binary.AppendUvarint([]byte{tagUint}, uint64(x)), nil
	case uint64:
		return binary.AppendUvarint([]byte{tagUint}, x), nil
	case float32:
		return binary.BigEndian.AppendUint64([]byte{tagFloat}, math.Float64bits(float64(x))), nil
	case float64:
		return binary.BigEndian.AppendUint64([]byte{tagFloat}, math.Float64bits(x)), nil
	case bool:
		if x {
			return []byte{tagBool, 1}, nil
		}
		return []byte{tagBool, 0}, nil
	case []byte:
		buf := make([]byte, 0, 1+len(x))
		buf = append(buf, tagBytes)
		return append(buf, x...), nil
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append([]byte{tagJSON}, payload...), nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("BinaryCodec: v must be a non-nil pointer")
	}
	if len(data) == 0 {
		return errShortValue
	}

	tag, payload := data[0], data[1:]
	if tag == tagJSON {
		return json.Unmarshal(payload, v)
	}
	val, err := decodeScalar(tag, payload)
	if err != nil {
		return err
	}
	return assign(rv.Elem(), val)
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

func decodeScalar(tag byte, payload []byte) (any, error) {
	switch tag {
	case tagNil:
		return nil, nil
	case tagString:
		return string(payload), nil
	case tagInt:
		x, n := binary.Varint(payload)
		if n <= 0 {
			return nil, errShortValue
		}
		return x, nil
	case tagUint:
		x, n := binary.Uvarint(payload)
		if n <= 0 {
			return nil, errShortValue
		}
		return x, nil
	case tagFloat:
		if len(payload) < 8 {
			return nil, errShortValue
		}
		return math.Float64frombits(binary.BigEndian.Uint64(payload)), nil
	case tagBool:
		if len(payload) < 1 {
			return nil, errShortValue
		}
		return payload[0] != 0, nil
	case tagBytes:
		return append([]byte(nil), payload...), nil
	}
	return nil, fmt.Errorf("BinaryCodec: unknown tag %d", tag)
}

// assign stores a decoded scalar into dst, converting between numeric kinds
// when the value fits.
func assign(dst reflect.Value, val any) error {
	if val == nil {
		dst.SetZero()
		return nil
	}
	src := reflect.ValueOf(val)
	if dst.Kind() == reflect.Interface {
		if !src.Type().AssignableTo(dst.Type()) {
			return fmt.Errorf("BinaryCodec: cannot decode %T into %s", val, dst.Type())
		}
		dst.Set(src)
		return nil
	}

	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var i int64
		switch x := val.(type) {
		case int64:
			i = x
		case uint64:
			if x > math.MaxInt64 {
				return fmt.Errorf("BinaryCodec: %d overflows %s", x, dst.Type())
			}
			i = int64(x)
		default:
			return fmt.Errorf("BinaryCodec: cannot decode %T into %s", val, dst.Type())
		}
		if dst.OverflowInt(i) {
			return fmt.Errorf("BinaryCodec: %d overflows %s", i, dst.Type())
		}
		dst.SetInt(i)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var u uint64
		switch x := val.(type) {
		case uint64:
			u = x
		case int64:
			if x < 0 {
				return fmt.Errorf("BinaryCodec: %d overflows %s", x, dst.Type())
			}
			u = uint64(x)
		default:
			return fmt.Errorf("BinaryCodec: cannot decode %T into %s", val, dst.Type())
		}
		if dst.OverflowUint(u) {
			return fmt.Errorf("BinaryCodec: %d overflows %s", u, dst.Type())
		}
		dst.SetUint(u)
		return nil
	case reflect.Float32, reflect.Float64:
		switch x := val.(type) {
		case float64:
			dst.SetFloat(x)
		case int64:
			dst.SetFloat(float64(x))
		case uint64:
			dst.SetFloat(float64(x))
		default:
			return fmt.Errorf("BinaryCodec: cannot decode %T into %s", val, dst.Type())
		}
		return nil
	}

	if src.Type().ConvertibleTo(dst.Type()) && src.Kind() == dst.Kind() {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	if b, ok := val.([]byte); ok && dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() == reflect.Uint8 {
		dst.SetBytes(b)
		return nil
	}
	return fmt.Errorf("BinaryCodec: cannot decode %T into %s", val, dst.Type())
}
