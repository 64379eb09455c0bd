package s7

import (
	"encoding/binary"
	"math"
	"strings"
)

// ValueKind identifies which branch of a Value is populated.
type ValueKind int

const (
	KindBool ValueKind = iota
	KindInt
	KindReal
	KindText
	KindBytes
	KindArray
)

// Value is a tagged union holding the decoded/encoded form of a tag's
// payload: a single bool, a 64-bit integer, a 64-bit float, text, raw
// bytes, or an array of Values (for arrays and BIT-arrays).
type Value struct {
	Kind  ValueKind
	Bool  bool
	Int   int64
	Real  float64
	Text  string
	Bytes []byte
	Array []Value
}

func BoolValue(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value           { return Value{Kind: KindInt, Int: i} }
func RealValue(f float64) Value        { return Value{Kind: KindReal, Real: f} }
func TextValue(s string) Value         { return Value{Kind: KindText, Text: s} }
func BytesValue(b []byte) Value        { return Value{Kind: KindBytes, Bytes: b} }
func ArrayValue(vs []Value) Value      { return Value{Kind: KindArray, Array: vs} }

// EncodeValue renders v as the raw payload bytes for tag t, sized to
// t.Size() (string/wstring types include their length prefix and are
// padded to their declared maximum).
func EncodeValue(t *Tag, v Value) ([]byte, error) {
	switch t.DataType {
	case TypeBit:
		if v.Kind != KindBool {
			return nil, &ValueError{Tag: t.Format(), Reason: "expected a bool value for BIT"}
		}
		if v.Bool {
			return []byte{0x01}, nil
		}
		return []byte{0x00}, nil

	case TypeString:
		s, err := textOf(t, v)
		if err != nil {
			return nil, err
		}
		if len(s) > t.Length {
			return nil, &ValueError{Tag: t.Format(), Reason: "string exceeds declared maximum length"}
		}
		buf := make([]byte, t.Length+2)
		buf[0] = byte(t.Length)
		buf[1] = byte(len(s))
		copy(buf[2:], s)
		return buf, nil

	case TypeWString:
		s, err := textOf(t, v)
		if err != nil {
			return nil, err
		}
		units := []rune(s)
		if len(units) > t.Length {
			return nil, &ValueError{Tag: t.Format(), Reason: "wstring exceeds declared maximum length"}
		}
		buf := make([]byte, t.Length*2+4)
		binary.BigEndian.PutUint16(buf[0:2], uint16(t.Length))
		binary.BigEndian.PutUint16(buf[2:4], uint16(len(units)))
		for i, r := range units {
			binary.BigEndian.PutUint16(buf[4+2*i:6+2*i], uint16(r))
		}
		return buf, nil
	}

	if t.Length > 1 {
		if v.Kind != KindArray {
			return nil, &ValueError{Tag: t.Format(), Reason: "expected an array value"}
		}
		if len(v.Array) != t.Length {
			return nil, &ValueError{Tag: t.Format(), Reason: "array length does not match tag length"}
		}
		stride := elementStride[t.DataType]
		buf := make([]byte, t.Length*stride)
		for i, elem := range v.Array {
			b, err := encodeScalar(t, elem)
			if err != nil {
				return nil, err
			}
			copy(buf[i*stride:(i+1)*stride], b)
		}
		return buf, nil
	}

	return encodeScalar(t, v)
}

func textOf(t *Tag, v Value) (string, error) {
	if v.Kind != KindText {
		return "", &ValueError{Tag: t.Format(), Reason: "expected a text value"}
	}
	return v.Text, nil
}

func encodeScalar(t *Tag, v Value) ([]byte, error) {
	switch t.DataType {
	case TypeByte:
		b, err := intOf(t, v, 0, 255)
		if err != nil {
			return nil, err
		}
		return []byte{byte(b)}, nil
	case TypeChar:
		if v.Kind == KindText && len(v.Text) == 1 {
			return []byte{v.Text[0]}, nil
		}
		b, err := intOf(t, v, 0, 255)
		if err != nil {
			return nil, err
		}
		return []byte{byte(b)}, nil
	case TypeInt:
		i, err := intOf(t, v, math.MinInt16, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(int16(i)))
		return buf, nil
	case TypeWord:
		i, err := intOf(t, v, 0, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(i))
		return buf, nil
	case TypeDInt:
		i, err := intOf(t, v, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int32(i)))
		return buf, nil
	case TypeDWord:
		i, err := intOf(t, v, 0, math.MaxUint32)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(i))
		return buf, nil
	case TypeReal:
		f, err := realOf(t, v)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(f)))
		return buf, nil
	case TypeLReal:
		f, err := realOf(t, v)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		return buf, nil
	case TypeBit:
		if v.Kind != KindBool {
			return nil, &ValueError{Tag: t.Format(), Reason: "expected a bool value for BIT"}
		}
		if v.Bool {
			return []byte{0x01}, nil
		}
		return []byte{0x00}, nil
	default:
		return nil, &ValueError{Tag: t.Format(), Reason: "unsupported data type for scalar encode"}
	}
}

func intOf(t *Tag, v Value, lo, hi int64) (int64, error) {
	if v.Kind != KindInt {
		return 0, &ValueError{Tag: t.Format(), Reason: "expected an integer value"}
	}
	if v.Int < lo || v.Int > hi {
		return 0, &ValueError{Tag: t.Format(), Reason: "integer value out of range for data type"}
	}
	return v.Int, nil
}

func realOf(t *Tag, v Value) (float64, error) {
	switch v.Kind {
	case KindReal:
		return v.Real, nil
	case KindInt:
		return float64(v.Int), nil
	default:
		return 0, &ValueError{Tag: t.Format(), Reason: "expected a real value"}
	}
}

// DecodeValue interprets raw payload bytes for tag t. A scalar BIT is read
// from bit 0 of the first byte (the 0x00/0x01 form EncodeValue produces).
// For BIT tags with length>1, it extracts length consecutive bits starting
// at t.BitOffset within the first byte of raw.
func DecodeValue(t *Tag, raw []byte) (Value, error) {
	switch t.DataType {
	case TypeBit:
		if len(raw) < 1 {
			return Value{}, &ValueError{Tag: t.Format(), Reason: "short BIT payload"}
		}
		if t.Length == 1 {
			return BoolValue(raw[0]&0x01 != 0), nil
		}
		bits := make([]Value, t.Length)
		for i := 0; i < t.Length; i++ {
			bits[i] = BoolValue(raw[0]&(1<<uint(t.BitOffset+i)) != 0)
		}
		return ArrayValue(bits), nil

	case TypeString:
		if len(raw) < 2 {
			return Value{}, &ValueError{Tag: t.Format(), Reason: "short STRING payload"}
		}
		curLen := int(raw[1])
		if 2+curLen > len(raw) {
			curLen = len(raw) - 2
		}
		return TextValue(string(raw[2 : 2+curLen])), nil

	case TypeWString:
		if len(raw) < 4 {
			return Value{}, &ValueError{Tag: t.Format(), Reason: "short WSTRING payload"}
		}
		curLen := int(binary.BigEndian.Uint16(raw[2:4]))
		var sb strings.Builder
		for i := 0; i < curLen && 4+2*i+2 <= len(raw); i++ {
			u := binary.BigEndian.Uint16(raw[4+2*i : 6+2*i])
			sb.WriteRune(rune(u))
		}
		return TextValue(sb.String()), nil
	}

	stride := elementStride[t.DataType]
	if t.Length > 1 {
		if len(raw) < stride*t.Length {
			return Value{}, &ValueError{Tag: t.Format(), Reason: "short array payload"}
		}
		out := make([]Value, t.Length)
		for i := 0; i < t.Length; i++ {
			v, err := decodeScalar(t, raw[i*stride:(i+1)*stride])
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return ArrayValue(out), nil
	}

	if len(raw) < stride {
		return Value{}, &ValueError{Tag: t.Format(), Reason: "short scalar payload"}
	}
	return decodeScalar(t, raw[:stride])
}

func decodeScalar(t *Tag, raw []byte) (Value, error) {
	switch t.DataType {
	case TypeByte:
		return IntValue(int64(raw[0])), nil
	case TypeChar:
		return TextValue(string(raw[0])), nil
	case TypeInt:
		return IntValue(int64(int16(binary.BigEndian.Uint16(raw)))), nil
	case TypeWord:
		return IntValue(int64(binary.BigEndian.Uint16(raw))), nil
	case TypeDInt:
		return IntValue(int64(int32(binary.BigEndian.Uint32(raw)))), nil
	case TypeDWord:
		return IntValue(int64(binary.BigEndian.Uint32(raw))), nil
	case TypeReal:
		return RealValue(float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))), nil
	case TypeLReal:
		return RealValue(math.Float64frombits(binary.BigEndian.Uint64(raw))), nil
	default:
		return Value{}, &ValueError{Tag: t.Format(), Reason: "unsupported data type for scalar decode"}
	}
}
