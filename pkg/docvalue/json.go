package docvalue

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// FromJSON parses JSON text into a Value. Object member order is preserved
// (the standard decoder's token stream delivers members in document order)
// and numbers are kept at full precision: integral numbers that fit decode
// as int64/uint64, integral numbers wider than 64 bits decode as
// BigInt-tagged strings, everything else as double.
func FromJSON(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := readJSONValue(dec)
	if err != nil {
		return nil, err
	}
	// Trailing garbage after the top-level value is an error.
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected content after top-level JSON value")
	}
	return v, nil
}

func readJSONValue(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return jsonTokenToValue(dec, tok)
}

func jsonTokenToValue(dec *json.Decoder, tok json.Token) (*Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return numberToValue(t), nil
	case json.Delim:
		switch t {
		case '[':
			var elems []*Value
			for dec.More() {
				e, err := readJSONValue(dec)
				if err != nil {
					return nil, err
				}
				elems = append(elems, e)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return ArrayFromSlice(elems), nil
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := readJSONValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return ObjectValue(obj), nil
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

func numberToValue(n json.Number) *Value {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i)
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return Uint(u)
		}
		return &Value{kind: KindString, tag: TagBigInt, str: s}
	}
	f, err := n.Float64()
	if err != nil {
		return &Value{kind: KindString, tag: TagBigDec, str: s}
	}
	return Float(f)
}

// MarshalJSON renders the value as JSON. Byte-strings emit base64 text
// (base16/base64url tags select their encodings), BigInt/BigDec-tagged
// strings emit as bare numbers, and object member order follows the
// object's ordering policy.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.num != 0 {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindInt64:
		buf.WriteString(strconv.FormatInt(int64(v.num), 10))
	case KindUint64:
		buf.WriteString(strconv.FormatUint(v.num, 10))
	case KindDouble:
		f := math.Float64frombits(v.num)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			buf.WriteString("null")
		} else {
			buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		}
	case KindString:
		if v.tag == TagBigInt || v.tag == TagBigDec {
			buf.WriteString(v.str)
			return nil
		}
		b, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindBytes:
		var text string
		switch v.tag {
		case TagBase16:
			text = hexEncode(v.bin)
		case TagBase64URL:
			text = base64.RawURLEncoding.EncodeToString(v.bin)
		default:
			text = base64.StdEncoding.EncodeToString(v.bin)
		}
		b, err := json.Marshal(text)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, m := range v.obj.Members() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := m.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// DumpText returns the compact JSON text of the value. Used where a value
// must become a member name (non-string map keys).
func (v *Value) DumpText() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return v.String()
	}
	return string(b)
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, hexDigits[c>>4], hexDigits[c&0x0f])
	}
	return string(out)
}
