package ubjson

import (
	"bytes"
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
	"github.com/twinfer/docbin/pkg/convert"
	"github.com/twinfer/docbin/pkg/docvalue"
)

// Decode parses one UBJSON value from a buffer. Trailing bytes after the
// value are an error in this call shape; use DecodeFrom to read one value
// out of a longer stream.
func Decode(data []byte, opts ...Option) (*docvalue.Value, error) {
	s := kaitai.NewStream(bytes.NewReader(data))
	d, err := newDecoder(s, applyOptions(opts))
	if err != nil {
		return nil, err
	}
	v, err := d.readValue(0)
	if err != nil {
		return nil, err
	}
	if d.pos() != int64(len(data)) {
		return nil, &DecodeError{Kind: InvalidTag, Offset: d.pos()}
	}
	return v, nil
}

// DecodeFrom parses one UBJSON value from a stream, leaving the stream
// positioned after it.
func DecodeFrom(r io.ReadSeeker, opts ...Option) (*docvalue.Value, error) {
	d, err := newDecoder(kaitai.NewStream(r), applyOptions(opts))
	if err != nil {
		return nil, err
	}
	return d.readValue(0)
}

// MustDecode is the panicking shape of Decode.
func MustDecode(data []byte, opts ...Option) *docvalue.Value {
	v, err := Decode(data, opts...)
	if err != nil {
		panic(err)
	}
	return v
}

// Unmarshal decodes one value and converts it to T through the
// conversion registry.
func Unmarshal[T any](data []byte, opts ...Option) (T, error) {
	var zero T
	v, err := Decode(data, opts...)
	if err != nil {
		return zero, err
	}
	return convert.As[T](v)
}

type decoder struct {
	s        *kaitai.Stream
	size     int64
	maxDepth int
	sorted   bool
}

func newDecoder(s *kaitai.Stream, o options) (*decoder, error) {
	size, err := s.Size()
	if err != nil {
		return nil, err
	}
	return &decoder{s: s, size: size, maxDepth: o.maxDepth, sorted: o.sortedObjects}, nil
}

func (d *decoder) pos() int64 {
	p, err := d.s.Pos()
	if err != nil {
		return -1
	}
	return p
}

func (d *decoder) errEOF() error {
	return &DecodeError{Kind: UnexpectedEOF, Offset: d.pos()}
}

// checkLen validates a length prefix against the remaining input before
// any payload read. Payloads are never scanned for terminators; this
// check is what bounds read amplification from hostile lengths.
func (d *decoder) checkLen(n int64) error {
	if n < 0 || n > d.size-d.pos() {
		return &DecodeError{Kind: LengthExceedsInput, Offset: d.pos()}
	}
	return nil
}

// readValue reads the next value, skipping no-op markers in front of it.
func (d *decoder) readValue(depth int) (*docvalue.Value, error) {
	for {
		marker, err := d.s.ReadU1()
		if err != nil {
			return nil, d.errEOF()
		}
		if marker == markerNoop {
			continue
		}
		return d.readMarked(marker, depth)
	}
}

// readMarked decodes the value body belonging to an already-consumed
// marker byte.
func (d *decoder) readMarked(marker uint8, depth int) (*docvalue.Value, error) {
	if depth > d.maxDepth {
		return nil, &DecodeError{Kind: DepthExceeded, Offset: d.pos()}
	}
	switch marker {
	case markerNull:
		return docvalue.Null(), nil
	case markerTrue:
		return docvalue.Bool(true), nil
	case markerFalse:
		return docvalue.Bool(false), nil

	case markerInt8:
		i, err := d.s.ReadS1()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Int(int64(i)), nil
	case markerUint8:
		u, err := d.s.ReadU1()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Uint(uint64(u)), nil
	case markerInt16:
		i, err := d.s.ReadS2be()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Int(int64(i)), nil
	case markerInt32:
		i, err := d.s.ReadS4be()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Int(int64(i)), nil
	case markerInt64:
		i, err := d.s.ReadS8be()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Int(i), nil

	case markerFloat32:
		f, err := d.s.ReadF4be()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Float(float64(f)), nil
	case markerFloat64:
		f, err := d.s.ReadF8be()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Float(f), nil

	case markerChar:
		c, err := d.s.ReadU1()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.String(string([]byte{c})), nil
	case markerString:
		s, err := d.readText()
		if err != nil {
			return nil, err
		}
		return docvalue.String(s), nil
	case markerHighPre:
		s, err := d.readText()
		if err != nil {
			return nil, err
		}
		return docvalue.String(s).WithTag(highPrecisionTag(s)), nil

	case markerArray:
		return d.readArray(depth)
	case markerObject:
		return d.readObject(depth)
	}
	return nil, &DecodeError{Kind: InvalidTag, Offset: d.pos() - 1}
}

// readLength reads an integer-marked length value, as used by counts and
// string prefixes.
func (d *decoder) readLength() (int64, error) {
	marker, err := d.s.ReadU1()
	if err != nil {
		return 0, d.errEOF()
	}
	var n int64
	switch marker {
	case markerInt8:
		i, err := d.s.ReadS1()
		if err != nil {
			return 0, d.errEOF()
		}
		n = int64(i)
	case markerUint8:
		u, err := d.s.ReadU1()
		if err != nil {
			return 0, d.errEOF()
		}
		n = int64(u)
	case markerInt16:
		i, err := d.s.ReadS2be()
		if err != nil {
			return 0, d.errEOF()
		}
		n = int64(i)
	case markerInt32:
		i, err := d.s.ReadS4be()
		if err != nil {
			return 0, d.errEOF()
		}
		n = int64(i)
	case markerInt64:
		i, err := d.s.ReadS8be()
		if err != nil {
			return 0, d.errEOF()
		}
		n = i
	default:
		return 0, &DecodeError{Kind: InvalidTag, Offset: d.pos() - 1}
	}
	if n < 0 {
		return 0, &DecodeError{Kind: InvalidLength, Offset: d.pos()}
	}
	return n, nil
}

// readText reads a length-prefixed UTF-8 payload, the tail of S and H
// values and the whole of an object member name.
func (d *decoder) readText() (string, error) {
	n, err := d.readLength()
	if err != nil {
		return "", err
	}
	if err := d.checkLen(n); err != nil {
		return "", err
	}
	b, err := d.s.ReadBytes(int(n))
	if err != nil {
		return "", d.errEOF()
	}
	return string(b), nil
}

// highPrecisionTag classifies a high-precision number payload: pure
// integer text carries the big-integer tag, anything else the
// big-decimal tag.
func highPrecisionTag(s string) docvalue.Tag {
	t := s
	if len(t) > 0 && (t[0] == '-' || t[0] == '+') {
		t = t[1:]
	}
	if len(t) == 0 {
		return docvalue.TagBigDec
	}
	for i := 0; i < len(t); i++ {
		if t[i] < '0' || t[i] > '9' {
			return docvalue.TagBigDec
		}
	}
	return docvalue.TagBigInt
}

// readArray handles the three container layouts: open-ended with an end
// marker, count-optimized, and type-plus-count optimized. A strongly
// typed uint8 array decodes to a byte string.
func (d *decoder) readArray(depth int) (*docvalue.Value, error) {
	marker, err := d.s.ReadU1()
	if err != nil {
		return nil, d.errEOF()
	}
	switch marker {
	case markerType:
		typ, err := d.s.ReadU1()
		if err != nil {
			return nil, d.errEOF()
		}
		// A type marker without a following count has no framing.
		next, err := d.s.ReadU1()
		if err != nil {
			return nil, d.errEOF()
		}
		if next != markerCount {
			return nil, &DecodeError{Kind: InvalidTag, Offset: d.pos() - 1}
		}
		n, err := d.readLength()
		if err != nil {
			return nil, err
		}
		return d.readTypedArray(typ, n, depth)
	case markerCount:
		n, err := d.readLength()
		if err != nil {
			return nil, err
		}
		if err := d.checkLen(n); err != nil {
			return nil, err
		}
		elems := make([]*docvalue.Value, 0, n)
		for i := int64(0); i < n; i++ {
			el, err := d.readValue(depth + 1)
			if err != nil {
				return nil, err
			}
			elems = append(elems, el)
		}
		return docvalue.ArrayFromSlice(elems), nil
	default:
		var elems []*docvalue.Value
		for marker != markerArrayEnd {
			if marker != markerNoop {
				el, err := d.readMarked(marker, depth+1)
				if err != nil {
					return nil, err
				}
				elems = append(elems, el)
			}
			if marker, err = d.s.ReadU1(); err != nil {
				return nil, d.errEOF()
			}
		}
		return docvalue.ArrayFromSlice(elems), nil
	}
}

func (d *decoder) readTypedArray(typ uint8, n int64, depth int) (*docvalue.Value, error) {
	if typ == markerUint8 {
		if err := d.checkLen(n); err != nil {
			return nil, err
		}
		b, err := d.s.ReadBytes(int(n))
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Bytes(b), nil
	}
	// Elements of the null and boolean types carry no payload, so their
	// count cannot be bounded by the remaining input.
	zeroPayload := typ == markerNull || typ == markerTrue || typ == markerFalse
	if !zeroPayload {
		if err := d.checkLen(n); err != nil {
			return nil, err
		}
	}
	capHint := n
	if zeroPayload && capHint > 4096 {
		capHint = 4096
	}
	elems := make([]*docvalue.Value, 0, capHint)
	for i := int64(0); i < n; i++ {
		el, err := d.readMarked(typ, depth+1)
		if err != nil {
			return nil, err
		}
		elems = append(elems, el)
	}
	return docvalue.ArrayFromSlice(elems), nil
}

// readObject handles the same three layouts as readArray. Member names
// are always bare length-prefixed text.
func (d *decoder) readObject(depth int) (*docvalue.Value, error) {
	var obj *docvalue.Object
	if d.sorted {
		obj = docvalue.NewSortedObject()
	} else {
		obj = docvalue.NewObject()
	}

	marker, err := d.s.ReadU1()
	if err != nil {
		return nil, d.errEOF()
	}
	switch marker {
	case markerType:
		typ, err := d.s.ReadU1()
		if err != nil {
			return nil, d.errEOF()
		}
		next, err := d.s.ReadU1()
		if err != nil {
			return nil, d.errEOF()
		}
		if next != markerCount {
			return nil, &DecodeError{Kind: InvalidTag, Offset: d.pos() - 1}
		}
		n, err := d.readLength()
		if err != nil {
			return nil, err
		}
		if err := d.checkLen(n); err != nil {
			return nil, err
		}
		for i := int64(0); i < n; i++ {
			key, err := d.readText()
			if err != nil {
				return nil, err
			}
			val, err := d.readMarked(typ, depth+1)
			if err != nil {
				return nil, err
			}
			obj.Set(key, val)
		}
		return docvalue.ObjectValue(obj), nil
	case markerCount:
		n, err := d.readLength()
		if err != nil {
			return nil, err
		}
		if err := d.checkLen(n); err != nil {
			return nil, err
		}
		for i := int64(0); i < n; i++ {
			key, err := d.readText()
			if err != nil {
				return nil, err
			}
			val, err := d.readValue(depth + 1)
			if err != nil {
				return nil, err
			}
			obj.Set(key, val)
		}
		return docvalue.ObjectValue(obj), nil
	default:
		for marker != markerObjectEnd {
			if marker != markerNoop {
				// The consumed marker is the first byte of the member
				// name's length value.
				key, err := d.readTextWithLengthMarker(marker)
				if err != nil {
					return nil, err
				}
				val, err := d.readValue(depth + 1)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if marker, err = d.s.ReadU1(); err != nil {
				return nil, d.errEOF()
			}
		}
		return docvalue.ObjectValue(obj), nil
	}
}

// readTextWithLengthMarker is readText for the open-ended object case,
// where the length's integer marker has already been consumed while
// probing for the end marker.
func (d *decoder) readTextWithLengthMarker(marker uint8) (string, error) {
	var n int64
	switch marker {
	case markerInt8:
		i, err := d.s.ReadS1()
		if err != nil {
			return "", d.errEOF()
		}
		n = int64(i)
	case markerUint8:
		u, err := d.s.ReadU1()
		if err != nil {
			return "", d.errEOF()
		}
		n = int64(u)
	case markerInt16:
		i, err := d.s.ReadS2be()
		if err != nil {
			return "", d.errEOF()
		}
		n = int64(i)
	case markerInt32:
		i, err := d.s.ReadS4be()
		if err != nil {
			return "", d.errEOF()
		}
		n = int64(i)
	case markerInt64:
		i, err := d.s.ReadS8be()
		if err != nil {
			return "", d.errEOF()
		}
		n = i
	default:
		return "", &DecodeError{Kind: InvalidTag, Offset: d.pos() - 1}
	}
	if n < 0 {
		return "", &DecodeError{Kind: InvalidLength, Offset: d.pos()}
	}
	if err := d.checkLen(n); err != nil {
		return "", err
	}
	b, err := d.s.ReadBytes(int(n))
	if err != nil {
		return "", d.errEOF()
	}
	return string(b), nil
}
