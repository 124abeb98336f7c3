package msgpack

import (
	"bytes"
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
	"github.com/twinfer/docbin/pkg/convert"
	"github.com/twinfer/docbin/pkg/docvalue"
)

// Decode parses one MessagePack value from a buffer. Trailing bytes after
// the value are an error in this call shape; use DecodeFrom to read one
// value out of a longer stream.
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

// DecodeFrom parses one MessagePack value from a stream, leaving the
// stream positioned after it.
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

// decoder is the transient cursor for one decode call: stream position,
// total input size and remaining nesting budget.
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
// any payload read. Binary payloads are never scanned for terminators;
// this check is what bounds read amplification from hostile lengths.
func (d *decoder) checkLen(n int64) error {
	if n < 0 || n > d.size-d.pos() {
		return &DecodeError{Kind: LengthExceedsInput, Offset: d.pos()}
	}
	return nil
}

func (d *decoder) readValue(depth int) (*docvalue.Value, error) {
	if depth > d.maxDepth {
		return nil, &DecodeError{Kind: DepthExceeded, Offset: d.pos()}
	}
	tag, err := d.s.ReadU1()
	if err != nil {
		return nil, d.errEOF()
	}

	switch {
	case tag <= 0x7f: // positive fixint
		return docvalue.Uint(uint64(tag)), nil
	case tag >= 0xe0: // negative fixint
		return docvalue.Int(int64(int8(tag))), nil
	case tag >= 0x80 && tag <= 0x8f: // fixmap
		return d.readMap(int64(tag&0x0f), depth)
	case tag >= 0x90 && tag <= 0x9f: // fixarray
		return d.readArray(int64(tag&0x0f), depth)
	case tag >= 0xa0 && tag <= 0xbf: // fixstr
		return d.readString(int64(tag & 0x1f))
	}

	switch tag {
	case 0xc0:
		return docvalue.Null(), nil
	case 0xc2:
		return docvalue.Bool(false), nil
	case 0xc3:
		return docvalue.Bool(true), nil

	case 0xcc:
		u, err := d.s.ReadU1()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Uint(uint64(u)), nil
	case 0xcd:
		u, err := d.s.ReadU2be()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Uint(uint64(u)), nil
	case 0xce:
		u, err := d.s.ReadU4be()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Uint(uint64(u)), nil
	case 0xcf:
		u, err := d.s.ReadU8be()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Uint(u), nil

	case 0xd0:
		i, err := d.s.ReadS1()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Int(int64(i)), nil
	case 0xd1:
		i, err := d.s.ReadS2be()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Int(int64(i)), nil
	case 0xd2:
		i, err := d.s.ReadS4be()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Int(int64(i)), nil
	case 0xd3:
		i, err := d.s.ReadS8be()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Int(i), nil

	case 0xca:
		f, err := d.s.ReadF4be()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Float(float64(f)), nil
	case 0xcb:
		f, err := d.s.ReadF8be()
		if err != nil {
			return nil, d.errEOF()
		}
		return docvalue.Float(f), nil

	case 0xd9:
		n, err := d.s.ReadU1()
		if err != nil {
			return nil, d.errEOF()
		}
		return d.readString(int64(n))
	case 0xda:
		n, err := d.s.ReadU2be()
		if err != nil {
			return nil, d.errEOF()
		}
		return d.readString(int64(n))
	case 0xdb:
		n, err := d.s.ReadU4be()
		if err != nil {
			return nil, d.errEOF()
		}
		return d.readString(int64(n))

	case 0xc4:
		n, err := d.s.ReadU1()
		if err != nil {
			return nil, d.errEOF()
		}
		return d.readBytes(int64(n))
	case 0xc5:
		n, err := d.s.ReadU2be()
		if err != nil {
			return nil, d.errEOF()
		}
		return d.readBytes(int64(n))
	case 0xc6:
		n, err := d.s.ReadU4be()
		if err != nil {
			return nil, d.errEOF()
		}
		return d.readBytes(int64(n))

	case 0xd4, 0xd5, 0xd6, 0xd7, 0xd8: // fixext 1/2/4/8/16
		return d.readExt(int64(1 << (tag - 0xd4)))
	case 0xc7:
		n, err := d.s.ReadU1()
		if err != nil {
			return nil, d.errEOF()
		}
		return d.readExt(int64(n))
	case 0xc8:
		n, err := d.s.ReadU2be()
		if err != nil {
			return nil, d.errEOF()
		}
		return d.readExt(int64(n))
	case 0xc9:
		n, err := d.s.ReadU4be()
		if err != nil {
			return nil, d.errEOF()
		}
		return d.readExt(int64(n))

	case 0xdc:
		n, err := d.s.ReadU2be()
		if err != nil {
			return nil, d.errEOF()
		}
		return d.readArray(int64(n), depth)
	case 0xdd:
		n, err := d.s.ReadU4be()
		if err != nil {
			return nil, d.errEOF()
		}
		return d.readArray(int64(n), depth)

	case 0xde:
		n, err := d.s.ReadU2be()
		if err != nil {
			return nil, d.errEOF()
		}
		return d.readMap(int64(n), depth)
	case 0xdf:
		n, err := d.s.ReadU4be()
		if err != nil {
			return nil, d.errEOF()
		}
		return d.readMap(int64(n), depth)
	}

	return nil, &DecodeError{Kind: InvalidTag, Offset: d.pos() - 1}
}

func (d *decoder) readString(n int64) (*docvalue.Value, error) {
	if err := d.checkLen(n); err != nil {
		return nil, err
	}
	b, err := d.s.ReadBytes(int(n))
	if err != nil {
		return nil, d.errEOF()
	}
	return docvalue.String(string(b)), nil
}

func (d *decoder) readBytes(n int64) (*docvalue.Value, error) {
	if err := d.checkLen(n); err != nil {
		return nil, err
	}
	b, err := d.s.ReadBytes(int(n))
	if err != nil {
		return nil, d.errEOF()
	}
	return docvalue.Bytes(b), nil
}

// readExt reads an extension payload. Type -1 is the timestamp extension
// and decodes to an epoch-tagged integer; other types are preserved as
// ext-tagged byte strings.
func (d *decoder) readExt(n int64) (*docvalue.Value, error) {
	if err := d.checkLen(n + 1); err != nil {
		return nil, err
	}
	typeCode, err := d.s.ReadS1()
	if err != nil {
		return nil, d.errEOF()
	}
	b, err := d.s.ReadBytes(int(n))
	if err != nil {
		return nil, d.errEOF()
	}
	if typeCode == -1 {
		if v, ok := decodeTimestamp(b); ok {
			return v, nil
		}
		return nil, &DecodeError{Kind: InvalidTag, Offset: d.pos()}
	}
	return docvalue.Ext(typeCode, b), nil
}

func decodeTimestamp(b []byte) (*docvalue.Value, bool) {
	switch len(b) {
	case 4:
		sec := uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[2])<<8 | uint64(b[3])
		return docvalue.Int(int64(sec)).WithTag(docvalue.TagEpochSecond), true
	case 8:
		packed := uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
			uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
		sec := int64(packed & ((1 << 34) - 1))
		nsec := int64(packed >> 34)
		if nsec == 0 {
			return docvalue.Int(sec).WithTag(docvalue.TagEpochSecond), true
		}
		return docvalue.Int(sec*int64(1e9) + nsec).WithTag(docvalue.TagEpochNano), true
	case 12:
		nsec := int64(uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[2])<<8 | uint64(b[3]))
		var sec int64
		for _, c := range b[4:12] {
			sec = sec<<8 | int64(c)
		}
		if nsec == 0 {
			return docvalue.Int(sec).WithTag(docvalue.TagEpochSecond), true
		}
		return docvalue.Int(sec*int64(1e9) + nsec).WithTag(docvalue.TagEpochNano), true
	default:
		return nil, false
	}
}

func (d *decoder) readArray(n int64, depth int) (*docvalue.Value, error) {
	// Each element is at least one byte; a count beyond the remaining
	// input can never complete.
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
}

func (d *decoder) readMap(n int64, depth int) (*docvalue.Value, error) {
	if err := d.checkLen(n); err != nil {
		return nil, err
	}
	var obj *docvalue.Object
	if d.sorted {
		obj = docvalue.NewSortedObject()
	} else {
		obj = docvalue.NewObject()
	}
	for i := int64(0); i < n; i++ {
		key, err := d.readValue(depth + 1)
		if err != nil {
			return nil, err
		}
		name, serr := key.AsString()
		if serr != nil {
			name = key.DumpText()
		}
		val, err := d.readValue(depth + 1)
		if err != nil {
			return nil, err
		}
		obj.Set(name, val)
	}
	return docvalue.ObjectValue(obj), nil
}
