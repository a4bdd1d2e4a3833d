// Package codec implements the CDR encoding used by ROS 2 message payloads.
//
// A payload is a 4-byte encapsulation header followed by the serialized body.
// Primitives are aligned to their own size, measured from the start of the
// body. Strings are a uint32 length that counts the trailing NUL, the bytes,
// then the NUL.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// Encapsulation identifiers, the second byte of the header.
const (
	reprCDRBE   = 0x00
	reprCDRLE   = 0x01
	reprPLCDRBE = 0x02
	reprPLCDRLE = 0x03

	headerSize = 4
)

var (
	ErrTruncated     = errors.New("cdr: payload truncated")
	ErrEncapsulation = errors.New("cdr: unsupported encapsulation")
	ErrString        = errors.New("cdr: malformed string")
)

// Encoder appends little-endian CDR to an internal buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder whose buffer already holds the CDR_LE header.
func NewEncoder(sizeHint int) *Encoder {
	buf := make([]byte, headerSize, headerSize+sizeHint)
	buf[1] = reprCDRLE
	return &Encoder{buf: buf}
}

// Bytes returns the header and everything written so far.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) align(n int) {
	for (len(e.buf)-headerSize)%n != 0 {
		e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) PutUint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) PutUint32(v uint32) {
	e.align(4)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) PutInt32(v int32) {
	e.PutUint32(uint32(v))
}

func (e *Encoder) PutFloat64(v float64) {
	e.align(8)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}

func (e *Encoder) PutString(s string) {
	e.PutUint32(uint32(len(s) + 1))
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
}

// Decoder reads a CDR payload in either byte order.
type Decoder struct {
	body  []byte
	off   int
	order binary.ByteOrder
}

// NewDecoder checks the encapsulation header and positions the decoder at
// the start of the body.
func NewDecoder(payload []byte) (*Decoder, error) {
	if len(payload) < headerSize {
		return nil, fmt.Errorf("%w: %d byte header", ErrTruncated, len(payload))
	}
	if payload[0] != 0 {
		return nil, fmt.Errorf("%w: % x", ErrEncapsulation, payload[:2])
	}
	d := &Decoder{body: payload[headerSize:]}
	switch payload[1] {
	case reprCDRBE, reprPLCDRBE:
		d.order = binary.BigEndian
	case reprCDRLE, reprPLCDRLE:
		d.order = binary.LittleEndian
	default:
		return nil, fmt.Errorf("%w: % x", ErrEncapsulation, payload[:2])
	}
	return d, nil
}

func (d *Decoder) take(n, align int) ([]byte, error) {
	if rem := d.off % align; rem != 0 {
		d.off += align - rem
	}
	if d.off+n > len(d.body) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, d.off, len(d.body))
	}
	b := d.body[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *Decoder) ReadUint8() (uint8, error) {
	b, err := d.take(1, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	b, err := d.take(4, 4)
	if err != nil {
		return 0, err
	}
	return d.order.Uint32(b), nil
}

func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadUint32()
	return int32(v), err
}

func (d *Decoder) ReadFloat64() (float64, error) {
	b, err := d.take(8, 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(d.order.Uint64(b)), nil
}

func (d *Decoder) ReadString() (string, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if int(n) > len(d.body)-d.off {
		return "", fmt.Errorf("%w: string of %d bytes at offset %d", ErrTruncated, n, d.off)
	}
	b, err := d.take(int(n), 1)
	if err != nil {
		return "", err
	}
	if b[n-1] != 0 {
		return "", fmt.Errorf("%w: missing NUL terminator", ErrString)
	}
	s := b[:n-1]
	if !utf8.Valid(s) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrString)
	}
	return string(s), nil
}
