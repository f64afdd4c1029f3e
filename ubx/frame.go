// Package ubx validates and forwards u-blox binary (UBX) frames.
package ubx

import (
	"encoding/binary"
	"errors"
)

// Sync bytes of every UBX frame.
const (
	Sync1 = 0xB5
	Sync2 = 0x62
)

// ClassMGA carries multiple GNSS assistance data (AssistNow).
const ClassMGA = 0x13

const (
	// HeaderLen is sync, class, id and length.
	HeaderLen = 6
	// Overhead is the header plus the two checksum bytes.
	Overhead = HeaderLen + 2
)

var (
	ErrShort    = errors.New("ubx: frame truncated")
	ErrSync     = errors.New("ubx: bad sync")
	ErrClass    = errors.New("ubx: unexpected class")
	ErrChecksum = errors.New("ubx: checksum mismatch")
)

// Header is the fixed part of a frame.
type Header struct {
	Class  uint8
	ID     uint8
	Length uint16
}

// Checksum is the 8-bit Fletcher sum over class, id, length and payload.
func Checksum(data []byte) (ckA, ckB uint8) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// Encode builds a complete frame around payload.
func Encode(class, id uint8, payload []byte) []byte {
	buf := make([]byte, 0, Overhead+len(payload))
	buf = append(buf, Sync1, Sync2, class, id)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	ckA, ckB := Checksum(buf[2:])
	return append(buf, ckA, ckB)
}

// ParseHeader reads the header at the start of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, ErrShort
	}
	if buf[0] != Sync1 || buf[1] != Sync2 {
		return Header{}, ErrSync
	}
	return Header{
		Class:  buf[2],
		ID:     buf[3],
		Length: binary.LittleEndian.Uint16(buf[4:6]),
	}, nil
}

// Validate checks the frame starting at buf[off] and returns its total
// length. A class of 0 accepts any class.
func Validate(buf []byte, off int, class uint8) (int, error) {
	if off < 0 || off >= len(buf) {
		return 0, ErrShort
	}
	h, err := ParseHeader(buf[off:])
	if err != nil {
		return 0, err
	}
	if class != 0 && h.Class != class {
		return 0, ErrClass
	}
	n := Overhead + int(h.Length)
	if off+n > len(buf) {
		return 0, ErrShort
	}
	ckA, ckB := Checksum(buf[off+2 : off+HeaderLen+int(h.Length)])
	if buf[off+n-2] != ckA || buf[off+n-1] != ckB {
		return 0, ErrChecksum
	}
	return n, nil
}
