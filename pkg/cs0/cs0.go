// Package cs0 implements the OSTA Compressed Unicode encoding used for UDF file identifiers
// and dstrings. The first byte is a compression id: 8 means one byte per code unit, 16 means
// big-endian byte pairs.
package cs0

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/cespare/xxhash/v2"
)

var (
	ErrInvalidCompressionID = errors.New("invalid cs0 compression id")
	ErrTooShort             = errors.New("cs0 string too short")
	ErrTooLong              = errors.New("cs0 string too long")
)

// Units is a sequence of 16-bit code units.
type Units []uint16

// Decode expands a CS0 byte string into code units. A trailing odd byte of a 16-bit string
// is ignored.
func Decode(b []byte) (Units, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("%d bytes: %w", len(b), ErrTooShort)
	}
	switch b[0] {
	case consts.CS0_COMPRESSION_8:
		units := make(Units, len(b)-1)
		for i, c := range b[1:] {
			units[i] = uint16(c)
		}
		return units, nil
	case consts.CS0_COMPRESSION_16:
		n := (len(b) - 1) / 2
		if n == 0 {
			return nil, fmt.Errorf("16-bit string of %d bytes: %w", len(b), ErrTooShort)
		}
		units := make(Units, n)
		for i := range units {
			units[i] = binary.BigEndian.Uint16(b[1+2*i:])
		}
		return units, nil
	default:
		return nil, fmt.Errorf("compression id %d: %w", b[0], ErrInvalidCompressionID)
	}
}

// Encode compresses code units, choosing the 8-bit form whenever every unit fits in a byte.
func Encode(u Units) []byte {
	if CompressionID(u) == consts.CS0_COMPRESSION_8 {
		out := make([]byte, 1+len(u))
		out[0] = consts.CS0_COMPRESSION_8
		for i, c := range u {
			out[1+i] = byte(c)
		}
		return out
	}
	out := make([]byte, 1+2*len(u))
	out[0] = consts.CS0_COMPRESSION_16
	for i, c := range u {
		binary.BigEndian.PutUint16(out[1+2*i:], c)
	}
	return out
}

// CompressionID returns the compression id Encode uses for u.
func CompressionID(u Units) uint8 {
	for _, c := range u {
		if c > 0xFF {
			return consts.CS0_COMPRESSION_16
		}
	}
	return consts.CS0_COMPRESSION_8
}

// String converts the code units to a Go string, combining surrogate pairs.
func (u Units) String() string {
	return string(utf16.Decode(u))
}

// DecodeString decodes a CS0 byte string straight to a Go string.
func DecodeString(b []byte) (string, error) {
	u, err := Decode(b)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// EncodeString encodes a Go string as CS0. Runes above U+FFFF become surrogate pairs.
func EncodeString(s string) []byte {
	return Encode(utf16.Encode([]rune(s)))
}

// DecodeDString decodes a fixed-size dstring field, whose last byte records how many of the
// preceding bytes are in use. An unused field decodes to the empty string.
func DecodeDString(field []byte) (string, error) {
	if len(field) == 0 {
		return "", nil
	}
	used := int(field[len(field)-1])
	if used == 0 {
		return "", nil
	}
	if used > len(field)-1 {
		return "", fmt.Errorf("dstring records %d bytes in a %d byte field: %w", used, len(field), ErrTooLong)
	}
	return DecodeString(field[:used])
}

// EncodeDString encodes s into a dstring field of the given size, truncating whole code
// units that do not fit.
func EncodeDString(s string, size int) []byte {
	field := make([]byte, size)
	if size < 2 || s == "" {
		return field
	}
	enc := EncodeString(s)
	limit := size - 1
	if len(enc) > limit {
		step := 1
		if enc[0] == consts.CS0_COMPRESSION_16 {
			step = 2
		}
		limit = 1 + (limit-1)/step*step
		enc = enc[:limit]
	}
	copy(field, enc)
	field[size-1] = byte(len(enc))
	return field
}

// Ustr is a decoded file identifier with a precomputed hash for fast comparisons.
type Ustr struct {
	CompressionID uint8
	Units         Units
	Hash          uint64
}

// NewUstr decodes a CS0 file identifier.
func NewUstr(b []byte) (*Ustr, error) {
	u, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if len(u) > consts.UDF_NAME_MAX_UNITS {
		return nil, fmt.Errorf("%d code units: %w", len(u), ErrTooLong)
	}
	return &Ustr{CompressionID: b[0], Units: u, Hash: hashUnits(u)}, nil
}

// Equal reports whether both identifiers hold the same code units, whatever their
// compression.
func (s *Ustr) Equal(o *Ustr) bool {
	if s.Hash != o.Hash || len(s.Units) != len(o.Units) {
		return false
	}
	for i := range s.Units {
		if s.Units[i] != o.Units[i] {
			return false
		}
	}
	return true
}

func (s *Ustr) String() string {
	return s.Units.String()
}

func hashUnits(u Units) uint64 {
	buf := make([]byte, 2*len(u))
	for i, c := range u {
		binary.BigEndian.PutUint16(buf[2*i:], c)
	}
	return xxhash.Sum64(buf)
}
