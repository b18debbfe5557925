package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bgrewell/udf-kit/pkg/consts"
)

var ErrInvalidTimestamp = errors.New("invalid timestamp")

const (
	TimestampSize = 12
	ExtentADSize  = 8
	LBAddrSize    = 6
	EntityIDSize  = 32
)

// Timestamp is the 12 byte ECMA-167 1/7.3 timestamp.
type Timestamp struct {
	TypeAndTimezone        uint16
	Year                   int16
	Month                  uint8
	Day                    uint8
	Hour                   uint8
	Minute                 uint8
	Second                 uint8
	Centiseconds           uint8
	HundredsOfMicroseconds uint8
	Microseconds           uint8
}

// UnmarshalTimestamp decodes a timestamp from the first 12 bytes of data.
func UnmarshalTimestamp(data []byte) (Timestamp, error) {
	if len(data) < TimestampSize {
		return Timestamp{}, io.ErrUnexpectedEOF
	}
	return Timestamp{
		TypeAndTimezone:        binary.LittleEndian.Uint16(data[0:2]),
		Year:                   int16(binary.LittleEndian.Uint16(data[2:4])),
		Month:                  data[4],
		Day:                    data[5],
		Hour:                   data[6],
		Minute:                 data[7],
		Second:                 data[8],
		Centiseconds:           data[9],
		HundredsOfMicroseconds: data[10],
		Microseconds:           data[11],
	}, nil
}

// Marshal encodes the timestamp into its 12 byte on-disk form.
func (ts Timestamp) Marshal() [TimestampSize]byte {
	var b [TimestampSize]byte
	binary.LittleEndian.PutUint16(b[0:2], ts.TypeAndTimezone)
	binary.LittleEndian.PutUint16(b[2:4], uint16(ts.Year))
	b[4] = ts.Month
	b[5] = ts.Day
	b[6] = ts.Hour
	b[7] = ts.Minute
	b[8] = ts.Second
	b[9] = ts.Centiseconds
	b[10] = ts.HundredsOfMicroseconds
	b[11] = ts.Microseconds
	return b
}

// NewTimestamp builds a type 1 (local time) timestamp with the given offset from UTC in
// minutes.
func NewTimestamp(year, month, day, hour, minute, second, tzMinutes int) Timestamp {
	return Timestamp{
		TypeAndTimezone: 1<<12 | uint16(tzMinutes)&0x0FFF,
		Year:            int16(year),
		Month:           uint8(month),
		Day:             uint8(day),
		Hour:            uint8(hour),
		Minute:          uint8(minute),
		Second:          uint8(second),
	}
}

// Timezone returns the recorded offset from UTC in minutes, sign extended from 12 bits.
func (ts Timestamp) Timezone() int {
	tz := int(ts.TypeAndTimezone & 0x0FFF)
	if tz&0x0800 != 0 {
		tz -= 0x1000
	}
	return tz
}

// Validate checks every field is within its calendar range.
func (ts Timestamp) Validate() error {
	switch {
	case ts.Year < consts.TIMESTAMP_EPOCH_YEAR || ts.Year > consts.TIMESTAMP_MAX_YEAR:
		return fmt.Errorf("year %d: %w", ts.Year, ErrInvalidTimestamp)
	case ts.Month < 1 || ts.Month > 12:
		return fmt.Errorf("month %d: %w", ts.Month, ErrInvalidTimestamp)
	case ts.Day < 1 || ts.Day > 31:
		return fmt.Errorf("day %d: %w", ts.Day, ErrInvalidTimestamp)
	case ts.Hour > 23:
		return fmt.Errorf("hour %d: %w", ts.Hour, ErrInvalidTimestamp)
	case ts.Minute > 59:
		return fmt.Errorf("minute %d: %w", ts.Minute, ErrInvalidTimestamp)
	case ts.Second > 59:
		return fmt.Errorf("second %d: %w", ts.Second, ErrInvalidTimestamp)
	}
	if tz := ts.Timezone(); tz != consts.TIMESTAMP_TZ_UNSPECIFIED &&
		(tz < -consts.TIMESTAMP_TZ_LIMIT || tz > consts.TIMESTAMP_TZ_LIMIT) {
		return fmt.Errorf("timezone %d: %w", tz, ErrInvalidTimestamp)
	}
	return nil
}

// ToTime converts the timestamp to a UTC time.Time.
//
// The conversion is approximate: every year has 365 days and every month 30 days, so results
// drift from the civil calendar but stay monotonic in the recorded fields. Sub-second fields
// are dropped. An unspecified timezone is treated as UTC.
func (ts Timestamp) ToTime() (time.Time, error) {
	if err := ts.Validate(); err != nil {
		return time.Time{}, err
	}
	const day = 24 * 60 * 60
	secs := int64(ts.Year-consts.TIMESTAMP_EPOCH_YEAR)*365*day +
		int64(ts.Month-1)*30*day +
		int64(ts.Day-1)*day +
		int64(ts.Hour)*3600 +
		int64(ts.Minute)*60 +
		int64(ts.Second)
	if tz := ts.Timezone(); tz != consts.TIMESTAMP_TZ_UNSPECIFIED {
		secs -= int64(tz) * 60
	}
	return time.Unix(secs, 0).UTC(), nil
}

func (ts Timestamp) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d (tz %d)",
		ts.Year, ts.Month, ts.Day, ts.Hour, ts.Minute, ts.Second, ts.Timezone())
}

// ExtentAD is an extent of the volume space (ECMA-167 3/7.1).
type ExtentAD struct {
	Length   uint32
	Location uint32
}

func UnmarshalExtentAD(data []byte) (ExtentAD, error) {
	if len(data) < ExtentADSize {
		return ExtentAD{}, io.ErrUnexpectedEOF
	}
	return ExtentAD{
		Length:   binary.LittleEndian.Uint32(data[0:4]),
		Location: binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}

func (e ExtentAD) Put(dst []byte) {
	_ = dst[ExtentADSize-1]
	binary.LittleEndian.PutUint32(dst[0:4], e.Length)
	binary.LittleEndian.PutUint32(dst[4:8], e.Location)
}

// LBAddr identifies a block within a partition (ECMA-167 4/7.1).
type LBAddr struct {
	LogicalBlockNumber       uint32
	PartitionReferenceNumber uint16
}

func UnmarshalLBAddr(data []byte) (LBAddr, error) {
	if len(data) < LBAddrSize {
		return LBAddr{}, io.ErrUnexpectedEOF
	}
	return LBAddr{
		LogicalBlockNumber:       binary.LittleEndian.Uint32(data[0:4]),
		PartitionReferenceNumber: binary.LittleEndian.Uint16(data[4:6]),
	}, nil
}

func (a LBAddr) Put(dst []byte) {
	_ = dst[LBAddrSize-1]
	binary.LittleEndian.PutUint32(dst[0:4], a.LogicalBlockNumber)
	binary.LittleEndian.PutUint16(dst[4:6], a.PartitionReferenceNumber)
}

func (a LBAddr) String() string {
	return fmt.Sprintf("%d:%d", a.PartitionReferenceNumber, a.LogicalBlockNumber)
}

// ExtentType is held in the top two bits of an allocation descriptor's length field.
type ExtentType uint8

const (
	ExtentRecordedAllocated ExtentType = iota
	ExtentNotRecordedAllocated
	ExtentNotRecordedNotAllocated
	ExtentNextExtent
)

func (t ExtentType) String() string {
	switch t {
	case ExtentRecordedAllocated:
		return "recorded"
	case ExtentNotRecordedAllocated:
		return "allocated"
	case ExtentNotRecordedNotAllocated:
		return "sparse"
	case ExtentNextExtent:
		return "continuation"
	}
	return "unknown"
}

func splitExtentLength(raw uint32) (uint32, ExtentType) {
	return raw & consts.EXTENT_LENGTH_MASK, ExtentType(raw >> consts.EXTENT_TYPE_SHIFT)
}

func joinExtentLength(length uint32, t ExtentType) uint32 {
	return length&consts.EXTENT_LENGTH_MASK | uint32(t)<<consts.EXTENT_TYPE_SHIFT
}

// ShortAD is an allocation descriptor within the partition of its file entry (ECMA-167 4/14.14.1).
type ShortAD struct {
	Length   uint32
	Type     ExtentType
	Position uint32
}

func UnmarshalShortAD(data []byte) (ShortAD, error) {
	if len(data) < consts.SHORT_AD_SIZE {
		return ShortAD{}, io.ErrUnexpectedEOF
	}
	length, t := splitExtentLength(binary.LittleEndian.Uint32(data[0:4]))
	return ShortAD{
		Length:   length,
		Type:     t,
		Position: binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}

func (ad ShortAD) Put(dst []byte) {
	_ = dst[consts.SHORT_AD_SIZE-1]
	binary.LittleEndian.PutUint32(dst[0:4], joinExtentLength(ad.Length, ad.Type))
	binary.LittleEndian.PutUint32(dst[4:8], ad.Position)
}

// LongAD is an allocation descriptor that may point into any partition (ECMA-167 4/14.14.2).
type LongAD struct {
	Length            uint32
	Type              ExtentType
	Location          LBAddr
	ImplementationUse [6]byte
}

func UnmarshalLongAD(data []byte) (LongAD, error) {
	if len(data) < consts.LONG_AD_SIZE {
		return LongAD{}, io.ErrUnexpectedEOF
	}
	length, t := splitExtentLength(binary.LittleEndian.Uint32(data[0:4]))
	loc, _ := UnmarshalLBAddr(data[4:10])
	ad := LongAD{Length: length, Type: t, Location: loc}
	copy(ad.ImplementationUse[:], data[10:16])
	return ad, nil
}

func (ad LongAD) Put(dst []byte) {
	_ = dst[consts.LONG_AD_SIZE-1]
	binary.LittleEndian.PutUint32(dst[0:4], joinExtentLength(ad.Length, ad.Type))
	ad.Location.Put(dst[4:10])
	copy(dst[10:16], ad.ImplementationUse[:])
}

// EntityID is the regid structure (ECMA-167 1/7.4) naming implementations and domains.
type EntityID struct {
	Flags            uint8
	Identifier       [23]byte
	IdentifierSuffix [8]byte
}

func UnmarshalEntityID(data []byte) (EntityID, error) {
	if len(data) < EntityIDSize {
		return EntityID{}, io.ErrUnexpectedEOF
	}
	id := EntityID{Flags: data[0]}
	copy(id.Identifier[:], data[1:24])
	copy(id.IdentifierSuffix[:], data[24:32])
	return id, nil
}

// NewEntityID builds an entity identifier, truncating ident to 23 bytes.
func NewEntityID(ident string) EntityID {
	var id EntityID
	copy(id.Identifier[:], ident)
	return id
}

func (id EntityID) Put(dst []byte) {
	_ = dst[EntityIDSize-1]
	dst[0] = id.Flags
	copy(dst[1:24], id.Identifier[:])
	copy(dst[24:32], id.IdentifierSuffix[:])
}

// IdentifierString returns the identifier with trailing NUL and space padding removed.
func (id EntityID) IdentifierString() string {
	return strings.TrimRight(string(id.Identifier[:]), "\x00 ")
}

// UDFRevision returns the UDF revision recorded in a domain or UDF identifier suffix,
// for example 0x0150 or 0x0201.
func (id EntityID) UDFRevision() uint16 {
	return binary.LittleEndian.Uint16(id.IdentifierSuffix[0:2])
}
