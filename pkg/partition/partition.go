// Package partition decodes partition maps and translates partition relative block numbers
// to absolute blocks.
package partition

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/vat"
)

var (
	ErrOutOfRange              = errors.New("block out of partition range")
	ErrUnsupportedPartitionMap = errors.New("unsupported partition map")
	ErrMalformedMap            = errors.New("malformed partition map")
)

// Kind names the partition map variants.
type Kind int

const (
	KindType1 Kind = iota
	KindSparable
	KindVirtual
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindType1:
		return "type1"
	case KindSparable:
		return "sparable"
	case KindVirtual:
		return "virtual"
	}
	return "unsupported"
}

// Geometry is what every partition map carries: where its partition starts and how long it
// is, in blocks.
type Geometry struct {
	ReferenceNumber      uint16 `json:"reference_number" yaml:"reference_number"`
	PartitionNumber      uint16 `json:"partition_number" yaml:"partition_number"`
	VolumeSequenceNumber uint16 `json:"volume_sequence_number" yaml:"volume_sequence_number"`
	Root                 uint32 `json:"root" yaml:"root"`
	Length               uint32 `json:"length" yaml:"length"`
}

// Base gives access to the geometry. Mount fills in Root and Length from the partition
// descriptors; maps are not modified after that.
func (g *Geometry) Base() *Geometry { return g }

func (g *Geometry) contains(block uint32) bool {
	return block >= g.Root && uint64(block) < uint64(g.Root)+uint64(g.Length)
}

// Map is a partition map. The concrete type decides how blocks are translated: *Type1,
// *Sparable, *Virtual or *Unsupported.
type Map interface {
	Kind() Kind
	Base() *Geometry
	isMap()
}

// Type1 maps logical blocks directly onto the partition.
type Type1 struct {
	Geometry
}

func (*Type1) Kind() Kind { return KindType1 }
func (*Type1) isMap()     {}

// Sparable is a direct mapping in which defective packets are relocated through a sparing
// table. Relocated blocks must lie inside the partition extent; spare areas recorded outside
// it translate to ErrOutOfRange.
type Sparable struct {
	Geometry
	PacketLength   uint16   `json:"packet_length"`
	TableSize      uint32   `json:"table_size"`
	TableLocations []uint32 `json:"table_locations"`
	// Table is the loaded sparing table. A nil Table relocates nothing.
	Table *SparingTable `json:"-"`
}

func (*Sparable) Kind() Kind { return KindSparable }
func (*Sparable) isMap()     {}

// Virtual maps logical blocks through the Virtual Allocation Table onto the partition it
// shares a partition number with.
type Virtual struct {
	Geometry
	Table *vat.Table `json:"-"`
	Cache *vat.Cache `json:"-"`
}

func (*Virtual) Kind() Kind { return KindVirtual }
func (*Virtual) isMap()     {}

// Unsupported is a recorded map the translator cannot use, such as a metadata partition.
type Unsupported struct {
	Geometry
	Type       uint8  `json:"type"`
	Identifier string `json:"identifier"`
}

func (*Unsupported) Kind() Kind { return KindUnsupported }
func (*Unsupported) isMap()     {}

// ParseMapTable decodes count partition maps from the map table of a logical volume
// descriptor. Reference numbers follow table order.
func ParseMapTable(data []byte, count uint32) ([]Map, error) {
	maps := make([]Map, 0, min(count, 64))
	off := 0
	for i := uint32(0); i < count; i++ {
		if off+2 > len(data) {
			return nil, fmt.Errorf("map %d at offset %d: %w", i, off, ErrMalformedMap)
		}
		mapType, mapLen := data[off], int(data[off+1])
		if mapLen < 2 || off+mapLen > len(data) {
			return nil, fmt.Errorf("map %d records length %d at offset %d: %w", i, mapLen, off, ErrMalformedMap)
		}
		m, err := parseMap(data[off:off+mapLen], mapType)
		if err != nil {
			return nil, fmt.Errorf("map %d: %w", i, err)
		}
		m.Base().ReferenceNumber = uint16(i)
		maps = append(maps, m)
		off += mapLen
	}
	return maps, nil
}

func parseMap(b []byte, mapType uint8) (Map, error) {
	switch mapType {
	case consts.PARTITION_MAP_TYPE_1:
		if len(b) < consts.PARTITION_MAP_TYPE_1_LENGTH {
			return nil, fmt.Errorf("type 1 map of %d bytes: %w", len(b), ErrMalformedMap)
		}
		return &Type1{Geometry: Geometry{
			VolumeSequenceNumber: binary.LittleEndian.Uint16(b[2:4]),
			PartitionNumber:      binary.LittleEndian.Uint16(b[4:6]),
		}}, nil
	case consts.PARTITION_MAP_TYPE_2:
		if len(b) < consts.PARTITION_MAP_TYPE_2_LENGTH {
			return nil, fmt.Errorf("type 2 map of %d bytes: %w", len(b), ErrMalformedMap)
		}
		id, _ := encoding.UnmarshalEntityID(b[4:36])
		g := Geometry{
			VolumeSequenceNumber: binary.LittleEndian.Uint16(b[36:38]),
			PartitionNumber:      binary.LittleEndian.Uint16(b[38:40]),
		}
		switch id.IdentifierString() {
		case consts.UDF_ID_SPARABLE:
			return parseSparable(b, g)
		case consts.UDF_ID_VIRTUAL:
			return &Virtual{Geometry: g}, nil
		}
		return &Unsupported{Geometry: g, Type: mapType, Identifier: id.IdentifierString()}, nil
	}
	return &Unsupported{Type: mapType}, nil
}

func parseSparable(b []byte, g Geometry) (*Sparable, error) {
	s := &Sparable{
		Geometry:     g,
		PacketLength: binary.LittleEndian.Uint16(b[40:42]),
		TableSize:    binary.LittleEndian.Uint32(b[44:48]),
	}
	if s.PacketLength == 0 {
		return nil, fmt.Errorf("sparable map with zero packet length: %w", ErrMalformedMap)
	}
	n := int(b[42])
	if n > 4 {
		return nil, fmt.Errorf("sparable map records %d sparing tables: %w", n, ErrMalformedMap)
	}
	for i := 0; i < n; i++ {
		s.TableLocations = append(s.TableLocations, binary.LittleEndian.Uint32(b[48+4*i:]))
	}
	return s, nil
}

// MarshalType1 encodes a type 1 partition map.
func MarshalType1(volumeSequence, partitionNumber uint16) []byte {
	b := make([]byte, consts.PARTITION_MAP_TYPE_1_LENGTH)
	b[0] = consts.PARTITION_MAP_TYPE_1
	b[1] = consts.PARTITION_MAP_TYPE_1_LENGTH
	binary.LittleEndian.PutUint16(b[2:4], volumeSequence)
	binary.LittleEndian.PutUint16(b[4:6], partitionNumber)
	return b
}

// MarshalType2 encodes a type 2 partition map with the given entity identifier. For sparable
// maps the packet length and sparing table fields follow.
func MarshalType2(ident string, volumeSequence, partitionNumber uint16, s *Sparable) []byte {
	b := make([]byte, consts.PARTITION_MAP_TYPE_2_LENGTH)
	b[0] = consts.PARTITION_MAP_TYPE_2
	b[1] = consts.PARTITION_MAP_TYPE_2_LENGTH
	id := encoding.NewEntityID(ident)
	id.IdentifierSuffix[0], id.IdentifierSuffix[1] = 0x50, 0x01
	id.Put(b[4:36])
	binary.LittleEndian.PutUint16(b[36:38], volumeSequence)
	binary.LittleEndian.PutUint16(b[38:40], partitionNumber)
	if s != nil {
		binary.LittleEndian.PutUint16(b[40:42], s.PacketLength)
		b[42] = uint8(len(s.TableLocations))
		binary.LittleEndian.PutUint32(b[44:48], s.TableSize)
		for i, loc := range s.TableLocations {
			if i == 4 {
				break
			}
			binary.LittleEndian.PutUint32(b[48+4*i:], loc)
		}
	}
	return b
}
