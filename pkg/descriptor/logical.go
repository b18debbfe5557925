package descriptor

import (
	"encoding/binary"
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/cs0"
	"github.com/bgrewell/udf-kit/pkg/encoding"
)

// lvdMapTableOffset is where the partition maps start in a logical volume descriptor.
const lvdMapTableOffset = 440

// LogicalVolumeDescriptor describes the logical volume and carries its partition maps
// (ECMA-167 3/10.6).
type LogicalVolumeDescriptor struct {
	VolumeDescriptorSequenceNumber uint32 `json:"vds_number"`
	// Logical Volume Identifier
	//  | Encoding: dstring[128]
	LogicalVolumeIdentifier string `json:"logical_volume_identifier"`
	// Logical Block Size in bytes. UDF requires it to equal the sector size.
	LogicalBlockSize uint32            `json:"logical_block_size"`
	DomainIdentifier encoding.EntityID `json:"domain_identifier"`
	// File Set Descriptor location, recorded in the contents use field as a long_ad.
	FileSetDescriptor        encoding.LongAD   `json:"file_set_descriptor"`
	NumberOfPartitionMaps    uint32            `json:"number_of_partition_maps"`
	ImplementationIdentifier encoding.EntityID `json:"implementation_identifier"`
	IntegritySequenceExtent  encoding.ExtentAD `json:"integrity_sequence_extent"`
	// Partition Maps holds the raw map table, exactly map table length bytes.
	PartitionMaps []byte `json:"partition_maps"`
}

func UnmarshalLogicalVolumeDescriptor(data []byte) (*LogicalVolumeDescriptor, error) {
	if err := need(data, lvdMapTableOffset, "logical volume descriptor"); err != nil {
		return nil, err
	}
	mapTableLength := le32(data[264:268])
	if uint64(lvdMapTableOffset)+uint64(mapTableLength) > uint64(len(data)) {
		return nil, fmt.Errorf("map table length %d: %w", mapTableLength, ErrMapTableTruncated)
	}
	lvd := &LogicalVolumeDescriptor{
		VolumeDescriptorSequenceNumber: le32(data[16:20]),
		LogicalBlockSize:               le32(data[212:216]),
		NumberOfPartitionMaps:          le32(data[268:272]),
		PartitionMaps:                  append([]byte(nil), data[lvdMapTableOffset:lvdMapTableOffset+mapTableLength]...),
	}
	var err error
	if lvd.LogicalVolumeIdentifier, err = cs0.DecodeDString(data[84:212]); err != nil {
		return nil, err
	}
	lvd.DomainIdentifier, _ = encoding.UnmarshalEntityID(data[216:248])
	lvd.FileSetDescriptor, _ = encoding.UnmarshalLongAD(data[248:264])
	lvd.ImplementationIdentifier, _ = encoding.UnmarshalEntityID(data[272:304])
	lvd.IntegritySequenceExtent, _ = encoding.UnmarshalExtentAD(data[432:440])
	return lvd, nil
}

func (lvd *LogicalVolumeDescriptor) TagIdentifier() uint16 { return consts.TAG_IDENT_LOGICAL_VOLUME }
func (lvd *LogicalVolumeDescriptor) SequenceNumber() uint32 {
	return lvd.VolumeDescriptorSequenceNumber
}

// Marshal encodes the descriptor. The result is the recorded length: the fixed part plus the
// map table.
func (lvd *LogicalVolumeDescriptor) Marshal() []byte {
	b := make([]byte, lvdMapTableOffset+len(lvd.PartitionMaps))
	binary.LittleEndian.PutUint32(b[16:20], lvd.VolumeDescriptorSequenceNumber)
	putOSTACharSpec(b[20:84])
	copy(b[84:212], cs0.EncodeDString(lvd.LogicalVolumeIdentifier, 128))
	binary.LittleEndian.PutUint32(b[212:216], lvd.LogicalBlockSize)
	lvd.DomainIdentifier.Put(b[216:248])
	lvd.FileSetDescriptor.Put(b[248:264])
	binary.LittleEndian.PutUint32(b[264:268], uint32(len(lvd.PartitionMaps)))
	binary.LittleEndian.PutUint32(b[268:272], lvd.NumberOfPartitionMaps)
	lvd.ImplementationIdentifier.Put(b[272:304])
	lvd.IntegritySequenceExtent.Put(b[432:440])
	copy(b[lvdMapTableOffset:], lvd.PartitionMaps)
	return b
}
