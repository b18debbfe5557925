package descriptor

import (
	"encoding/binary"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/encoding"
)

// Partition access types (ECMA-167 3/10.5.7).
const (
	AccessUnspecified = iota
	AccessReadOnly
	AccessWriteOnce
	AccessRewritable
	AccessOverwritable
)

// PartitionDescriptor records the physical extent of a partition (ECMA-167 3/10.5).
type PartitionDescriptor struct {
	VolumeDescriptorSequenceNumber uint32 `json:"vds_number"`
	PartitionFlags                 uint16 `json:"partition_flags"`
	// Partition Number is what partition maps refer to.
	PartitionNumber uint16 `json:"partition_number"`
	// Partition Contents is "+NSR02" or "+NSR03" for a UDF file system.
	PartitionContents encoding.EntityID `json:"partition_contents"`
	AccessType        uint32            `json:"access_type"`
	// Partition Starting Location is the absolute block of logical block 0 of the partition.
	PartitionStartingLocation uint32            `json:"partition_starting_location"`
	PartitionLength           uint32            `json:"partition_length"`
	ImplementationIdentifier  encoding.EntityID `json:"implementation_identifier"`
}

func UnmarshalPartitionDescriptor(data []byte) (*PartitionDescriptor, error) {
	if err := need(data, 228, "partition descriptor"); err != nil {
		return nil, err
	}
	pd := &PartitionDescriptor{
		VolumeDescriptorSequenceNumber: le32(data[16:20]),
		PartitionFlags:                 le16(data[20:22]),
		PartitionNumber:                le16(data[22:24]),
		AccessType:                     le32(data[184:188]),
		PartitionStartingLocation:      le32(data[188:192]),
		PartitionLength:                le32(data[192:196]),
	}
	pd.PartitionContents, _ = encoding.UnmarshalEntityID(data[24:56])
	pd.ImplementationIdentifier, _ = encoding.UnmarshalEntityID(data[196:228])
	return pd, nil
}

func (pd *PartitionDescriptor) TagIdentifier() uint16  { return consts.TAG_IDENT_PARTITION }
func (pd *PartitionDescriptor) SequenceNumber() uint32 { return pd.VolumeDescriptorSequenceNumber }

// Allocated reports whether the partition has space allocated to it.
func (pd *PartitionDescriptor) Allocated() bool {
	return pd.PartitionFlags&1 != 0
}

func (pd *PartitionDescriptor) Marshal() []byte {
	b := make([]byte, standardSize)
	binary.LittleEndian.PutUint32(b[16:20], pd.VolumeDescriptorSequenceNumber)
	binary.LittleEndian.PutUint16(b[20:22], pd.PartitionFlags)
	binary.LittleEndian.PutUint16(b[22:24], pd.PartitionNumber)
	pd.PartitionContents.Put(b[24:56])
	binary.LittleEndian.PutUint32(b[184:188], pd.AccessType)
	binary.LittleEndian.PutUint32(b[188:192], pd.PartitionStartingLocation)
	binary.LittleEndian.PutUint32(b[192:196], pd.PartitionLength)
	pd.ImplementationIdentifier.Put(b[196:228])
	return b
}
