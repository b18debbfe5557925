package descriptor

import (
	"testing"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/tag"
	"github.com/stretchr/testify/require"
)

// sealed places body in a sector, seals it at block and verifies it again.
func sealed(t *testing.T, ident uint16, block uint32, body []byte) *tag.Descriptor {
	t.Helper()
	buf := make([]byte, consts.UDF_SECTOR_SIZE)
	copy(buf, body)
	require.NoError(t, tag.Seal(buf, ident, 2, 1, block, uint16(len(body)-consts.UDF_TAG_SIZE)))
	d, err := tag.Verify(buf, block, 0, tag.StrictStrictness(), nil)
	require.NoError(t, err)
	return d
}

func TestAnchorRoundTrip(t *testing.T) {
	avdp := &AnchorVolumeDescriptorPointer{
		MainVolumeDescriptorSequence:    encoding.ExtentAD{Length: 16 * 2048, Location: 32},
		ReserveVolumeDescriptorSequence: encoding.ExtentAD{Length: 16 * 2048, Location: 48},
	}
	d := sealed(t, consts.TAG_IDENT_ANCHOR_VOLUME, 256, avdp.Marshal())

	got, err := UnmarshalAnchorVolumeDescriptorPointer(d.Data)
	require.NoError(t, err)
	require.Equal(t, avdp, got)

	_, err = UnmarshalAnchorVolumeDescriptorPointer(d.Data[:31])
	require.ErrorIs(t, err, ErrTruncated)
}

func TestParsePrimary(t *testing.T) {
	pvd := &PrimaryVolumeDescriptor{
		VolumeDescriptorSequenceNumber: 1,
		VolumeIdentifier:               "BACKUP_2004",
		VolumeSetIdentifier:            "0123456789ABCDEF",
		VolumeSequenceNumber:           1,
		MaxVolumeSequenceNumber:        1,
		InterchangeLevel:               2,
		MaxInterchangeLevel:            2,
		RecordingDateTime:              encoding.NewTimestamp(2004, 6, 15, 12, 0, 0, 60),
		ImplementationIdentifier:       encoding.NewEntityID("*udf-kit"),
	}
	vd, err := Parse(sealed(t, consts.TAG_IDENT_PRIMARY_VOLUME, 32, pvd.Marshal()))
	require.NoError(t, err)

	got, ok := vd.(*PrimaryVolumeDescriptor)
	require.True(t, ok)
	require.Equal(t, "BACKUP_2004", got.VolumeIdentifier)
	require.Equal(t, "0123456789ABCDEF", got.VolumeSetIdentifier)
	require.Equal(t, pvd.RecordingDateTime, got.RecordingDateTime)
	require.Equal(t, "*udf-kit", got.ImplementationIdentifier.IdentifierString())
	require.Equal(t, uint32(1), got.SequenceNumber())
}

func TestParsePartition(t *testing.T) {
	pd := &PartitionDescriptor{
		VolumeDescriptorSequenceNumber: 2,
		PartitionFlags:                 1,
		PartitionNumber:                0,
		PartitionContents:              encoding.NewEntityID("+NSR02"),
		AccessType:                     AccessReadOnly,
		PartitionStartingLocation:      272,
		PartitionLength:                4096,
	}
	vd, err := Parse(sealed(t, consts.TAG_IDENT_PARTITION, 33, pd.Marshal()))
	require.NoError(t, err)
	require.Equal(t, pd, vd)
	require.True(t, vd.(*PartitionDescriptor).Allocated())
}

func TestParseLogical(t *testing.T) {
	maps := []byte{1, 6, 1, 0, 0, 0}
	lvd := &LogicalVolumeDescriptor{
		VolumeDescriptorSequenceNumber: 3,
		LogicalVolumeIdentifier:        "BACKUP_2004",
		LogicalBlockSize:               2048,
		DomainIdentifier:               encoding.NewEntityID(consts.UDF_ID_COMPLIANT),
		FileSetDescriptor: encoding.LongAD{
			Length:   2048,
			Location: encoding.LBAddr{LogicalBlockNumber: 0},
		},
		NumberOfPartitionMaps: 1,
		PartitionMaps:         maps,
	}
	body := lvd.Marshal()
	require.Len(t, body, 446)

	vd, err := Parse(sealed(t, consts.TAG_IDENT_LOGICAL_VOLUME, 34, body))
	require.NoError(t, err)
	got := vd.(*LogicalVolumeDescriptor)
	require.Equal(t, lvd, got)
	require.Equal(t, consts.UDF_ID_COMPLIANT, got.DomainIdentifier.IdentifierString())

	t.Run("map table overruns sector", func(t *testing.T) {
		data := append([]byte(nil), body...)
		data[264] = 0xFF
		data[265] = 0xFF
		_, err := UnmarshalLogicalVolumeDescriptor(data)
		require.ErrorIs(t, err, ErrMapTableTruncated)
	})
}

func TestParseFileSet(t *testing.T) {
	fsd := &FileSetDescriptor{
		RecordingDateTime:       encoding.NewTimestamp(2010, 1, 2, 3, 4, 5, 0),
		InterchangeLevel:        3,
		MaxInterchangeLevel:     3,
		LogicalVolumeIdentifier: "BACKUP_2004",
		FileSetIdentifier:       "FILESET",
		RootDirectoryICB: encoding.LongAD{
			Length:   2048,
			Location: encoding.LBAddr{LogicalBlockNumber: 2},
		},
		DomainIdentifier: encoding.NewEntityID(consts.UDF_ID_COMPLIANT),
	}
	d := sealed(t, consts.TAG_IDENT_FILE_SET, 272, fsd.Marshal())

	got, err := ParseFileSetDescriptor(d)
	require.NoError(t, err)
	require.Equal(t, fsd, got)

	_, err = ParseFileSetDescriptor(sealed(t, consts.TAG_IDENT_TERMINATING, 5, make([]byte, 512)))
	require.ErrorIs(t, err, ErrUnexpectedType)
}

func TestParseOtherDescriptors(t *testing.T) {
	vd, err := Parse(sealed(t, consts.TAG_IDENT_TERMINATING, 40, (&TerminatingDescriptor{}).Marshal()))
	require.NoError(t, err)
	require.IsType(t, &TerminatingDescriptor{}, vd)

	ptr := &VolumeDescriptorPointer{
		VolumeDescriptorSequenceNumber: 4,
		NextVolumeDescriptorSequence:   encoding.ExtentAD{Length: 4096, Location: 600},
	}
	vd, err = Parse(sealed(t, consts.TAG_IDENT_VOLUME_POINTER, 41, ptr.Marshal()))
	require.NoError(t, err)
	require.Equal(t, ptr, vd)

	body := make([]byte, 512)
	body[16] = 9
	vd, err = Parse(sealed(t, consts.TAG_IDENT_IMPLEMENTATION_USE, 42, body))
	require.NoError(t, err)
	require.Equal(t, &Unknown{Identifier: consts.TAG_IDENT_IMPLEMENTATION_USE, Sequence: 9}, vd)
}

func TestVolumeDescriptorSetPrevailing(t *testing.T) {
	s := NewVolumeDescriptorSet()
	require.False(t, s.Complete())

	require.True(t, s.Add(&PrimaryVolumeDescriptor{VolumeDescriptorSequenceNumber: 5, VolumeIdentifier: "NEW"}))
	require.False(t, s.Add(&PrimaryVolumeDescriptor{VolumeDescriptorSequenceNumber: 1, VolumeIdentifier: "OLD"}))
	require.Equal(t, "NEW", s.Primary.VolumeIdentifier)

	require.True(t, s.Add(&PartitionDescriptor{VolumeDescriptorSequenceNumber: 2, PartitionNumber: 0, PartitionLength: 10}))
	require.True(t, s.Add(&PartitionDescriptor{VolumeDescriptorSequenceNumber: 3, PartitionNumber: 0, PartitionLength: 20}))
	require.True(t, s.Add(&PartitionDescriptor{VolumeDescriptorSequenceNumber: 1, PartitionNumber: 1, PartitionLength: 30}))
	pd, ok := s.Partition(0)
	require.True(t, ok)
	require.Equal(t, uint32(20), pd.PartitionLength)
	require.Len(t, s.Partitions, 2)

	require.True(t, s.Add(&LogicalVolumeDescriptor{VolumeDescriptorSequenceNumber: 4}))
	require.True(t, s.Add(&TerminatingDescriptor{}))
	require.False(t, s.Add(&Unknown{Identifier: 7}))
	require.True(t, s.Terminated)
	require.True(t, s.Complete())
}
