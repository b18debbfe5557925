package descriptor

import (
	"encoding/binary"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/encoding"
)

func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func le16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }

// AnchorVolumeDescriptorPointer locates the main and reserve volume descriptor sequences
// (ECMA-167 3/10.2).
type AnchorVolumeDescriptorPointer struct {
	// Extent of the main volume descriptor sequence.
	MainVolumeDescriptorSequence encoding.ExtentAD `json:"main_vds"`
	// Extent of the reserve copy, read when the main sequence is unusable.
	ReserveVolumeDescriptorSequence encoding.ExtentAD `json:"reserve_vds"`
}

func UnmarshalAnchorVolumeDescriptorPointer(data []byte) (*AnchorVolumeDescriptorPointer, error) {
	if err := need(data, 32, "anchor volume descriptor pointer"); err != nil {
		return nil, err
	}
	main, _ := encoding.UnmarshalExtentAD(data[16:24])
	reserve, _ := encoding.UnmarshalExtentAD(data[24:32])
	return &AnchorVolumeDescriptorPointer{
		MainVolumeDescriptorSequence:    main,
		ReserveVolumeDescriptorSequence: reserve,
	}, nil
}

func (a *AnchorVolumeDescriptorPointer) TagIdentifier() uint16 { return consts.TAG_IDENT_ANCHOR_VOLUME }

func (a *AnchorVolumeDescriptorPointer) Marshal() []byte {
	b := make([]byte, standardSize)
	a.MainVolumeDescriptorSequence.Put(b[16:24])
	a.ReserveVolumeDescriptorSequence.Put(b[24:32])
	return b
}

// VolumeDescriptorPointer continues a volume descriptor sequence in another extent
// (ECMA-167 3/10.3).
type VolumeDescriptorPointer struct {
	VolumeDescriptorSequenceNumber uint32            `json:"vds_number"`
	NextVolumeDescriptorSequence   encoding.ExtentAD `json:"next_vds"`
}

func UnmarshalVolumeDescriptorPointer(data []byte) (*VolumeDescriptorPointer, error) {
	if err := need(data, 28, "volume descriptor pointer"); err != nil {
		return nil, err
	}
	next, _ := encoding.UnmarshalExtentAD(data[20:28])
	return &VolumeDescriptorPointer{
		VolumeDescriptorSequenceNumber: le32(data[16:20]),
		NextVolumeDescriptorSequence:   next,
	}, nil
}

func (p *VolumeDescriptorPointer) TagIdentifier() uint16  { return consts.TAG_IDENT_VOLUME_POINTER }
func (p *VolumeDescriptorPointer) SequenceNumber() uint32 { return p.VolumeDescriptorSequenceNumber }

func (p *VolumeDescriptorPointer) Marshal() []byte {
	b := make([]byte, standardSize)
	binary.LittleEndian.PutUint32(b[16:20], p.VolumeDescriptorSequenceNumber)
	p.NextVolumeDescriptorSequence.Put(b[20:28])
	return b
}
