// Package descriptor decodes the UDF volume structure: the anchor, the descriptors of the
// volume descriptor sequence and the file set descriptor. Offsets are absolute within the
// descriptor, counting the 16 byte tag.
package descriptor

import (
	"errors"
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/tag"
)

var (
	ErrTruncated         = errors.New("descriptor truncated")
	ErrUnexpectedType    = errors.New("unexpected descriptor type")
	ErrMapTableTruncated = errors.New("partition map table exceeds descriptor")
)

// standardSize is the recorded size of the fixed length descriptors.
const standardSize = 512

// VolumeDescriptor is implemented by every descriptor of the volume descriptor sequence.
type VolumeDescriptor interface {
	// TagIdentifier returns the tag identifier of the descriptor type.
	TagIdentifier() uint16
	// SequenceNumber returns the volume descriptor sequence number used to pick the prevailing
	// descriptor.
	SequenceNumber() uint32
}

// Parse decodes a validated descriptor of the volume descriptor sequence. Descriptor types
// the volume does not need are returned as *Unknown.
func Parse(d *tag.Descriptor) (VolumeDescriptor, error) {
	var (
		vd  VolumeDescriptor
		err error
	)
	switch d.Identifier() {
	case consts.TAG_IDENT_PRIMARY_VOLUME:
		vd, err = UnmarshalPrimaryVolumeDescriptor(d.Data)
	case consts.TAG_IDENT_PARTITION:
		vd, err = UnmarshalPartitionDescriptor(d.Data)
	case consts.TAG_IDENT_LOGICAL_VOLUME:
		vd, err = UnmarshalLogicalVolumeDescriptor(d.Data)
	case consts.TAG_IDENT_VOLUME_POINTER:
		vd, err = UnmarshalVolumeDescriptorPointer(d.Data)
	case consts.TAG_IDENT_TERMINATING:
		vd = &TerminatingDescriptor{}
	default:
		vd, err = unmarshalUnknown(d)
	}
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", d.Block, err)
	}
	return vd, nil
}

func need(data []byte, n int, what string) error {
	if len(data) < n {
		return fmt.Errorf("%s needs %d bytes, have %d: %w", what, n, len(data), ErrTruncated)
	}
	return nil
}

// TerminatingDescriptor ends a volume descriptor sequence.
type TerminatingDescriptor struct{}

func (*TerminatingDescriptor) TagIdentifier() uint16  { return consts.TAG_IDENT_TERMINATING }
func (*TerminatingDescriptor) SequenceNumber() uint32 { return 0 }

func (*TerminatingDescriptor) Marshal() []byte {
	return make([]byte, standardSize)
}

// Unknown holds a descriptor of the sequence that is not decoded further, such as an
// implementation use or unallocated space descriptor.
type Unknown struct {
	Identifier uint16
	Sequence   uint32
}

func unmarshalUnknown(d *tag.Descriptor) (*Unknown, error) {
	u := &Unknown{Identifier: d.Identifier()}
	if len(d.Data) >= 20 && d.Identifier() <= consts.TAG_IDENT_LOGICAL_VOLUME_INTEG {
		u.Sequence = le32(d.Data[16:20])
	}
	return u, nil
}

func (u *Unknown) TagIdentifier() uint16  { return u.Identifier }
func (u *Unknown) SequenceNumber() uint32 { return u.Sequence }
