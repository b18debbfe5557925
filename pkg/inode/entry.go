// Package inode decodes File Entry descriptors and materializes the inode records built from
// them.
package inode

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/tag"
)

var (
	ErrNotAFileEntry  = errors.New("not a file entry")
	ErrMalformedEntry = errors.New("malformed file entry")
)

// ICBTag is the ICB tag embedded in every file entry (ECMA-167 4/14.6).
type ICBTag struct {
	PriorRecordedDirectEntries uint32
	StrategyType               uint16
	StrategyParameter          uint16
	MaxEntries                 uint16
	FileType                   uint8
	ParentICBLocation          encoding.LBAddr
	Flags                      uint16
}

func unmarshalICBTag(b []byte) ICBTag {
	parent, _ := encoding.UnmarshalLBAddr(b[12:18])
	return ICBTag{
		PriorRecordedDirectEntries: binary.LittleEndian.Uint32(b[0:4]),
		StrategyType:               binary.LittleEndian.Uint16(b[4:6]),
		StrategyParameter:          binary.LittleEndian.Uint16(b[6:8]),
		MaxEntries:                 binary.LittleEndian.Uint16(b[8:10]),
		FileType:                   b[11],
		ParentICBLocation:          parent,
		Flags:                      binary.LittleEndian.Uint16(b[18:20]),
	}
}

func (t ICBTag) put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], t.PriorRecordedDirectEntries)
	binary.LittleEndian.PutUint16(b[4:6], t.StrategyType)
	binary.LittleEndian.PutUint16(b[6:8], t.StrategyParameter)
	binary.LittleEndian.PutUint16(b[8:10], t.MaxEntries)
	b[11] = t.FileType
	t.ParentICBLocation.Put(b[12:18])
	binary.LittleEndian.PutUint16(b[18:20], t.Flags)
}

// AllocationType returns the allocation descriptor form selected by the flags.
func (t ICBTag) AllocationType() uint16 {
	return t.Flags & consts.ICB_FLAG_ALLOC_MASK
}

// FileEntry is a decoded File Entry (ECMA-167 4/14.9) or Extended File Entry (4/14.17).
// The trailing areas are copies bounded by their recorded lengths.
type FileEntry struct {
	Extended              bool
	ICBTag                ICBTag
	UID                   uint32
	GID                   uint32
	Permissions           uint32
	FileLinkCount         uint16
	InformationLength     uint64
	ObjectSize            uint64
	LogicalBlocksRecorded uint64
	AccessTime            encoding.Timestamp
	ModificationTime      encoding.Timestamp
	CreationTime          encoding.Timestamp
	AttributeTime         encoding.Timestamp
	Checkpoint            uint32
	ImplementationID      encoding.EntityID
	UniqueID              uint64

	ExtendedAttributes    []byte
	AllocationDescriptors []byte
}

// ParseFileEntry decodes a validated file entry descriptor.
func ParseFileEntry(d *tag.Descriptor) (*FileEntry, error) {
	switch d.Identifier() {
	case consts.TAG_IDENT_FILE_ENTRY:
		return unmarshalFileEntry(d.Data)
	case consts.TAG_IDENT_EXTENDED_FILE_ENTRY:
		return unmarshalExtendedFileEntry(d.Data)
	}
	return nil, fmt.Errorf("block %d holds tag %d: %w", d.Block, d.Identifier(), ErrNotAFileEntry)
}

func unmarshalFileEntry(data []byte) (*FileEntry, error) {
	if len(data) < consts.FILE_ENTRY_BASE_SIZE {
		return nil, fmt.Errorf("%d bytes: %w", len(data), ErrMalformedEntry)
	}
	fe := &FileEntry{
		ICBTag:                unmarshalICBTag(data[16:36]),
		UID:                   binary.LittleEndian.Uint32(data[36:40]),
		GID:                   binary.LittleEndian.Uint32(data[40:44]),
		Permissions:           binary.LittleEndian.Uint32(data[44:48]),
		FileLinkCount:         binary.LittleEndian.Uint16(data[48:50]),
		InformationLength:     binary.LittleEndian.Uint64(data[56:64]),
		LogicalBlocksRecorded: binary.LittleEndian.Uint64(data[64:72]),
		Checkpoint:            binary.LittleEndian.Uint32(data[108:112]),
		UniqueID:              binary.LittleEndian.Uint64(data[160:168]),
	}
	fe.ObjectSize = fe.InformationLength
	fe.AccessTime, _ = encoding.UnmarshalTimestamp(data[72:84])
	fe.ModificationTime, _ = encoding.UnmarshalTimestamp(data[84:96])
	fe.AttributeTime, _ = encoding.UnmarshalTimestamp(data[96:108])
	fe.CreationTime = fe.ModificationTime
	fe.ImplementationID, _ = encoding.UnmarshalEntityID(data[128:160])
	if err := fe.trailing(data, 168, consts.FILE_ENTRY_BASE_SIZE); err != nil {
		return nil, err
	}
	return fe, nil
}

func unmarshalExtendedFileEntry(data []byte) (*FileEntry, error) {
	if len(data) < consts.EXTENDED_FILE_ENTRY_BASE_SIZE {
		return nil, fmt.Errorf("%d bytes: %w", len(data), ErrMalformedEntry)
	}
	fe := &FileEntry{
		Extended:              true,
		ICBTag:                unmarshalICBTag(data[16:36]),
		UID:                   binary.LittleEndian.Uint32(data[36:40]),
		GID:                   binary.LittleEndian.Uint32(data[40:44]),
		Permissions:           binary.LittleEndian.Uint32(data[44:48]),
		FileLinkCount:         binary.LittleEndian.Uint16(data[48:50]),
		InformationLength:     binary.LittleEndian.Uint64(data[56:64]),
		ObjectSize:            binary.LittleEndian.Uint64(data[64:72]),
		LogicalBlocksRecorded: binary.LittleEndian.Uint64(data[72:80]),
		Checkpoint:            binary.LittleEndian.Uint32(data[128:132]),
		UniqueID:              binary.LittleEndian.Uint64(data[200:208]),
	}
	fe.AccessTime, _ = encoding.UnmarshalTimestamp(data[80:92])
	fe.ModificationTime, _ = encoding.UnmarshalTimestamp(data[92:104])
	fe.CreationTime, _ = encoding.UnmarshalTimestamp(data[104:116])
	fe.AttributeTime, _ = encoding.UnmarshalTimestamp(data[116:128])
	fe.ImplementationID, _ = encoding.UnmarshalEntityID(data[168:200])
	if err := fe.trailing(data, 208, consts.EXTENDED_FILE_ENTRY_BASE_SIZE); err != nil {
		return nil, err
	}
	return fe, nil
}

// trailing copies the extended attribute and allocation descriptor areas. lengths is the
// offset of the two length fields, base where the areas start.
func (fe *FileEntry) trailing(data []byte, lengths, base int) error {
	lenEA := uint64(binary.LittleEndian.Uint32(data[lengths : lengths+4]))
	lenAD := uint64(binary.LittleEndian.Uint32(data[lengths+4 : lengths+8]))
	if uint64(base)+lenEA+lenAD > uint64(len(data)) {
		return fmt.Errorf("extended attributes (%d) and allocation descriptors (%d) overrun %d byte descriptor: %w",
			lenEA, lenAD, len(data), ErrMalformedEntry)
	}
	ea := uint64(base) + lenEA
	fe.ExtendedAttributes = append([]byte(nil), data[base:ea]...)
	fe.AllocationDescriptors = append([]byte(nil), data[ea:ea+lenAD]...)
	return nil
}

// Marshal encodes the entry as a File Entry, or an Extended File Entry when Extended is set.
// The tag is left zero for the caller to seal.
func (fe *FileEntry) Marshal() []byte {
	base, lengths := consts.FILE_ENTRY_BASE_SIZE, 168
	if fe.Extended {
		base, lengths = consts.EXTENDED_FILE_ENTRY_BASE_SIZE, 208
	}
	b := make([]byte, base+len(fe.ExtendedAttributes)+len(fe.AllocationDescriptors))
	fe.ICBTag.put(b[16:36])
	binary.LittleEndian.PutUint32(b[36:40], fe.UID)
	binary.LittleEndian.PutUint32(b[40:44], fe.GID)
	binary.LittleEndian.PutUint32(b[44:48], fe.Permissions)
	binary.LittleEndian.PutUint16(b[48:50], fe.FileLinkCount)
	binary.LittleEndian.PutUint64(b[56:64], fe.InformationLength)
	putTime := func(off int, ts encoding.Timestamp) {
		raw := ts.Marshal()
		copy(b[off:off+encoding.TimestampSize], raw[:])
	}
	if fe.Extended {
		binary.LittleEndian.PutUint64(b[64:72], fe.ObjectSize)
		binary.LittleEndian.PutUint64(b[72:80], fe.LogicalBlocksRecorded)
		putTime(80, fe.AccessTime)
		putTime(92, fe.ModificationTime)
		putTime(104, fe.CreationTime)
		putTime(116, fe.AttributeTime)
		binary.LittleEndian.PutUint32(b[128:132], fe.Checkpoint)
		fe.ImplementationID.Put(b[168:200])
		binary.LittleEndian.PutUint64(b[200:208], fe.UniqueID)
	} else {
		binary.LittleEndian.PutUint64(b[64:72], fe.LogicalBlocksRecorded)
		putTime(72, fe.AccessTime)
		putTime(84, fe.ModificationTime)
		putTime(96, fe.AttributeTime)
		binary.LittleEndian.PutUint32(b[108:112], fe.Checkpoint)
		fe.ImplementationID.Put(b[128:160])
		binary.LittleEndian.PutUint64(b[160:168], fe.UniqueID)
	}
	binary.LittleEndian.PutUint32(b[lengths:lengths+4], uint32(len(fe.ExtendedAttributes)))
	binary.LittleEndian.PutUint32(b[lengths+4:lengths+8], uint32(len(fe.AllocationDescriptors)))
	copy(b[base:], fe.ExtendedAttributes)
	copy(b[base+len(fe.ExtendedAttributes):], fe.AllocationDescriptors)
	return b
}

// TagIdentifier returns the tag identifier the entry is recorded under.
func (fe *FileEntry) TagIdentifier() uint16 {
	if fe.Extended {
		return consts.TAG_IDENT_EXTENDED_FILE_ENTRY
	}
	return consts.TAG_IDENT_FILE_ENTRY
}
