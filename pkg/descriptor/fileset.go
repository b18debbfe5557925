package descriptor

import (
	"encoding/binary"
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/cs0"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/tag"
)

// FileSetDescriptor names a file set and locates its root directory (ECMA-167 4/14.1).
type FileSetDescriptor struct {
	RecordingDateTime       encoding.Timestamp `json:"recording_date_time"`
	InterchangeLevel        uint16             `json:"interchange_level"`
	MaxInterchangeLevel     uint16             `json:"max_interchange_level"`
	FileSetNumber           uint32             `json:"file_set_number"`
	FileSetDescriptorNumber uint32             `json:"file_set_descriptor_number"`
	// Logical Volume Identifier
	//  | Encoding: dstring[128]
	LogicalVolumeIdentifier string `json:"logical_volume_identifier"`
	// File Set Identifier
	//  | Encoding: dstring[32]
	FileSetIdentifier       string            `json:"file_set_identifier"`
	CopyrightFileIdentifier string            `json:"copyright_file_identifier"`
	AbstractFileIdentifier  string            `json:"abstract_file_identifier"`
	RootDirectoryICB        encoding.LongAD   `json:"root_directory_icb"`
	DomainIdentifier        encoding.EntityID `json:"domain_identifier"`
	NextExtent              encoding.LongAD   `json:"next_extent"`
	SystemStreamDirectory   encoding.LongAD   `json:"system_stream_directory"`
}

// ParseFileSetDescriptor decodes a validated file set descriptor.
func ParseFileSetDescriptor(d *tag.Descriptor) (*FileSetDescriptor, error) {
	if d.Identifier() != consts.TAG_IDENT_FILE_SET {
		return nil, fmt.Errorf("block %d holds tag %d, want %d: %w",
			d.Block, d.Identifier(), consts.TAG_IDENT_FILE_SET, ErrUnexpectedType)
	}
	return UnmarshalFileSetDescriptor(d.Data)
}

func UnmarshalFileSetDescriptor(data []byte) (*FileSetDescriptor, error) {
	if err := need(data, 480, "file set descriptor"); err != nil {
		return nil, err
	}
	fsd := &FileSetDescriptor{
		InterchangeLevel:        le16(data[28:30]),
		MaxInterchangeLevel:     le16(data[30:32]),
		FileSetNumber:           le32(data[40:44]),
		FileSetDescriptorNumber: le32(data[44:48]),
	}
	fsd.RecordingDateTime, _ = encoding.UnmarshalTimestamp(data[16:28])
	strs := []struct {
		dst  *string
		from int
		to   int
	}{
		{&fsd.LogicalVolumeIdentifier, 112, 240},
		{&fsd.FileSetIdentifier, 304, 336},
		{&fsd.CopyrightFileIdentifier, 336, 368},
		{&fsd.AbstractFileIdentifier, 368, 400},
	}
	for _, s := range strs {
		v, err := cs0.DecodeDString(data[s.from:s.to])
		if err != nil {
			return nil, err
		}
		*s.dst = v
	}
	fsd.RootDirectoryICB, _ = encoding.UnmarshalLongAD(data[400:416])
	fsd.DomainIdentifier, _ = encoding.UnmarshalEntityID(data[416:448])
	fsd.NextExtent, _ = encoding.UnmarshalLongAD(data[448:464])
	fsd.SystemStreamDirectory, _ = encoding.UnmarshalLongAD(data[464:480])
	return fsd, nil
}

func (fsd *FileSetDescriptor) TagIdentifier() uint16 { return consts.TAG_IDENT_FILE_SET }

func (fsd *FileSetDescriptor) Marshal() []byte {
	b := make([]byte, standardSize)
	ts := fsd.RecordingDateTime.Marshal()
	copy(b[16:28], ts[:])
	binary.LittleEndian.PutUint16(b[28:30], fsd.InterchangeLevel)
	binary.LittleEndian.PutUint16(b[30:32], fsd.MaxInterchangeLevel)
	binary.LittleEndian.PutUint32(b[32:36], 1)
	binary.LittleEndian.PutUint32(b[36:40], 1)
	binary.LittleEndian.PutUint32(b[40:44], fsd.FileSetNumber)
	binary.LittleEndian.PutUint32(b[44:48], fsd.FileSetDescriptorNumber)
	putOSTACharSpec(b[48:112])
	copy(b[112:240], cs0.EncodeDString(fsd.LogicalVolumeIdentifier, 128))
	putOSTACharSpec(b[240:304])
	copy(b[304:336], cs0.EncodeDString(fsd.FileSetIdentifier, 32))
	copy(b[336:368], cs0.EncodeDString(fsd.CopyrightFileIdentifier, 32))
	copy(b[368:400], cs0.EncodeDString(fsd.AbstractFileIdentifier, 32))
	fsd.RootDirectoryICB.Put(b[400:416])
	fsd.DomainIdentifier.Put(b[416:448])
	fsd.NextExtent.Put(b[448:464])
	fsd.SystemStreamDirectory.Put(b[464:480])
	return b
}
