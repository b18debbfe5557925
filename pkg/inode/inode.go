package inode

import (
	"os"
	"slices"
	"time"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/tag"
)

// Config carries the volume level settings Materialize needs.
type Config struct {
	// DefaultUID and DefaultGID replace unset or out of range owners.
	DefaultUID uint32
	DefaultGID uint32
	// VolumeTime replaces timestamps that cannot be decoded, normally the recording time of
	// the primary volume descriptor.
	VolumeTime time.Time
	// DiskPermissions uses the recorded permission bits instead of the per type templates.
	DiskPermissions bool
	// PartitionReference is the partition the entry was read from. Short allocation
	// descriptors point into it.
	PartitionReference uint16
}

// Extent is one decoded allocation descriptor.
type Extent struct {
	Location encoding.LBAddr     `json:"location"`
	Length   uint32              `json:"length"`
	Type     encoding.ExtentType `json:"type"`
}

// Record is an in-memory inode. It holds no reference to the descriptor it came from.
type Record struct {
	// Block is the absolute block the entry was read from.
	Block    uint32      `json:"block"`
	FileType uint8       `json:"file_type"`
	Mode     os.FileMode `json:"mode"`
	UID      uint32      `json:"uid"`
	GID      uint32      `json:"gid"`
	Links    uint16      `json:"links"`
	Size     uint64      `json:"size"`
	// BlocksRecorded counts the logical blocks allocated to the file.
	BlocksRecorded uint64    `json:"blocks_recorded"`
	AccessTime     time.Time `json:"access_time"`
	ModTime        time.Time `json:"mod_time"`
	AttrTime       time.Time `json:"attr_time"`
	CreateTime     time.Time `json:"create_time"`
	UniqueID       uint64    `json:"unique_id"`
	AllocationType uint16    `json:"allocation_type"`
	Extents        []Extent  `json:"extents"`
	// InlineData holds the file contents when they are recorded inside the entry.
	InlineData         []byte `json:"inline_data,omitempty"`
	ExtendedAttributes []byte `json:"extended_attributes,omitempty"`
	// Openable is false for file types that cannot be read as a file or directory.
	Openable bool `json:"openable"`
	Extended bool `json:"extended"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	c.Extents = slices.Clone(r.Extents)
	c.InlineData = slices.Clone(r.InlineData)
	c.ExtendedAttributes = slices.Clone(r.ExtendedAttributes)
	return &c
}

func (r *Record) IsDir() bool {
	return r.Mode.IsDir()
}

// Materialize builds an inode record from a validated File Entry or Extended File Entry.
//
// Owners equal to the unset value or beyond 16 bits become the configured defaults. An
// unrecognized file type still yields a record, with no type bits and Openable false. A
// timestamp that fails to decode is replaced by cfg.VolumeTime.
func Materialize(d *tag.Descriptor, cfg Config) (*Record, error) {
	fe, err := ParseFileEntry(d)
	if err != nil {
		return nil, err
	}
	return FromEntry(fe, d.Block, cfg), nil
}

// FromEntry builds the record for an already parsed entry read from block.
func FromEntry(fe *FileEntry, block uint32, cfg Config) *Record {
	r := &Record{
		Block:              block,
		FileType:           fe.ICBTag.FileType,
		UID:                convertID(fe.UID, cfg.DefaultUID),
		GID:                convertID(fe.GID, cfg.DefaultGID),
		Links:              fe.FileLinkCount,
		Size:               fe.InformationLength,
		BlocksRecorded:     fe.LogicalBlocksRecorded,
		AccessTime:         decodeTime(fe.AccessTime, cfg.VolumeTime),
		ModTime:            decodeTime(fe.ModificationTime, cfg.VolumeTime),
		AttrTime:           decodeTime(fe.AttributeTime, cfg.VolumeTime),
		CreateTime:         decodeTime(fe.CreationTime, cfg.VolumeTime),
		UniqueID:           fe.UniqueID,
		AllocationType:     fe.ICBTag.AllocationType(),
		ExtendedAttributes: fe.ExtendedAttributes,
		Extended:           fe.Extended,
	}

	typeBits, perm, openable := modeForType(fe.ICBTag.FileType)
	if cfg.DiskPermissions && openable {
		perm = convertPermissions(fe.Permissions, fe.ICBTag.Flags)
	}
	r.Mode = typeBits | perm
	r.Openable = openable

	switch r.AllocationType {
	case consts.ICB_FLAG_AD_IN_ICB:
		r.InlineData = fe.AllocationDescriptors
	case consts.ICB_FLAG_AD_SHORT:
		r.Extents = decodeShort(fe.AllocationDescriptors, cfg.PartitionReference)
	case consts.ICB_FLAG_AD_LONG:
		r.Extents = decodeLong(fe.AllocationDescriptors)
	}
	return r
}

func convertID(id, def uint32) uint32 {
	if id == consts.UDF_ID_UNSET || id > consts.UDF_ID_MAX {
		return def
	}
	return id
}

func decodeTime(ts encoding.Timestamp, fallback time.Time) time.Time {
	t, err := ts.ToTime()
	if err != nil {
		return fallback
	}
	return t
}

// modeForType returns the type bits and permission template for an ICB file type.
func modeForType(fileType uint8) (os.FileMode, os.FileMode, bool) {
	switch fileType {
	case consts.FILE_TYPE_DIRECTORY:
		return os.ModeDir, 0o555, true
	case consts.FILE_TYPE_REGULAR, consts.FILE_TYPE_UNSPECIFIED, consts.FILE_TYPE_REALTIME,
		consts.FILE_TYPE_VAT20, consts.FILE_TYPE_METADATA, consts.FILE_TYPE_METADATA_MIRROR,
		consts.FILE_TYPE_METADATA_BITMAP:
		return 0, 0o444, true
	case consts.FILE_TYPE_SYMLINK:
		return os.ModeSymlink, 0o777, true
	case consts.FILE_TYPE_BLOCK_DEVICE:
		return os.ModeDevice, 0o444, true
	case consts.FILE_TYPE_CHAR_DEVICE:
		return os.ModeDevice | os.ModeCharDevice, 0o444, true
	case consts.FILE_TYPE_FIFO:
		return os.ModeNamedPipe, 0o444, true
	case consts.FILE_TYPE_SOCKET:
		return os.ModeSocket, 0o444, true
	}
	return 0, 0, false
}

// convertPermissions maps the recorded permissions (other, group and owner in five bit
// groups of execute, write, read, change attribute and delete) onto rwx bits.
func convertPermissions(p uint32, flags uint16) os.FileMode {
	mode := os.FileMode(p&0o7 | (p>>2)&0o70 | (p>>4)&0o700)
	if flags&consts.ICB_FLAG_SETUID != 0 {
		mode |= os.ModeSetuid
	}
	if flags&consts.ICB_FLAG_SETGID != 0 {
		mode |= os.ModeSetgid
	}
	if flags&consts.ICB_FLAG_STICKY != 0 {
		mode |= os.ModeSticky
	}
	return mode
}

// decodeShort decodes short allocation descriptors up to the first zero length one.
func decodeShort(b []byte, ref uint16) []Extent {
	var out []Extent
	for off := 0; off+consts.SHORT_AD_SIZE <= len(b); off += consts.SHORT_AD_SIZE {
		ad, _ := encoding.UnmarshalShortAD(b[off:])
		if ad.Length == 0 {
			break
		}
		out = append(out, Extent{
			Location: encoding.LBAddr{LogicalBlockNumber: ad.Position, PartitionReferenceNumber: ref},
			Length:   ad.Length,
			Type:     ad.Type,
		})
	}
	return out
}

func decodeLong(b []byte) []Extent {
	var out []Extent
	for off := 0; off+consts.LONG_AD_SIZE <= len(b); off += consts.LONG_AD_SIZE {
		ad, _ := encoding.UnmarshalLongAD(b[off:])
		if ad.Length == 0 {
			break
		}
		out = append(out, Extent{Location: ad.Location, Length: ad.Length, Type: ad.Type})
	}
	return out
}
