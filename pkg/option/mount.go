package option

import (
	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/tag"
)

// ProgressCallback is called while a tool walks the sectors of an image.
// Parameters:
// - block: The block just examined.
// - total: The number of blocks to examine.
// - found: The number of valid descriptors found so far.
type ProgressCallback func(block, total uint32, found int)

// MapSpec describes a partition map supplied by configuration instead of being read from the
// logical volume descriptor.
type MapSpec struct {
	// Kind is one of "type1", "sparable" or "virtual". An empty kind means "type1".
	Kind                 string `yaml:"kind"`
	PartitionNumber      uint16 `yaml:"partition_number"`
	VolumeSequenceNumber uint16 `yaml:"volume_sequence_number"`
	// Root and Length override the partition descriptor geometry when Length is non-zero.
	Root   uint32 `yaml:"root"`
	Length uint32 `yaml:"length"`
	// Sparable only.
	PacketLength     uint16   `yaml:"packet_length"`
	SparingTables    []uint32 `yaml:"sparing_tables"`
	SparingTableSize uint32   `yaml:"sparing_table_size"`
}

type MountOptions struct {
	BlockSize       int
	Strictness      tag.Strictness
	DefaultUID      uint32
	DefaultGID      uint32
	PartitionMaps   []MapSpec
	VATBlock        uint32
	VATCacheSlots   int
	DiskPermissions bool
	InodeCacheSize  int
	CheckVRS        bool
	Progress        ProgressCallback
	Logger          *logging.Logger
}

type MountOption func(*MountOptions)

// Defaults returns the options a mount starts from.
func Defaults() *MountOptions {
	return &MountOptions{
		Strictness:    tag.DefaultStrictness(),
		DefaultUID:    consts.DEFAULT_UID,
		DefaultGID:    consts.DEFAULT_GID,
		VATCacheSlots: consts.DEFAULT_VAT_CACHE_SLOTS,
		CheckVRS:      true,
		Logger:        logging.DefaultLogger(),
	}
}

// Apply returns the defaults with opts applied in order.
func Apply(opts ...MountOption) *MountOptions {
	o := Defaults()
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = logging.DefaultLogger()
	}
	return o
}

// WithBlockSize sets the logical block size the volume must be recorded with. Zero accepts
// whatever the source reports.
func WithBlockSize(size int) MountOption {
	return func(o *MountOptions) {
		o.BlockSize = size
	}
}

func WithStrictness(s tag.Strictness) MountOption {
	return func(o *MountOptions) {
		o.Strictness = s
	}
}

// WithDefaultOwner sets the uid and gid reported for files whose owner is unset or does not
// fit in 16 bits.
func WithDefaultOwner(uid, gid uint32) MountOption {
	return func(o *MountOptions) {
		o.DefaultUID = uid
		o.DefaultGID = gid
	}
}

// WithPartitionMaps replaces the partition maps recorded in the logical volume descriptor.
func WithPartitionMaps(maps ...MapSpec) MountOption {
	return func(o *MountOptions) {
		o.PartitionMaps = append([]MapSpec(nil), maps...)
	}
}

// WithVATBlock sets the absolute block of the VAT file entry. Without it the VAT is searched
// for backwards from the last block of the source.
func WithVATBlock(block uint32) MountOption {
	return func(o *MountOptions) {
		o.VATBlock = block
	}
}

func WithVATCacheSlots(slots int) MountOption {
	return func(o *MountOptions) {
		o.VATCacheSlots = slots
	}
}

func WithDiskPermissions(enabled bool) MountOption {
	return func(o *MountOptions) {
		o.DiskPermissions = enabled
	}
}

// WithInodeCache keeps the last size materialized inodes. Zero disables the cache.
func WithInodeCache(size int) MountOption {
	return func(o *MountOptions) {
		o.InodeCacheSize = size
	}
}

// WithVRSCheck controls whether the Volume Recognition Sequence must announce an NSR
// descriptor.
func WithVRSCheck(enabled bool) MountOption {
	return func(o *MountOptions) {
		o.CheckVRS = enabled
	}
}

func WithProgress(callback ProgressCallback) MountOption {
	return func(o *MountOptions) {
		o.Progress = callback
	}
}

func WithLogger(logger *logging.Logger) MountOption {
	return func(o *MountOptions) {
		o.Logger = logger
	}
}
