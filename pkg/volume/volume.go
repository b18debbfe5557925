// Package volume mounts a UDF volume from a sector source: it discovers the partition maps,
// sparing tables and VAT recorded on the media and resolves logical addresses to inodes.
package volume

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/bgrewell/udf-kit/pkg/descriptor"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/info"
	"github.com/bgrewell/udf-kit/pkg/inode"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/partition"
	"github.com/bgrewell/udf-kit/pkg/sector"
	"github.com/bgrewell/udf-kit/pkg/tag"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrNotUDF             = errors.New("no udf volume recognition sequence")
	ErrNoAnchor           = errors.New("no valid anchor volume descriptor pointer")
	ErrIncompleteSequence = errors.New("incomplete volume descriptor sequence")
	ErrBlockSize          = errors.New("logical block size does not match sector size")
	ErrPartitionNotFound  = errors.New("partition map refers to a missing partition")
	ErrNoVAT              = errors.New("virtual allocation table not found")
)

// Volume is a mounted UDF volume. It is safe for concurrent use; everything discovered at
// mount time is immutable afterwards.
type Volume struct {
	src        sector.Source
	sectors    uint32
	opts       *option.MountOptions
	log        *logging.Logger
	translator *partition.Translator
	set        *descriptor.VolumeDescriptorSet
	fileSet    *descriptor.FileSetDescriptor
	root       encoding.LBAddr
	vatBlock   uint32
	inodeCfg   inode.Config
	inodes     *lru.Cache[encoding.LBAddr, *inode.Record]
	layout     *info.Layout

	reads       atomic.Uint64
	failures    atomic.Uint64
	inodeHits   atomic.Uint64
	inodeMisses atomic.Uint64
}

// Mount reads the volume structures recorded on src.
func Mount(src sector.Source, opts ...option.MountOption) (*Volume, error) {
	o := option.Apply(opts...)
	v := &Volume{
		src:  src,
		opts: o,
		log:  o.Logger.WithName("volume"),
	}
	if sized, ok := src.(sector.SizedSource); ok {
		v.sectors = sized.Sectors()
	}
	v.layout = info.NewLayout(src.SectorSize(), v.sectors)

	if o.BlockSize != 0 && o.BlockSize != src.SectorSize() {
		return nil, fmt.Errorf("configured %d, source has %d: %w", o.BlockSize, src.SectorSize(), ErrBlockSize)
	}

	if o.CheckVRS {
		if err := v.checkVRS(); err != nil {
			return nil, err
		}
	}

	anchor, err := v.findAnchor()
	if err != nil {
		return nil, err
	}

	set, err := v.readSequence(anchor.MainVolumeDescriptorSequence)
	if err != nil || !set.Complete() {
		v.log.Warn("main volume descriptor sequence unusable, reading the reserve",
			"location", anchor.MainVolumeDescriptorSequence.Location, "error", err)
		set, err = v.readSequence(anchor.ReserveVolumeDescriptorSequence)
		if err != nil {
			return nil, err
		}
		if !set.Complete() {
			return nil, ErrIncompleteSequence
		}
	}
	v.set = set

	if bs := set.Logical.LogicalBlockSize; bs != uint32(src.SectorSize()) {
		return nil, fmt.Errorf("volume records %d, source has %d: %w", bs, src.SectorSize(), ErrBlockSize)
	}

	maps, err := v.buildMaps()
	if err != nil {
		return nil, err
	}
	v.translator = partition.NewTranslator(maps, o.Logger.WithName("partition"))
	if err := v.loadTables(maps); err != nil {
		return nil, err
	}

	volumeTime, err := set.Primary.RecordingDateTime.ToTime()
	if err != nil {
		v.log.Debug("primary volume descriptor has no usable recording time", "error", err)
		volumeTime = time.Unix(0, 0).UTC()
	}
	v.inodeCfg = inode.Config{
		DefaultUID:      o.DefaultUID,
		DefaultGID:      o.DefaultGID,
		VolumeTime:      volumeTime,
		DiskPermissions: o.DiskPermissions,
	}
	if o.InodeCacheSize > 0 {
		if v.inodes, err = lru.New[encoding.LBAddr, *inode.Record](o.InodeCacheSize); err != nil {
			return nil, err
		}
	}

	if err := v.readFileSet(); err != nil {
		return nil, err
	}

	v.log.Info("mounted volume", "label", v.Label(), "partitions", len(maps), "root", v.root.String())
	return v, nil
}

// ReadTagged reads and verifies the descriptor at an absolute block under the mount
// strictness.
func (v *Volume) ReadTagged(block, expectedOffset uint32) (*tag.Descriptor, error) {
	v.reads.Add(1)
	d, err := tag.ReadTagged(v.src, block, expectedOffset, v.opts.Strictness, v.log)
	if err != nil {
		v.failures.Add(1)
		return nil, err
	}
	return d, nil
}

// ToPhysicalBlock translates a partition relative block to an absolute block.
func (v *Volume) ToPhysicalBlock(ref uint16, lbn uint32) (uint32, error) {
	return v.translator.ToPhysicalBlock(ref, lbn)
}

// ReadDescriptor translates addr and reads the descriptor recorded there. The tag location
// may hold either the logical block number or the absolute block. The offset wraps when a
// virtual or spared block lies below its logical number.
func (v *Volume) ReadDescriptor(addr encoding.LBAddr) (*tag.Descriptor, error) {
	block, err := v.ToPhysicalBlock(addr.PartitionReferenceNumber, addr.LogicalBlockNumber)
	if err != nil {
		return nil, err
	}
	return v.ReadTagged(block, block-addr.LogicalBlockNumber)
}

// Materialize builds the inode record of a file entry read from partition ref.
func (v *Volume) Materialize(d *tag.Descriptor, ref uint16) (*inode.Record, error) {
	cfg := v.inodeCfg
	cfg.PartitionReference = ref
	return inode.Materialize(d, cfg)
}

// ReadInode reads and materializes the file entry at addr, through the inode cache when one
// is configured. Every call returns a record the caller owns.
func (v *Volume) ReadInode(addr encoding.LBAddr) (*inode.Record, error) {
	if v.inodes != nil {
		if r, ok := v.inodes.Get(addr); ok {
			v.inodeHits.Add(1)
			return r.Clone(), nil
		}
		v.inodeMisses.Add(1)
	}
	d, err := v.ReadDescriptor(addr)
	if err != nil {
		return nil, fmt.Errorf("inode %s: %w", addr, err)
	}
	r, err := v.Materialize(d, addr.PartitionReferenceNumber)
	if err != nil {
		return nil, fmt.Errorf("inode %s: %w", addr, err)
	}
	if v.inodes != nil {
		v.inodes.Add(addr, r.Clone())
	}
	return r, nil
}

// Root returns the inode of the root directory.
func (v *Volume) Root() (*inode.Record, error) {
	return v.ReadInode(v.root)
}

// RootAddress returns where the root directory's file entry is recorded.
func (v *Volume) RootAddress() encoding.LBAddr {
	return v.root
}

// Label returns the logical volume identifier, or the volume identifier when it is empty.
func (v *Volume) Label() string {
	if v.set.Logical.LogicalVolumeIdentifier != "" {
		return v.set.Logical.LogicalVolumeIdentifier
	}
	return v.set.Primary.VolumeIdentifier
}

func (v *Volume) Partitions() []partition.Map {
	return v.translator.Maps()
}

func (v *Volume) Descriptors() *descriptor.VolumeDescriptorSet {
	return v.set
}

func (v *Volume) FileSet() *descriptor.FileSetDescriptor {
	return v.fileSet
}

// VATBlock returns the absolute block of the VAT file entry, or 0 without a virtual partition.
func (v *Volume) VATBlock() uint32 {
	return v.vatBlock
}

func (v *Volume) SectorSize() int {
	return v.src.SectorSize()
}

// Sectors returns the size of the source in sectors, or 0 when it is unknown.
func (v *Volume) Sectors() uint32 {
	return v.sectors
}

// Layout returns the structures read while mounting, in block order.
func (v *Volume) Layout() *info.Layout {
	l := info.NewLayout(v.layout.SectorSize, v.layout.Sectors)
	for _, r := range v.layout.Regions {
		l.Add(*r)
	}
	return l
}

// Scan walks every sector of the source looking for descriptors, reporting progress through
// the configured callback.
func (v *Volume) Scan() (*info.Layout, error) {
	if v.sectors == 0 {
		return nil, errors.New("source size is unknown")
	}
	return info.Scan(v.src, v.sectors, v.opts.Strictness, v.opts.Progress)
}

// Close closes the source when it is an io.Closer.
func (v *Volume) Close() error {
	if c, ok := v.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
