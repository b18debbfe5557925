// Package udftest builds small UDF images in memory for tests.
package udftest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/cs0"
	"github.com/bgrewell/udf-kit/pkg/descriptor"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/inode"
	"github.com/bgrewell/udf-kit/pkg/partition"
	"github.com/bgrewell/udf-kit/pkg/sector"
	"github.com/bgrewell/udf-kit/pkg/tag"
	"github.com/klauspost/compress/zstd"
)

// Kind selects the partition layout of the image.
type Kind int

const (
	KindType1 Kind = iota
	KindSparable
	KindVirtual
)

// File is a file entry recorded after the root directory.
type File struct {
	FileType    uint8
	UID         uint32
	GID         uint32
	Permissions uint32
	Data        []byte
	ModTime     encoding.Timestamp
}

type Options struct {
	SectorSize      int
	Label           string
	Kind            Kind
	NSR03           bool
	Extended        bool
	PartitionStart  uint32
	PartitionLength uint32
	// PacketLength and Relocate apply to sparable images. Relocate lists the packets, by
	// first partition block, that are recorded in the spare area instead of in place.
	PacketLength uint16
	Relocate     []uint32
	// VAT15 records a UDF 1.50 VAT in virtual images.
	VAT15         bool
	OmitVRS       bool
	RecordingTime encoding.Timestamp
	Files         []File
}

// Image is a built image and where its structures were placed.
type Image struct {
	Data       []byte
	SectorSize int
	Options    Options

	PartitionStart    uint32
	FileSet           encoding.LBAddr
	Root              encoding.LBAddr
	Files             []encoding.LBAddr
	Blocks            map[encoding.LBAddr]uint32
	VATBlock          uint32
	SparingTableBlock uint32
}

const (
	mainVDSBlock    = 32
	reserveVDSBlock = 48
)

type builder struct {
	o       Options
	img     *Image
	ss      int
	version uint16
	ref     uint16
	next    uint32
	vat     []uint32
	err     error
}

// Build lays out an image. Zero options give a 2048 byte sector type 1 image.
func Build(o Options) (*Image, error) {
	if o.SectorSize == 0 {
		o.SectorSize = consts.UDF_SECTOR_SIZE
	}
	if o.Label == "" {
		o.Label = "UDFTEST"
	}
	if o.PartitionStart == 0 {
		o.PartitionStart = 272
	}
	if o.PartitionLength == 0 {
		o.PartitionLength = 128
	}
	if o.PacketLength == 0 {
		o.PacketLength = 32
	}
	if o.RecordingTime == (encoding.Timestamp{}) {
		o.RecordingTime = encoding.NewTimestamp(2004, 6, 15, 12, 0, 0, 0)
	}

	total := o.PartitionStart + o.PartitionLength
	if o.Kind != KindVirtual {
		total++
	}
	b := &builder{
		o:       o,
		ss:      o.SectorSize,
		version: consts.UDF_DESCRIPTOR_VERSION_NSR02,
		img: &Image{
			Data:           make([]byte, int(total)*o.SectorSize),
			SectorSize:     o.SectorSize,
			Options:        o,
			PartitionStart: o.PartitionStart,
			Blocks:         make(map[encoding.LBAddr]uint32),
		},
	}
	if o.NSR03 {
		b.version = consts.UDF_DESCRIPTOR_VERSION_NSR03
	}
	if o.Kind == KindVirtual {
		b.ref = 1
		b.next = 2
	}

	if !o.OmitVRS {
		b.vrs()
	}
	b.objects()
	if o.Kind == KindVirtual {
		b.virtualTable()
	}
	if o.Kind == KindSparable {
		b.sparingTable()
	}
	b.volumeDescriptors(mainVDSBlock)
	b.volumeDescriptors(reserveVDSBlock)

	avdp := &descriptor.AnchorVolumeDescriptorPointer{
		MainVolumeDescriptorSequence:    encoding.ExtentAD{Length: uint32(4 * b.ss), Location: mainVDSBlock},
		ReserveVolumeDescriptorSequence: encoding.ExtentAD{Length: uint32(4 * b.ss), Location: reserveVDSBlock},
	}
	b.put(consts.UDF_ANCHOR_BLOCK, consts.TAG_IDENT_ANCHOR_VOLUME, consts.UDF_ANCHOR_BLOCK, avdp.Marshal())
	if o.Kind != KindVirtual {
		b.put(total-1, consts.TAG_IDENT_ANCHOR_VOLUME, total-1, avdp.Marshal())
	}

	if b.err != nil {
		return nil, b.err
	}
	return b.img, nil
}

func (b *builder) vrs() {
	nsr := consts.UDF_STD_IDENTIFIER_NSR02
	if b.o.NSR03 {
		nsr = consts.UDF_STD_IDENTIFIER_NSR03
	}
	for i, id := range []string{consts.UDF_STD_IDENTIFIER_BEA01, nsr, consts.UDF_STD_IDENTIFIER_TEA01} {
		off := consts.UDF_VRS_OFFSET + i*consts.UDF_VRS_RECORD_SIZE
		b.img.Data[off] = 0
		copy(b.img.Data[off+1:off+6], id)
		b.img.Data[off+6] = 1
	}
}

// put seals body as a descriptor at the absolute block.
func (b *builder) put(block uint32, ident uint16, location uint32, body []byte) {
	if b.err != nil {
		return
	}
	if len(body) > b.ss {
		b.err = fmt.Errorf("descriptor %d of %d bytes does not fit a %d byte sector", ident, len(body), b.ss)
		return
	}
	buf := b.img.Block(block)
	copy(buf, body)
	b.err = tag.Seal(buf, ident, b.version, 1, location, uint16(len(body)-consts.UDF_TAG_SIZE))
}

// alloc reserves the next logical block in the partition objects are recorded in and returns
// its address and absolute block.
func (b *builder) alloc() (encoding.LBAddr, uint32) {
	lbn := b.next
	b.next++
	if b.next > b.o.PartitionLength {
		b.err = fmt.Errorf("partition of %d blocks is full", b.o.PartitionLength)
	}
	abs := b.o.PartitionStart + lbn
	if b.o.Kind == KindSparable {
		abs = b.spared(lbn)
	}
	addr := encoding.LBAddr{LogicalBlockNumber: lbn, PartitionReferenceNumber: b.ref}
	if b.o.Kind == KindVirtual {
		addr.LogicalBlockNumber = uint32(len(b.vat))
		b.vat = append(b.vat, lbn)
	}
	b.img.Blocks[addr] = abs
	return addr, abs
}

// spared returns where lbn is recorded. Relocated packets go to the spare area, which grows
// down from the end of the partition.
func (b *builder) spared(lbn uint32) uint32 {
	packet := uint32(b.o.PacketLength)
	for i, p := range b.o.Relocate {
		if lbn-lbn%packet == p {
			return b.spareStart(i) + lbn%packet
		}
	}
	return b.o.PartitionStart + lbn
}

func (b *builder) spareStart(i int) uint32 {
	return b.o.PartitionStart + b.o.PartitionLength - uint32(b.o.PacketLength)*uint32(i+1)
}

func (b *builder) objects() {
	fsdAddr, fsdBlock := b.alloc()
	rootAddr, rootBlock := b.alloc()
	b.img.FileSet, b.img.Root = fsdAddr, rootAddr

	fsd := &descriptor.FileSetDescriptor{
		RecordingDateTime:       b.o.RecordingTime,
		InterchangeLevel:        3,
		MaxInterchangeLevel:     3,
		LogicalVolumeIdentifier: b.o.Label,
		FileSetIdentifier:       b.o.Label,
		RootDirectoryICB:        encoding.LongAD{Length: uint32(b.ss), Location: rootAddr},
		DomainIdentifier:        encoding.NewEntityID(consts.UDF_ID_COMPLIANT),
	}
	b.put(fsdBlock, consts.TAG_IDENT_FILE_SET, fsdAddr.LogicalBlockNumber, fsd.Marshal())

	root := &inode.FileEntry{
		Extended:         b.o.Extended,
		ICBTag:           inode.ICBTag{StrategyType: 4, FileType: consts.FILE_TYPE_DIRECTORY, Flags: consts.ICB_FLAG_AD_IN_ICB},
		UID:              consts.UDF_ID_UNSET,
		GID:              consts.UDF_ID_UNSET,
		FileLinkCount:    1,
		AccessTime:       b.o.RecordingTime,
		ModificationTime: b.o.RecordingTime,
		CreationTime:     b.o.RecordingTime,
		AttributeTime:    b.o.RecordingTime,
		UniqueID:         0,
	}
	b.put(rootBlock, root.TagIdentifier(), rootAddr.LogicalBlockNumber, root.Marshal())

	for i, f := range b.o.Files {
		addr, block := b.alloc()
		b.img.Files = append(b.img.Files, addr)
		fe := &inode.FileEntry{
			Extended:          b.o.Extended,
			ICBTag:            inode.ICBTag{StrategyType: 4, FileType: f.FileType},
			UID:               f.UID,
			GID:               f.GID,
			Permissions:       f.Permissions,
			FileLinkCount:     1,
			InformationLength: uint64(len(f.Data)),
			ObjectSize:        uint64(len(f.Data)),
			AccessTime:        f.ModTime,
			ModificationTime:  f.ModTime,
			CreationTime:      f.ModTime,
			AttributeTime:     f.ModTime,
			UniqueID:          uint64(16 + i),
		}
		base := consts.FILE_ENTRY_BASE_SIZE
		if b.o.Extended {
			base = consts.EXTENDED_FILE_ENTRY_BASE_SIZE
		}
		if base+len(f.Data) <= b.ss {
			fe.ICBTag.Flags = consts.ICB_FLAG_AD_IN_ICB
			fe.AllocationDescriptors = f.Data
		} else {
			fe.ICBTag.Flags = consts.ICB_FLAG_AD_SHORT
			fe.AllocationDescriptors = b.data(f.Data)
			fe.LogicalBlocksRecorded = uint64((len(f.Data) + b.ss - 1) / b.ss)
		}
		b.put(block, fe.TagIdentifier(), addr.LogicalBlockNumber, fe.Marshal())
	}
}

// data records contents in consecutive blocks and returns the short allocation descriptor
// for them.
func (b *builder) data(p []byte) []byte {
	var first encoding.LBAddr
	for i := 0; i < len(p); i += b.ss {
		addr, block := b.alloc()
		if i == 0 {
			first = addr
		}
		copy(b.img.Block(block), p[i:])
	}
	ad := make([]byte, consts.SHORT_AD_SIZE)
	encoding.ShortAD{Length: uint32(len(p)), Position: first.LogicalBlockNumber}.Put(ad)
	return ad
}

func (b *builder) virtualTable() {
	entries := append(append([]uint32(nil), b.vat...), consts.VAT_ENTRY_UNUSED)
	var data []byte
	fileType := uint8(consts.FILE_TYPE_VAT20)
	if b.o.VAT15 {
		fileType = consts.FILE_TYPE_UNSPECIFIED
		data = make([]byte, 4*len(entries)+consts.VAT15_TRAILER_SIZE)
		for i, e := range entries {
			binary.LittleEndian.PutUint32(data[4*i:], e)
		}
		trailer := data[4*len(entries):]
		copy(trailer[1:], consts.UDF_ID_VAT15)
		binary.LittleEndian.PutUint32(trailer[32:], consts.VAT_ENTRY_UNUSED)
	} else {
		hdr := consts.VAT20_MIN_HEADER_SIZE
		data = make([]byte, hdr+4*len(entries))
		binary.LittleEndian.PutUint16(data[0:2], uint16(hdr))
		copy(data[4:132], cs0.EncodeDString(b.o.Label, 128))
		binary.LittleEndian.PutUint32(data[132:136], consts.VAT_ENTRY_UNUSED)
		binary.LittleEndian.PutUint32(data[136:140], uint32(len(b.o.Files)))
		binary.LittleEndian.PutUint32(data[140:144], 1)
		for i, e := range entries {
			binary.LittleEndian.PutUint32(data[hdr+4*i:], e)
		}
	}

	lbn := b.o.PartitionLength - 1
	if b.next > lbn {
		b.err = fmt.Errorf("no room for the vat in a %d block partition", b.o.PartitionLength)
		return
	}
	fe := &inode.FileEntry{
		ICBTag:                inode.ICBTag{StrategyType: 4, FileType: fileType, Flags: consts.ICB_FLAG_AD_IN_ICB},
		UID:                   consts.UDF_ID_UNSET,
		GID:                   consts.UDF_ID_UNSET,
		FileLinkCount:         1,
		InformationLength:     uint64(len(data)),
		ModificationTime:      b.o.RecordingTime,
		AllocationDescriptors: data,
	}
	b.img.VATBlock = b.o.PartitionStart + lbn
	b.put(b.img.VATBlock, fe.TagIdentifier(), lbn, fe.Marshal())
}

func (b *builder) sparingTable() {
	var entries []partition.SparingEntry
	for i, p := range b.o.Relocate {
		entries = append(entries, partition.SparingEntry{Original: p, Mapped: b.spareStart(i)})
	}
	// An available spare packet, which readers skip.
	entries = append(entries, partition.SparingEntry{Original: 0xFFFFFFF0, Mapped: b.spareStart(len(b.o.Relocate))})
	b.img.SparingTableBlock = b.o.PartitionStart - 8
	b.put(b.img.SparingTableBlock, consts.TAG_IDENT_SPARING_TABLE, b.img.SparingTableBlock,
		partition.MarshalSparingTable(1, entries))
}

func (b *builder) partitionMaps() ([]byte, uint32) {
	switch b.o.Kind {
	case KindSparable:
		return partition.MarshalType2(consts.UDF_ID_SPARABLE, 1, 0, &partition.Sparable{
			PacketLength:   b.o.PacketLength,
			TableSize:      uint32(b.ss),
			TableLocations: []uint32{b.o.PartitionStart - 8},
		}), 1
	case KindVirtual:
		maps := partition.MarshalType1(1, 0)
		maps = append(maps, partition.MarshalType2(consts.UDF_ID_VIRTUAL, 1, 0, nil)...)
		return maps, 2
	}
	return partition.MarshalType1(1, 0), 1
}

func (b *builder) volumeDescriptors(start uint32) {
	contents := "+" + consts.UDF_STD_IDENTIFIER_NSR02
	if b.o.NSR03 {
		contents = "+" + consts.UDF_STD_IDENTIFIER_NSR03
	}
	maps, count := b.partitionMaps()

	pvd := &descriptor.PrimaryVolumeDescriptor{
		VolumeDescriptorSequenceNumber: 1,
		VolumeIdentifier:               b.o.Label,
		VolumeSetIdentifier:            "0000000000000000" + b.o.Label,
		VolumeSequenceNumber:           1,
		MaxVolumeSequenceNumber:        1,
		InterchangeLevel:               2,
		MaxInterchangeLevel:            2,
		RecordingDateTime:              b.o.RecordingTime,
		ImplementationIdentifier:       encoding.NewEntityID("*udf-kit"),
	}
	pd := &descriptor.PartitionDescriptor{
		VolumeDescriptorSequenceNumber: 2,
		PartitionFlags:                 1,
		PartitionContents:              encoding.NewEntityID(contents),
		AccessType:                     descriptor.AccessReadOnly,
		PartitionStartingLocation:      b.o.PartitionStart,
		PartitionLength:                b.o.PartitionLength,
	}
	lvd := &descriptor.LogicalVolumeDescriptor{
		VolumeDescriptorSequenceNumber: 3,
		LogicalVolumeIdentifier:        b.o.Label,
		LogicalBlockSize:               uint32(b.ss),
		DomainIdentifier:               encoding.NewEntityID(consts.UDF_ID_COMPLIANT),
		FileSetDescriptor:              encoding.LongAD{Length: uint32(b.ss), Location: b.img.FileSet},
		NumberOfPartitionMaps:          count,
		PartitionMaps:                  maps,
	}
	b.put(start, consts.TAG_IDENT_PRIMARY_VOLUME, start, pvd.Marshal())
	b.put(start+1, consts.TAG_IDENT_PARTITION, start+1, pd.Marshal())
	b.put(start+2, consts.TAG_IDENT_LOGICAL_VOLUME, start+2, lvd.Marshal())
	b.put(start+3, consts.TAG_IDENT_TERMINATING, start+3, (&descriptor.TerminatingDescriptor{}).Marshal())
}

// Block returns the bytes of an absolute block, aliasing the image.
func (img *Image) Block(block uint32) []byte {
	off := int(block) * img.SectorSize
	return img.Data[off : off+img.SectorSize]
}

// Source returns a sector source reading the image.
func (img *Image) Source() *sector.ReaderAtSource {
	src, err := sector.NewReaderAtSource(bytes.NewReader(img.Data), img.SectorSize, int64(len(img.Data)))
	if err != nil {
		panic(err)
	}
	return src
}

// Sectors returns the number of blocks in the image.
func (img *Image) Sectors() uint32 {
	return uint32(len(img.Data) / img.SectorSize)
}

// WriteFile stores the image at path, zstd compressed when compress is set.
func (img *Image) WriteFile(path string, compress bool) error {
	data := img.Data
	if compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return err
		}
		data = enc.EncodeAll(img.Data, nil)
		enc.Close()
	}
	return os.WriteFile(path, data, 0o644)
}
