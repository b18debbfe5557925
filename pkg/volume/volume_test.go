package volume

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bgrewell/udf-kit/internal/udftest"
	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/info"
	"github.com/bgrewell/udf-kit/pkg/inode"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/partition"
	"github.com/bgrewell/udf-kit/pkg/sector"
	"github.com/bgrewell/udf-kit/pkg/tag"
	"github.com/bgrewell/udf-kit/pkg/vat"
	"github.com/stretchr/testify/require"
)

var modTime = encoding.NewTimestamp(2010, 3, 4, 5, 6, 7, 60)

func sampleFiles() []udftest.File {
	return []udftest.File{
		{FileType: consts.FILE_TYPE_REGULAR, UID: 1000, GID: 100, Permissions: 0x1C81, Data: []byte("hello world"), ModTime: modTime},
		{FileType: consts.FILE_TYPE_SYMLINK, UID: consts.UDF_ID_UNSET, GID: consts.UDF_ID_UNSET, Data: []byte("dest"), ModTime: modTime},
		{FileType: consts.FILE_TYPE_FIFO, ModTime: modTime},
		{FileType: 200, ModTime: modTime},
		{FileType: consts.FILE_TYPE_REGULAR, Data: bytes.Repeat([]byte{0xAB}, 6000), ModTime: modTime},
	}
}

var sampleNames = []string{"readme", "link", "fifo", "odd", "big"}

func build(t *testing.T, o udftest.Options) *udftest.Image {
	t.Helper()
	img, err := udftest.Build(o)
	require.NoError(t, err)
	return img
}

func mount(t *testing.T, img *udftest.Image, opts ...option.MountOption) *Volume {
	t.Helper()
	v, err := Mount(img.Source(), opts...)
	require.NoError(t, err)
	return v
}

func records(t *testing.T, v *Volume, img *udftest.Image) map[string]*inode.Record {
	t.Helper()
	out := make(map[string]*inode.Record)
	root, err := v.Root()
	require.NoError(t, err)
	out["root"] = root
	for i, addr := range img.Files {
		r, err := v.ReadInode(addr)
		require.NoError(t, err)
		out[sampleNames[i]] = r
	}
	return out
}

func TestMountType1(t *testing.T) {
	img := build(t, udftest.Options{Label: "TYPE1", Files: sampleFiles()})
	v := mount(t, img)
	defer v.Close()

	require.Equal(t, "TYPE1", v.Label())
	require.Equal(t, img.Root, v.RootAddress())
	require.Equal(t, img.Sectors(), v.Sectors())
	require.Len(t, v.Partitions(), 1)
	require.Equal(t, partition.KindType1, v.Partitions()[0].Kind())
	require.Equal(t, img.PartitionStart, v.Partitions()[0].Base().Root)
	require.Equal(t, uint32(128), v.Partitions()[0].Base().Length)
	require.Equal(t, "TYPE1", v.FileSet().FileSetIdentifier)

	recs := records(t, v, img)
	require.NoError(t, udftest.Validate(recs, filepath.Join("testdata", "ground_truth.json")))
	dirs, files := udftest.Counts(recs)
	require.Equal(t, 1, dirs)
	require.Equal(t, 5, files)

	readme := recs["readme"]
	require.Equal(t, []byte("hello world"), readme.InlineData)
	want, err := modTime.ToTime()
	require.NoError(t, err)
	require.Equal(t, want, readme.ModTime)

	big := recs["big"]
	require.Len(t, big.Extents, 1)
	require.Equal(t, uint32(6000), big.Extents[0].Length)
	require.Equal(t, uint16(0), big.Extents[0].Location.PartitionReferenceNumber)

	block, err := v.ToPhysicalBlock(0, big.Extents[0].Location.LogicalBlockNumber)
	require.NoError(t, err)
	data, err := img.Source().ReadSector(block)
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), data[0])

	_, err = v.ToPhysicalBlock(0, 128)
	require.ErrorIs(t, err, partition.ErrOutOfRange)
}

func TestMountLayout(t *testing.T) {
	img := build(t, udftest.Options{})
	v := mount(t, img)

	l := v.Layout()
	require.Len(t, l.Filter(info.CategoryRecognition), 1)
	require.Equal(t, uint32(consts.UDF_ANCHOR_BLOCK), l.Filter(info.CategoryAnchor)[0].Block)
	require.Len(t, l.Filter(info.CategoryDescriptor), 4, "only the main sequence is read")
	require.Len(t, l.Filter(info.CategoryPartition), 1)
	require.Equal(t, img.Blocks[img.FileSet], l.Filter(info.CategoryFileSet)[0].Block)
	require.Equal(t, img.Blocks[img.Root], l.Filter(info.CategoryFileEntry)[0].Block)

	var out bytes.Buffer
	l.Print(&out, true, false, false)
	require.Contains(t, out.String(), "Primary Volume Descriptor (Version: 2)")
	require.Contains(t, l.PrettyJSON(), `"sector_size": 2048`)
}

func TestMountSparable(t *testing.T) {
	img := build(t, udftest.Options{Kind: udftest.KindSparable, Relocate: []uint32{0}, Files: sampleFiles()[:1]})
	v := mount(t, img)

	s, ok := v.Partitions()[0].(*partition.Sparable)
	require.True(t, ok)
	require.Equal(t, uint16(32), s.PacketLength)
	require.NotNil(t, s.Table)
	require.Len(t, s.Table.Entries, 1, "available spare packets are dropped")

	block, err := v.ToPhysicalBlock(0, 0)
	require.NoError(t, err)
	require.Equal(t, img.PartitionStart+128-32, block)

	block, err = v.ToPhysicalBlock(0, 40)
	require.NoError(t, err)
	require.Equal(t, img.PartitionStart+40, block, "packet 32 is not relocated")

	root, err := v.Root()
	require.NoError(t, err)
	require.True(t, root.IsDir())
	require.Len(t, v.Layout().Filter(info.CategorySparing), 1)
}

func TestMountSparableWithoutTable(t *testing.T) {
	img := build(t, udftest.Options{Kind: udftest.KindSparable})
	clear(img.Block(img.SparingTableBlock))

	v := mount(t, img)
	s := v.Partitions()[0].(*partition.Sparable)
	require.Nil(t, s.Table)
	_, err := v.Root()
	require.NoError(t, err)
}

func TestMountVirtual(t *testing.T) {
	for _, vat15 := range []bool{false, true} {
		name := "vat20"
		if vat15 {
			name = "vat15"
		}
		t.Run(name, func(t *testing.T) {
			img := build(t, udftest.Options{Kind: udftest.KindVirtual, VAT15: vat15, Files: sampleFiles()[:1]})
			v := mount(t, img, option.WithVATCacheSlots(64))

			maps := v.Partitions()
			require.Len(t, maps, 2)
			vm, ok := maps[1].(*partition.Virtual)
			require.True(t, ok)
			require.Equal(t, uint32(4), vm.Table.Entries)
			require.Equal(t, img.VATBlock, v.VATBlock())

			block, err := v.ToPhysicalBlock(1, 0)
			require.NoError(t, err)
			require.Equal(t, img.PartitionStart+2, block)

			_, err = v.ToPhysicalBlock(1, 3)
			require.ErrorIs(t, err, partition.ErrOutOfRange, "unused entry")
			_, err = v.ToPhysicalBlock(1, 4)
			require.ErrorIs(t, err, partition.ErrOutOfRange, "past the table")

			root, err := v.Root()
			require.NoError(t, err)
			require.True(t, root.IsDir())
			readme, err := v.ReadInode(img.Files[0])
			require.NoError(t, err)
			require.Equal(t, uint32(1000), readme.UID)

			st := v.Stats()
			require.Contains(t, st.VAT, uint16(1))
			require.Equal(t, 64, st.VAT[1].Slots)
			require.Positive(t, st.VAT[1].Hits)
			require.Equal(t, uint64(3), st.VAT[1].Inserts, "blocks 0, 1 and 2 are cached once each")
		})
	}
}

func TestMountVirtualConfiguredVATBlock(t *testing.T) {
	img := build(t, udftest.Options{Kind: udftest.KindVirtual})
	v := mount(t, img, option.WithVATBlock(img.VATBlock))
	require.Equal(t, img.VATBlock, v.VATBlock())

	_, err := Mount(img.Source(), option.WithVATBlock(img.VATBlock-1))
	require.ErrorIs(t, err, ErrNoVAT)
}

func TestMountVirtualVATNotFound(t *testing.T) {
	img := build(t, udftest.Options{Kind: udftest.KindVirtual})
	clear(img.Block(img.VATBlock))
	_, err := Mount(img.Source())
	require.ErrorIs(t, err, ErrNoVAT)
}

func TestMount512ByteSectors(t *testing.T) {
	img := build(t, udftest.Options{SectorSize: 512, Files: sampleFiles()[:1]})
	v := mount(t, img)
	require.Equal(t, 512, v.SectorSize())

	r, err := v.ReadInode(img.Files[0])
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), r.InlineData)
}

func TestMountRecoversFromDamage(t *testing.T) {
	t.Run("primary anchor", func(t *testing.T) {
		img := build(t, udftest.Options{})
		img.Block(consts.UDF_ANCHOR_BLOCK)[4] ^= 0xFF
		v := mount(t, img)
		require.Equal(t, img.Sectors()-1, v.Layout().Filter(info.CategoryAnchor)[0].Block)
		require.Positive(t, v.Stats().DescriptorFailures)
	})
	t.Run("main sequence", func(t *testing.T) {
		img := build(t, udftest.Options{})
		img.Block(32)[100] ^= 0xFF
		v := mount(t, img)
		require.Equal(t, "UDFTEST", v.Label())
		require.Equal(t, uint32(48), v.Layout().Filter(info.CategoryDescriptor)[0].Block)
	})
	t.Run("every anchor", func(t *testing.T) {
		img := build(t, udftest.Options{})
		img.Block(consts.UDF_ANCHOR_BLOCK)[4] ^= 0xFF
		img.Block(img.Sectors() - 1)[4] ^= 0xFF
		_, err := Mount(img.Source())
		require.ErrorIs(t, err, ErrNoAnchor)
		require.ErrorIs(t, err, tag.ErrChecksumMismatch)
	})
	t.Run("both sequences", func(t *testing.T) {
		img := build(t, udftest.Options{})
		img.Block(34)[300] ^= 0xFF
		img.Block(50)[300] ^= 0xFF
		_, err := Mount(img.Source())
		require.ErrorIs(t, err, tag.ErrCrcMismatch)
	})
	t.Run("file set", func(t *testing.T) {
		img := build(t, udftest.Options{})
		img.Block(img.Blocks[img.FileSet])[200] ^= 0xFF
		_, err := Mount(img.Source())
		require.ErrorIs(t, err, tag.ErrCrcMismatch)
	})
}

func TestMountRecognition(t *testing.T) {
	img := build(t, udftest.Options{OmitVRS: true})
	_, err := Mount(img.Source())
	require.ErrorIs(t, err, ErrNotUDF)

	v := mount(t, img, option.WithVRSCheck(false))
	require.Equal(t, "UDFTEST", v.Label())
}

func TestMountStrictness(t *testing.T) {
	img := build(t, udftest.Options{NSR03: true})
	mount(t, img)

	_, err := Mount(img.Source(), option.WithStrictness(tag.StrictStrictness()))
	require.ErrorIs(t, err, tag.ErrVersionMismatch)
}

func TestMountBlockSize(t *testing.T) {
	img := build(t, udftest.Options{})
	_, err := Mount(img.Source(), option.WithBlockSize(512))
	require.ErrorIs(t, err, ErrBlockSize)

	// A 2048 byte volume read through a 512 byte source records the wrong block size.
	src, err := sector.NewReaderAtSource(bytes.NewReader(img.Data), 512, int64(len(img.Data)))
	require.NoError(t, err)
	_, err = Mount(src, option.WithVRSCheck(false))
	require.Error(t, err)
}

func TestMountConfiguredMaps(t *testing.T) {
	img := build(t, udftest.Options{})
	v := mount(t, img, option.WithPartitionMaps(option.MapSpec{Kind: "type1", PartitionNumber: 0}))
	require.Equal(t, img.PartitionStart, v.Partitions()[0].Base().Root)

	_, err := Mount(img.Source(), option.WithPartitionMaps(option.MapSpec{Kind: "type1", PartitionNumber: 7}))
	require.ErrorIs(t, err, ErrPartitionNotFound)

	_, err = Mount(img.Source(), option.WithPartitionMaps(option.MapSpec{Kind: "metadata"}))
	require.ErrorIs(t, err, partition.ErrUnsupportedPartitionMap)
}

func TestMountOptionsReachInodes(t *testing.T) {
	img := build(t, udftest.Options{Files: sampleFiles()})
	v := mount(t, img, option.WithDefaultOwner(99, 98), option.WithDiskPermissions(true))

	root, err := v.Root()
	require.NoError(t, err)
	require.Equal(t, uint32(99), root.UID)
	require.Equal(t, uint32(98), root.GID)

	readme, err := v.ReadInode(img.Files[0])
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o741), readme.Mode.Perm())
}

func TestInodeCache(t *testing.T) {
	img := build(t, udftest.Options{})
	v := mount(t, img, option.WithInodeCache(4))

	first, err := v.Root()
	require.NoError(t, err)
	second, err := v.Root()
	require.NoError(t, err)
	require.NotSame(t, first, second)
	require.Equal(t, first, second)

	st := v.Stats()
	require.Equal(t, uint64(1), st.InodeCacheHits)
	require.Equal(t, uint64(1), st.InodeCacheMisses)
	require.Equal(t, 1, st.InodeCacheEntries)
}

func TestInodeCacheReturnsCopies(t *testing.T) {
	img := build(t, udftest.Options{Files: sampleFiles()})
	v := mount(t, img, option.WithInodeCache(4))
	big := img.Files[len(img.Files)-1]
	readme := img.Files[0]

	for _, addr := range []encoding.LBAddr{big, readme} {
		r, err := v.ReadInode(addr)
		require.NoError(t, err)
		want := r.Clone()

		if len(r.Extents) > 0 {
			r.Extents[0].Length = 1
			r.Extents = append(r.Extents, inode.Extent{Length: 99})
		}
		if len(r.InlineData) > 0 {
			r.InlineData[0] = 'X'
		}
		r.Mode = 0

		again, err := v.ReadInode(addr)
		require.NoError(t, err)
		require.Equal(t, want, again)
	}
	require.Equal(t, uint64(2), v.Stats().InodeCacheHits)
}

// virtualVolume wires a volume by hand around one virtual map whose table maps virtual block
// 50 to physical block 10, below its own number.
func virtualVolume(t *testing.T, s tag.Strictness) *Volume {
	t.Helper()
	const ss = 2048
	entries := make([]uint32, 64)
	for i := range entries {
		entries[i] = consts.VAT_ENTRY_UNUSED
	}
	entries[50] = 10

	table := make([]byte, consts.VAT20_MIN_HEADER_SIZE+4*len(entries))
	binary.LittleEndian.PutUint16(table[0:2], consts.VAT20_MIN_HEADER_SIZE)
	binary.LittleEndian.PutUint32(table[132:136], consts.VAT_ENTRY_UNUSED)
	for i, e := range entries {
		binary.LittleEndian.PutUint32(table[consts.VAT20_MIN_HEADER_SIZE+4*i:], e)
	}
	vt, err := vat.NewInlineTable(table, vat.Format20)
	require.NoError(t, err)

	data := make([]byte, 100*ss)
	fe := data[10*ss : 11*ss]
	require.NoError(t, tag.Seal(fe, consts.TAG_IDENT_FILE_ENTRY, consts.UDF_DESCRIPTOR_VERSION_NSR02, 0, 50, 100))
	src, err := sector.NewReaderAtSource(bytes.NewReader(data), ss, int64(len(data)))
	require.NoError(t, err)

	vm := &partition.Virtual{
		Geometry: partition.Geometry{Root: 0, Length: 100},
		Table:    vt,
		Cache:    vat.NewCache(0, 0),
	}
	return &Volume{
		src:        src,
		opts:       option.Apply(option.WithStrictness(s)),
		log:        logging.DefaultLogger(),
		translator: partition.NewTranslator([]partition.Map{vm}, nil),
	}
}

func TestReadDescriptorBelowLogicalBlock(t *testing.T) {
	v := virtualVolume(t, tag.StrictStrictness())

	d, err := v.ReadDescriptor(encoding.LBAddr{LogicalBlockNumber: 50})
	require.NoError(t, err)
	require.Equal(t, uint32(10), d.Block)
	require.Equal(t, uint32(50), d.Tag.Location)

	_, err = v.ReadDescriptor(encoding.LBAddr{LogicalBlockNumber: 49})
	require.ErrorIs(t, err, partition.ErrOutOfRange)
	require.Zero(t, v.Stats().DescriptorFailures)
}

func TestConcurrentReads(t *testing.T) {
	img := build(t, udftest.Options{Kind: udftest.KindVirtual, Files: sampleFiles()[:3]})
	v := mount(t, img, option.WithInodeCache(2), option.WithVATCacheSlots(2))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				addr := img.Files[j%len(img.Files)]
				r, err := v.ReadInode(addr)
				if !assertNoError(t, err) {
					return
				}
				if r.Block != img.Blocks[addr] {
					t.Errorf("inode %s read from %d, want %d", addr, r.Block, img.Blocks[addr])
					return
				}
			}
		}()
	}
	wg.Wait()
}

func assertNoError(t *testing.T, err error) bool {
	if err != nil {
		t.Error(err)
		return false
	}
	return true
}

func TestScan(t *testing.T) {
	img := build(t, udftest.Options{Files: sampleFiles()[:2]})
	var calls int
	var lastFound int
	v := mount(t, img, option.WithProgress(func(block, total uint32, found int) {
		calls++
		lastFound = found
	}))

	l, err := v.Scan()
	require.NoError(t, err)
	require.Equal(t, int(img.Sectors()), calls)
	// Two anchors, two sequences of four, the file set and three file entries.
	require.Equal(t, 2+8+1+3, lastFound)
	require.Len(t, l.Filter(info.CategoryFileEntry), 3)
}

func TestLogging(t *testing.T) {
	var out bytes.Buffer
	img := build(t, udftest.Options{Label: "LOGGED"})
	mount(t, img, option.WithLogger(logging.NewLogger(logging.NewSimpleLogger(&out, logging.LEVEL_DEBUG, false))))
	require.Contains(t, out.String(), "[INFO] [volume] mounted volume")
	require.Contains(t, out.String(), "label: LOGGED")
}
