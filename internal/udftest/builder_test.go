package udftest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/inode"
	"github.com/bgrewell/udf-kit/pkg/sector"
	"github.com/bgrewell/udf-kit/pkg/tag"
	"github.com/stretchr/testify/require"
)

func TestBuildType1(t *testing.T) {
	img, err := Build(Options{})
	require.NoError(t, err)
	require.Equal(t, uint32(272+128+1), img.Sectors())

	for _, block := range []uint32{consts.UDF_ANCHOR_BLOCK, img.Sectors() - 1, mainVDSBlock, reserveVDSBlock + 2} {
		_, err := tag.Verify(img.Block(block), block, 0, tag.StrictStrictness(), nil)
		require.NoError(t, err, "block %d", block)
	}
	require.Equal(t, "BEA01", string(img.Data[consts.UDF_VRS_OFFSET+1:consts.UDF_VRS_OFFSET+6]))

	root := img.Blocks[img.Root]
	d, err := tag.Verify(img.Block(root), root, img.PartitionStart, tag.StrictStrictness(), nil)
	require.NoError(t, err)
	require.Equal(t, uint16(consts.TAG_IDENT_FILE_ENTRY), d.Identifier())
}

func TestBuildSparableRelocatesPacket(t *testing.T) {
	img, err := Build(Options{Kind: KindSparable, Relocate: []uint32{0}})
	require.NoError(t, err)

	// Packet 0 lives in the last packet of the partition; its home is left blank.
	fsd := img.Blocks[img.FileSet]
	require.Equal(t, img.PartitionStart+128-32, fsd)
	require.Equal(t, make([]byte, img.SectorSize), img.Block(img.PartitionStart))

	_, err = tag.Verify(img.Block(img.SparingTableBlock), img.SparingTableBlock, 0, tag.StrictStrictness(), nil)
	require.NoError(t, err)
}

func TestBuildVirtual(t *testing.T) {
	img, err := Build(Options{Kind: KindVirtual, Files: []File{{FileType: consts.FILE_TYPE_REGULAR, Data: []byte("hi")}}})
	require.NoError(t, err)
	require.Equal(t, img.Sectors()-1, img.VATBlock)
	require.Equal(t, uint16(1), img.Root.PartitionReferenceNumber)
	require.Equal(t, uint32(1), img.Root.LogicalBlockNumber)

	d, err := tag.Verify(img.Block(img.VATBlock), img.VATBlock, img.PartitionStart, tag.StrictStrictness(), nil)
	require.NoError(t, err)
	rec, err := inode.Materialize(d, inode.Config{})
	require.NoError(t, err)
	require.Equal(t, uint8(consts.FILE_TYPE_VAT20), rec.FileType)
}

func TestBuildLargeFileUsesDataBlocks(t *testing.T) {
	data := make([]byte, 5000)
	img, err := Build(Options{Files: []File{{FileType: consts.FILE_TYPE_REGULAR, Data: data}}})
	require.NoError(t, err)

	block := img.Blocks[img.Files[0]]
	d, err := tag.Verify(img.Block(block), block, img.PartitionStart, tag.StrictStrictness(), nil)
	require.NoError(t, err)
	rec, err := inode.Materialize(d, inode.Config{})
	require.NoError(t, err)
	require.Len(t, rec.Extents, 1)
	require.Equal(t, uint32(5000), rec.Extents[0].Length)
	require.Equal(t, uint64(3), rec.BlocksRecorded)
}

func TestBuildRejectsOversizedDescriptor(t *testing.T) {
	_, err := Build(Options{SectorSize: 512, Kind: KindVirtual, PartitionLength: 8,
		Files: make([]File, 6)})
	require.Error(t, err)
}

func TestWriteFileCompressed(t *testing.T) {
	img, err := Build(Options{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "image.udf.zst")
	require.NoError(t, img.WriteFile(path, true))

	src, err := sector.OpenFile(path, 0)
	require.NoError(t, err)
	defer src.Close()
	require.True(t, src.Compressed)
	require.Equal(t, img.Sectors(), src.Sectors())
}

func TestValidate(t *testing.T) {
	path := filepath.Join("testdata", "ground_truth.json")
	records := map[string]*inode.Record{
		"root":  {Mode: os.ModeDir | 0o555, Openable: true},
		"hello": {Mode: 0o444, Size: 5, Openable: true},
	}
	require.NoError(t, Validate(records, path))

	dirs, files := Counts(records)
	require.Equal(t, 1, dirs)
	require.Equal(t, 1, files)

	records["hello"].UID = 7
	records["extra"] = &inode.Record{}
	err := Validate(records, path)
	require.ErrorContains(t, err, "hello: owner 7:0, want 0:0")
	require.ErrorContains(t, err, "extra extra")
}
