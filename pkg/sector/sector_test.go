package sector

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func image(sectors int, sectorSize int) []byte {
	data := make([]byte, sectors*sectorSize)
	for i := 0; i < sectors; i++ {
		data[i*sectorSize] = byte(i + 1)
	}
	return data
}

func TestReaderAtSource(t *testing.T) {
	data := image(4, 512)
	src, err := NewReaderAtSource(bytes.NewReader(data), 512, int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, uint32(4), src.Sectors())
	require.Equal(t, 512, src.SectorSize())

	t.Run("reads the last sector", func(t *testing.T) {
		buf, err := src.ReadSector(3)
		require.NoError(t, err)
		require.Len(t, buf, 512)
		require.Equal(t, byte(4), buf[0])
	})

	t.Run("past the end is a short read", func(t *testing.T) {
		_, err := src.ReadSector(4)
		require.ErrorIs(t, err, ErrShortRead)
	})

	t.Run("buffers are not shared", func(t *testing.T) {
		a, err := src.ReadSector(1)
		require.NoError(t, err)
		a[0] = 0xFF
		b, err := src.ReadSector(1)
		require.NoError(t, err)
		require.Equal(t, byte(2), b[0])
	})
}

func TestReaderAtSourcePartialSector(t *testing.T) {
	data := image(2, 512)[:700]
	src, err := NewReaderAtSource(bytes.NewReader(data), 512, int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, uint32(1), src.Sectors())

	_, err = src.ReadSector(1)
	require.ErrorIs(t, err, ErrShortRead)
}

func TestNewReaderAtSourceRejectsBadSectorSize(t *testing.T) {
	for _, size := range []int{0, -2048, 1000} {
		_, err := NewReaderAtSource(bytes.NewReader(nil), size, 0)
		require.Error(t, err, "size %d", size)
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	data := image(8, 2048)

	t.Run("plain image", func(t *testing.T) {
		path := filepath.Join(dir, "plain.udf")
		require.NoError(t, os.WriteFile(path, data, 0o644))

		fs, err := OpenFile(path, 0)
		require.NoError(t, err)
		defer fs.Close()

		require.False(t, fs.Compressed)
		require.False(t, fs.Device)
		require.Equal(t, 2048, fs.SectorSize())
		require.Equal(t, uint32(8), fs.Sectors())

		buf, err := fs.ReadSector(7)
		require.NoError(t, err)
		require.Equal(t, byte(8), buf[0])
	})

	t.Run("zstd image", func(t *testing.T) {
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		compressed := enc.EncodeAll(data, nil)
		require.NoError(t, enc.Close())

		path := filepath.Join(dir, "image.udf.zst")
		require.NoError(t, os.WriteFile(path, compressed, 0o644))

		fs, err := OpenFile(path, 2048)
		require.NoError(t, err)
		defer fs.Close()

		require.True(t, fs.Compressed)
		require.Equal(t, uint32(8), fs.Sectors())

		buf, err := fs.ReadSector(5)
		require.NoError(t, err)
		require.Equal(t, byte(6), buf[0])
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := OpenFile(filepath.Join(dir, "absent"), 0)
		require.Error(t, err)
	})
}
