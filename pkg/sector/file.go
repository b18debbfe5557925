package sector

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/klauspost/compress/zstd"
)

// zstdFrameMagic starts every zstd frame.
var zstdFrameMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// FileSource is a Source backed by an image file, a zstd-compressed image or a block device.
type FileSource struct {
	*ReaderAtSource
	file       *os.File
	Path       string
	Compressed bool
	Device     bool
}

// OpenFile opens path as a sector source. A sectorSize of 0 selects the device's logical
// sector size for block devices and the UDF default otherwise. Compressed images are
// decompressed into memory, so they are only suitable for small images and fixtures.
func OpenFile(path string, sectorSize int) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	fs := &FileSource{file: f, Path: path}
	isDevice, deviceSectorSize, err := deviceInfo(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to inspect %s: %w", path, err)
	}
	fs.Device = isDevice
	if sectorSize == 0 {
		sectorSize = consts.UDF_SECTOR_SIZE
		if isDevice && deviceSectorSize > 0 {
			sectorSize = deviceSectorSize
		}
	}

	var r io.ReaderAt = f
	var size int64
	if isDevice {
		if size, err = f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to size device %s: %w", path, err)
		}
	} else {
		br := bufio.NewReader(f)
		magic, _ := br.Peek(len(zstdFrameMagic))
		if bytes.Equal(magic, zstdFrameMagic) {
			data, err := decompress(br)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
			}
			fs.file = nil
			fs.Compressed = true
			r = bytes.NewReader(data)
			size = int64(len(data))
		} else {
			info, err := f.Stat()
			if err != nil {
				f.Close()
				return nil, err
			}
			size = info.Size()
		}
	}

	src, err := NewReaderAtSource(r, sectorSize, size)
	if err != nil {
		fs.Close()
		return nil, err
	}
	fs.ReaderAtSource = src
	return fs, nil
}

func decompress(r io.Reader) ([]byte, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

// Close releases the underlying file, if any.
func (s *FileSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
