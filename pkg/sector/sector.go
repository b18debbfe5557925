// Package sector provides the block sources the rest of the module reads from. A Source hands
// out whole sectors by absolute block number and reports short reads as errors.
package sector

import (
	"errors"
	"fmt"
	"io"
)

// ErrShortRead is returned when fewer bytes than one sector could be read.
var ErrShortRead = errors.New("short sector read")

// Source supplies fixed-size sectors by absolute block number. The returned buffer belongs to
// the caller and is exactly SectorSize bytes long.
type Source interface {
	ReadSector(block uint32) ([]byte, error)
	SectorSize() int
}

// SizedSource is a Source that knows how many sectors it holds.
type SizedSource interface {
	Source
	Sectors() uint32
}

// ReaderAtSource adapts an io.ReaderAt (an image file, a bytes.Reader) to a Source.
type ReaderAtSource struct {
	r          io.ReaderAt
	sectorSize int
	size       int64
}

// NewReaderAtSource creates a Source over r. size is the number of bytes available in r, or a
// negative value when unknown.
func NewReaderAtSource(r io.ReaderAt, sectorSize int, size int64) (*ReaderAtSource, error) {
	if sectorSize <= 0 || sectorSize&(sectorSize-1) != 0 {
		return nil, fmt.Errorf("sector size %d is not a positive power of two", sectorSize)
	}
	return &ReaderAtSource{r: r, sectorSize: sectorSize, size: size}, nil
}

// ReadSector reads one sector.
func (s *ReaderAtSource) ReadSector(block uint32) ([]byte, error) {
	buf := make([]byte, s.sectorSize)
	off := int64(block) * int64(s.sectorSize)
	n, err := s.r.ReadAt(buf, off)
	if n == len(buf) {
		// io.ReaderAt may return io.EOF alongside a full read of the final sector.
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("block %d: read %d of %d bytes: %w", block, n, len(buf), ErrShortRead)
	}
	return nil, fmt.Errorf("block %d: %w", block, err)
}

// SectorSize returns the sector size in bytes.
func (s *ReaderAtSource) SectorSize() int {
	return s.sectorSize
}

// Sectors returns the number of whole sectors in the source, or 0 when the size is unknown.
func (s *ReaderAtSource) Sectors() uint32 {
	if s.size < 0 {
		return 0
	}
	n := s.size / int64(s.sectorSize)
	if n > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n)
}
