package vat

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/cs0"
	"github.com/bgrewell/udf-kit/pkg/sector"
)

var (
	ErrEntryOutOfRange = errors.New("vat entry out of range")
	ErrUnusedEntry     = errors.New("vat entry unused")
	ErrMalformed       = errors.New("malformed vat")
)

// Format is the on-disk layout of the table.
type Format int

const (
	// Format15 is the UDF 1.50 table: entries first, then a regid and the previous VAT
	// location.
	Format15 Format = iota
	// Format20 is the UDF 2.00 table: a header, then the entries.
	Format20
)

func (f Format) String() string {
	if f == Format20 {
		return "2.00"
	}
	return "1.50"
}

// FormatForFileType returns the table format recorded under an ICB file type.
func FormatForFileType(fileType uint8) (Format, bool) {
	switch fileType {
	case consts.FILE_TYPE_VAT20:
		return Format20, true
	case consts.FILE_TYPE_UNSPECIFIED:
		return Format15, true
	}
	return 0, false
}

// Extent is a run of the VAT file recorded at an absolute block.
type Extent struct {
	Block  uint32
	Length uint32
}

// Table is the on-disk VAT. It maps virtual block numbers to blocks of the underlying
// partition. A Table is immutable and safe for concurrent use.
type Table struct {
	Format Format
	// Entries is the number of virtual blocks the table maps.
	Entries uint32
	// PreviousVAT is the ICB location of the table this one superseded, or 0xFFFFFFFF.
	PreviousVAT             uint32
	LogicalVolumeIdentifier string
	Files                   uint32
	Directories             uint32

	src        sector.Source
	inline     []byte
	extents    []Extent
	entryStart uint64
}

// NewInlineTable builds a table from the data embedded in the VAT file entry.
func NewInlineTable(data []byte, format Format) (*Table, error) {
	t := &Table{Format: format, inline: append([]byte(nil), data...)}
	if err := t.init(uint64(len(data))); err != nil {
		return nil, err
	}
	return t, nil
}

// NewTable builds a table whose contents are recorded in extents of src. size is the
// information length of the VAT file.
func NewTable(src sector.Source, extents []Extent, size uint64, format Format) (*Table, error) {
	var recorded uint64
	for _, e := range extents {
		recorded += uint64(e.Length)
	}
	if recorded < size {
		return nil, fmt.Errorf("extents hold %d of %d bytes: %w", recorded, size, ErrMalformed)
	}
	t := &Table{Format: format, src: src, extents: append([]Extent(nil), extents...)}
	if err := t.init(size); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) init(size uint64) error {
	switch t.Format {
	case Format20:
		if size < consts.VAT20_MIN_HEADER_SIZE {
			return fmt.Errorf("%d byte table has no room for a header: %w", size, ErrMalformed)
		}
		hdr := make([]byte, consts.VAT20_MIN_HEADER_SIZE)
		if err := t.readAt(hdr, 0); err != nil {
			return err
		}
		headerLen := uint64(binary.LittleEndian.Uint16(hdr[0:2]))
		if headerLen < consts.VAT20_MIN_HEADER_SIZE || headerLen > size {
			return fmt.Errorf("header length %d in %d byte table: %w", headerLen, size, ErrMalformed)
		}
		// The identifier is informational; an undecodable one is left empty.
		t.LogicalVolumeIdentifier, _ = cs0.DecodeDString(hdr[4:132])
		t.PreviousVAT = binary.LittleEndian.Uint32(hdr[132:136])
		t.Files = binary.LittleEndian.Uint32(hdr[136:140])
		t.Directories = binary.LittleEndian.Uint32(hdr[140:144])
		t.entryStart = headerLen
		t.Entries = uint32((size - headerLen) / 4)
	default:
		if size < consts.VAT15_TRAILER_SIZE {
			return fmt.Errorf("%d byte table has no room for a trailer: %w", size, ErrMalformed)
		}
		trailer := make([]byte, consts.VAT15_TRAILER_SIZE)
		if err := t.readAt(trailer, size-consts.VAT15_TRAILER_SIZE); err != nil {
			return err
		}
		if id := string(trailer[1:1+len(consts.UDF_ID_VAT15)]); id != consts.UDF_ID_VAT15 {
			return fmt.Errorf("trailer identifier %q: %w", id, ErrMalformed)
		}
		t.PreviousVAT = binary.LittleEndian.Uint32(trailer[32:36])
		t.Entries = uint32((size - consts.VAT15_TRAILER_SIZE) / 4)
	}
	return nil
}

// Entry returns the block of the underlying partition recorded for the virtual block lbn.
// It reads at most two sectors and takes no locks.
func (t *Table) Entry(lbn uint32) (uint32, error) {
	if lbn >= t.Entries {
		return 0, fmt.Errorf("block %d of %d: %w", lbn, t.Entries, ErrEntryOutOfRange)
	}
	var b [4]byte
	if err := t.readAt(b[:], t.entryStart+4*uint64(lbn)); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(b[:])
	if v == consts.VAT_ENTRY_UNUSED {
		return 0, fmt.Errorf("block %d: %w", lbn, ErrUnusedEntry)
	}
	return v, nil
}

// readAt fills p from the VAT file starting at off.
func (t *Table) readAt(p []byte, off uint64) error {
	if t.inline != nil {
		if off+uint64(len(p)) > uint64(len(t.inline)) {
			return fmt.Errorf("inline table read at %d: %w", off, ErrMalformed)
		}
		copy(p, t.inline[off:])
		return nil
	}

	size := uint64(t.src.SectorSize())
	var base uint64
	for _, e := range t.extents {
		for len(p) > 0 && off >= base && off < base+uint64(e.Length) {
			rel := off - base
			block := e.Block + uint32(rel/size)
			data, err := t.src.ReadSector(block)
			if err != nil {
				return fmt.Errorf("failed to read vat block %d: %w", block, err)
			}
			in := rel % size
			n := copy(p, data[in:min(size, uint64(e.Length)-rel+in)])
			p = p[n:]
			off += uint64(n)
		}
		if len(p) == 0 {
			return nil
		}
		base += uint64(e.Length)
	}
	return fmt.Errorf("read past the recorded extents at %d: %w", off, ErrMalformed)
}
