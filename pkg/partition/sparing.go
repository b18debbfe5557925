package partition

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/tag"
)

var ErrNotSparingTable = errors.New("not a sparing table")

// SparingEntry relocates the packet starting at Original (a partition block number) to the
// packet starting at Mapped (an absolute block).
type SparingEntry struct {
	Original uint32 `json:"original"`
	Mapped   uint32 `json:"mapped"`
}

// SparingTable holds the relocated packets, sorted by original location.
type SparingTable struct {
	SequenceNumber uint32
	Entries        []SparingEntry
}

// ParseSparingTable decodes a sparing table descriptor (UDF 2.2.12). Entries for available or
// defective spare packets are dropped.
func ParseSparingTable(d *tag.Descriptor) (*SparingTable, error) {
	if d.Identifier() != consts.TAG_IDENT_SPARING_TABLE {
		return nil, fmt.Errorf("block %d holds tag %d: %w", d.Block, d.Identifier(), ErrNotSparingTable)
	}
	data := d.Data
	if len(data) < consts.SPARING_TABLE_HEADER_SIZE {
		return nil, fmt.Errorf("block %d: %w", d.Block, ErrNotSparingTable)
	}
	id, _ := encoding.UnmarshalEntityID(data[16:48])
	if id.IdentifierString() != consts.UDF_ID_SPARING {
		return nil, fmt.Errorf("block %d identifies as %q: %w", d.Block, id.IdentifierString(), ErrNotSparingTable)
	}
	count := int(binary.LittleEndian.Uint16(data[48:50]))
	end := consts.SPARING_TABLE_HEADER_SIZE + count*consts.SPARING_ENTRY_SIZE
	if end > len(data) {
		return nil, fmt.Errorf("block %d: %d entries overrun the sector: %w", d.Block, count, ErrMalformedMap)
	}

	st := &SparingTable{SequenceNumber: binary.LittleEndian.Uint32(data[52:56])}
	for off := consts.SPARING_TABLE_HEADER_SIZE; off < end; off += consts.SPARING_ENTRY_SIZE {
		e := SparingEntry{
			Original: binary.LittleEndian.Uint32(data[off:]),
			Mapped:   binary.LittleEndian.Uint32(data[off+4:]),
		}
		if e.Original >= consts.SPARING_ENTRY_FREE_MIN {
			continue
		}
		st.Entries = append(st.Entries, e)
	}
	sort.Slice(st.Entries, func(i, j int) bool { return st.Entries[i].Original < st.Entries[j].Original })
	return st, nil
}

// Lookup returns the absolute start of the packet that replaced packet, if it was relocated.
func (st *SparingTable) Lookup(packet uint32) (uint32, bool) {
	if st == nil {
		return 0, false
	}
	i := sort.Search(len(st.Entries), func(i int) bool { return st.Entries[i].Original >= packet })
	if i < len(st.Entries) && st.Entries[i].Original == packet {
		return st.Entries[i].Mapped, true
	}
	return 0, false
}

// MarshalSparingTable encodes a sparing table body. Seal it with the sparing table tag.
func MarshalSparingTable(sequence uint32, entries []SparingEntry) []byte {
	b := make([]byte, consts.SPARING_TABLE_HEADER_SIZE+len(entries)*consts.SPARING_ENTRY_SIZE)
	id := encoding.NewEntityID(consts.UDF_ID_SPARING)
	id.Put(b[16:48])
	binary.LittleEndian.PutUint16(b[48:50], uint16(len(entries)))
	binary.LittleEndian.PutUint32(b[52:56], sequence)
	for i, e := range entries {
		off := consts.SPARING_TABLE_HEADER_SIZE + i*consts.SPARING_ENTRY_SIZE
		binary.LittleEndian.PutUint32(b[off:], e.Original)
		binary.LittleEndian.PutUint32(b[off+4:], e.Mapped)
	}
	return b
}
