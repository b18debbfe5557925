package partition

import (
	"encoding/binary"
	"testing"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/tag"
	"github.com/bgrewell/udf-kit/pkg/vat"
	"github.com/stretchr/testify/require"
)

func type1(ref uint16, root, length uint32) *Type1 {
	return &Type1{Geometry: Geometry{ReferenceNumber: ref, Root: root, Length: length}}
}

func TestType1Translation(t *testing.T) {
	tr := NewTranslator([]Map{type1(0, 1000, 500)}, nil)

	pbn, err := tr.ToPhysicalBlock(0, 10)
	require.NoError(t, err)
	require.Equal(t, uint32(1010), pbn)

	pbn, err = tr.ToPhysicalBlock(0, 499)
	require.NoError(t, err)
	require.Equal(t, uint32(1499), pbn)

	_, err = tr.ToPhysicalBlock(0, 500)
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = tr.ToPhysicalBlock(1, 0)
	require.ErrorIs(t, err, ErrOutOfRange, "unknown reference")
}

func TestType1RejectsWraparound(t *testing.T) {
	tr := NewTranslator([]Map{type1(0, 0xFFFFFF00, 0x200)}, nil)
	_, err := tr.ToPhysicalBlock(0, 0x100)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestUnsupportedMap(t *testing.T) {
	tr := NewTranslator([]Map{
		&Unsupported{Geometry: Geometry{Root: 0, Length: 100}, Type: 2, Identifier: consts.UDF_ID_METADATA},
	}, nil)
	_, err := tr.ToPhysicalBlock(0, 1)
	require.ErrorIs(t, err, ErrUnsupportedPartitionMap)
}

func TestSparableTranslation(t *testing.T) {
	s := &Sparable{
		Geometry:     Geometry{Root: 1000, Length: 4096},
		PacketLength: 32,
		Table: &SparingTable{Entries: []SparingEntry{
			{Original: 64, Mapped: 4000},
			{Original: 320, Mapped: 4032},
		}},
	}
	tr := NewTranslator([]Map{s}, nil)

	cases := map[uint32]uint32{
		0:   1000,
		63:  1063,
		64:  4000,
		70:  4006,
		95:  4031,
		96:  1096,
		330: 4042,
	}
	for lbn, want := range cases {
		pbn, err := tr.ToPhysicalBlock(0, lbn)
		require.NoError(t, err, "lbn %d", lbn)
		require.Equal(t, want, pbn, "lbn %d", lbn)
	}

	_, err := tr.ToPhysicalBlock(0, 4096)
	require.ErrorIs(t, err, ErrOutOfRange)

	// A relocation outside the partition is rejected.
	s.Table.Entries = append(s.Table.Entries, SparingEntry{Original: 384, Mapped: 9000})
	_, err = tr.ToPhysicalBlock(0, 390)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func sealedSparingTable(t *testing.T, entries []SparingEntry) *tag.Descriptor {
	t.Helper()
	buf := make([]byte, consts.UDF_SECTOR_SIZE)
	body := MarshalSparingTable(7, entries)
	copy(buf, body)
	require.NoError(t, tag.Seal(buf, consts.TAG_IDENT_SPARING_TABLE, 2, 0, 20, uint16(len(body)-consts.UDF_TAG_SIZE)))
	d, err := tag.Verify(buf, 20, 0, tag.StrictStrictness(), nil)
	require.NoError(t, err)
	return d
}

func TestParseSparingTable(t *testing.T) {
	d := sealedSparingTable(t, []SparingEntry{
		{Original: 320, Mapped: 4032},
		{Original: 0xFFFFFFF0, Mapped: 4064},
		{Original: 64, Mapped: 4000},
		{Original: 0xFFFFFFF1, Mapped: 4096},
	})
	st, err := ParseSparingTable(d)
	require.NoError(t, err)
	require.Equal(t, uint32(7), st.SequenceNumber)
	require.Equal(t, []SparingEntry{{64, 4000}, {320, 4032}}, st.Entries)

	mapped, ok := st.Lookup(320)
	require.True(t, ok)
	require.Equal(t, uint32(4032), mapped)
	_, ok = st.Lookup(96)
	require.False(t, ok)

	var none *SparingTable
	_, ok = none.Lookup(64)
	require.False(t, ok)

	t.Run("wrong identifier", func(t *testing.T) {
		buf := append([]byte(nil), d.Data...)
		copy(buf[17:], "*UDF Sparing Tbl")
		require.NoError(t, tag.Seal(buf, consts.TAG_IDENT_SPARING_TABLE, 2, 0, 20, d.Tag.DescriptorCRCLength))
		_, err := ParseSparingTable(&tag.Descriptor{Tag: d.Tag, Block: 20, Data: buf})
		require.ErrorIs(t, err, ErrNotSparingTable)
	})

	t.Run("entries overrun", func(t *testing.T) {
		buf := append([]byte(nil), d.Data...)
		binary.LittleEndian.PutUint16(buf[48:50], 1000)
		_, err := ParseSparingTable(&tag.Descriptor{Tag: d.Tag, Block: 20, Data: buf})
		require.ErrorIs(t, err, ErrMalformedMap)
	})
}

func inlineVAT(t *testing.T, entries []uint32) *vat.Table {
	t.Helper()
	b := make([]byte, 4*len(entries)+consts.VAT15_TRAILER_SIZE)
	for i, e := range entries {
		binary.LittleEndian.PutUint32(b[4*i:], e)
	}
	copy(b[4*len(entries)+1:], consts.UDF_ID_VAT15)
	table, err := vat.NewInlineTable(b, vat.Format15)
	require.NoError(t, err)
	return table
}

func TestVirtualTranslation(t *testing.T) {
	v := &Virtual{
		Geometry: Geometry{ReferenceNumber: 1, Root: 2000, Length: 100},
		Table:    inlineVAT(t, []uint32{40, 41, consts.VAT_ENTRY_UNUSED, 500}),
		Cache:    vat.NewCache(64, 8),
	}
	tr := NewTranslator([]Map{type1(0, 2000, 100), v}, nil)

	pbn, err := tr.ToPhysicalBlock(1, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(2041), pbn)
	require.Equal(t, uint64(1), v.Cache.Stats().Misses)

	pbn, err = tr.ToPhysicalBlock(1, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(2041), pbn)
	st := v.Cache.Stats()
	require.Equal(t, uint64(1), st.Hits)
	require.Equal(t, uint64(1), st.Inserts)

	_, err = tr.ToPhysicalBlock(1, 2)
	require.ErrorIs(t, err, ErrOutOfRange, "unused entry")
	require.ErrorIs(t, err, vat.ErrUnusedEntry)

	_, err = tr.ToPhysicalBlock(1, 3)
	require.ErrorIs(t, err, ErrOutOfRange, "entry beyond the partition")

	_, err = tr.ToPhysicalBlock(1, 4)
	require.ErrorIs(t, err, ErrOutOfRange, "beyond the table")
	require.Equal(t, uint64(1), v.Cache.Stats().Inserts, "failed translations are not cached")
}

func TestParseMapTable(t *testing.T) {
	var table []byte
	table = append(table, MarshalType1(1, 0)...)
	table = append(table, MarshalType2(consts.UDF_ID_SPARABLE, 1, 0, &Sparable{
		PacketLength:   32,
		TableSize:      2048,
		TableLocations: []uint32{600, 700},
	})...)
	table = append(table, MarshalType2(consts.UDF_ID_VIRTUAL, 1, 0, nil)...)
	table = append(table, MarshalType2(consts.UDF_ID_METADATA, 1, 0, nil)...)

	maps, err := ParseMapTable(table, 4)
	require.NoError(t, err)
	require.Len(t, maps, 4)

	require.Equal(t, KindType1, maps[0].Kind())
	require.Equal(t, uint16(1), maps[0].Base().VolumeSequenceNumber)

	sp, ok := maps[1].(*Sparable)
	require.True(t, ok)
	require.Equal(t, uint16(1), sp.ReferenceNumber)
	require.Equal(t, uint16(32), sp.PacketLength)
	require.Equal(t, uint32(2048), sp.TableSize)
	require.Equal(t, []uint32{600, 700}, sp.TableLocations)

	require.IsType(t, &Virtual{}, maps[2])
	require.Equal(t, uint16(2), maps[2].Base().ReferenceNumber)

	un, ok := maps[3].(*Unsupported)
	require.True(t, ok)
	require.Equal(t, consts.UDF_ID_METADATA, un.Identifier)
	require.Equal(t, "unsupported", un.Kind().String())

	_, err = ParseMapTable(table, 5)
	require.ErrorIs(t, err, ErrMalformedMap)

	_, err = ParseMapTable([]byte{1, 0, 0, 0, 0, 0}, 1)
	require.ErrorIs(t, err, ErrMalformedMap)
}
