package volume

import (
	"errors"
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/descriptor"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/info"
	"github.com/bgrewell/udf-kit/pkg/inode"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/partition"
	"github.com/bgrewell/udf-kit/pkg/vat"
)

const (
	// maxSequenceDescriptors bounds the descriptors read from one volume descriptor sequence,
	// pointers included.
	maxSequenceDescriptors = 256
	// maxSequencePointers bounds how many volume descriptor pointers are followed.
	maxSequencePointers = 8
)

// readBytes returns n bytes starting at byte offset off of the source.
func (v *Volume) readBytes(off uint64, n int) ([]byte, error) {
	size := uint64(v.src.SectorSize())
	out := make([]byte, 0, n)
	for len(out) < n {
		block := off / size
		data, err := v.src.ReadSector(uint32(block))
		if err != nil {
			return nil, err
		}
		in := off % size
		take := min(uint64(n-len(out)), size-in)
		out = append(out, data[in:in+take]...)
		off += take
	}
	return out, nil
}

// checkVRS looks for an NSR descriptor in the extended area of the Volume Recognition
// Sequence. Records are 2048 bytes apart, or one block apart on media with larger blocks.
func (v *Volume) checkVRS() error {
	step := uint64(max(consts.UDF_VRS_RECORD_SIZE, v.src.SectorSize()))
	inExtended := false
	for i := uint64(0); i < consts.UDF_VRS_MAX_RECORDS; i++ {
		off := consts.UDF_VRS_OFFSET + i*step
		rec, err := v.readBytes(off, 7)
		if err != nil {
			return fmt.Errorf("record at byte %d: %w: %w", off, ErrNotUDF, err)
		}
		id := string(rec[1:6])
		switch id {
		case consts.UDF_STD_IDENTIFIER_BEA01:
			inExtended = true
		case consts.UDF_STD_IDENTIFIER_NSR02, consts.UDF_STD_IDENTIFIER_NSR03:
			if inExtended {
				v.layout.Add(info.Region{
					Category: info.CategoryRecognition,
					Name:     id,
					Block:    uint32(off / uint64(v.src.SectorSize())),
					Length:   consts.UDF_VRS_RECORD_SIZE,
				})
				v.log.Debug("found volume recognition sequence", "identifier", id, "offset", off)
				return nil
			}
		case consts.UDF_STD_IDENTIFIER_TEA01:
			inExtended = false
		case consts.UDF_STD_IDENTIFIER_CD001, consts.UDF_STD_IDENTIFIER_BOOT2, "CDW02":
		default:
			return fmt.Errorf("record at byte %d identifies as %q: %w", off, id, ErrNotUDF)
		}
	}
	return ErrNotUDF
}

// anchorBlocks lists where anchors may be recorded, in the order they are tried.
func (v *Volume) anchorBlocks() []uint32 {
	blocks := []uint32{consts.UDF_ANCHOR_BLOCK}
	if last := v.sectors; last > 0 {
		last--
		if last >= consts.UDF_ANCHOR_BLOCK {
			blocks = append(blocks, last-consts.UDF_ANCHOR_BLOCK)
		}
		blocks = append(blocks, last)
	}
	blocks = append(blocks, 2*consts.UDF_ANCHOR_BLOCK)

	seen := make(map[uint32]bool)
	out := blocks[:0]
	for _, b := range blocks {
		if seen[b] || (v.sectors > 0 && b >= v.sectors) {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}

func (v *Volume) findAnchor() (*descriptor.AnchorVolumeDescriptorPointer, error) {
	var errs []error
	for _, block := range v.anchorBlocks() {
		d, err := v.ReadTagged(block, 0)
		if err == nil && d.Identifier() != consts.TAG_IDENT_ANCHOR_VOLUME {
			err = fmt.Errorf("block %d holds tag %d: %w", block, d.Identifier(), descriptor.ErrUnexpectedType)
		}
		if err != nil {
			v.log.Debug("no anchor", "block", block, "error", err)
			errs = append(errs, err)
			continue
		}
		avdp, err := descriptor.UnmarshalAnchorVolumeDescriptorPointer(d.Data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		v.layout.Add(info.Region{
			Category: info.CategoryAnchor,
			Name:     info.TagName(consts.TAG_IDENT_ANCHOR_VOLUME),
			Block:    block,
			Length:   uint64(consts.UDF_TAG_SIZE) + uint64(d.Tag.DescriptorCRCLength),
			Version:  d.Tag.DescriptorVersion,
		})
		return avdp, nil
	}
	if len(errs) == 0 {
		return nil, ErrNoAnchor
	}
	return nil, fmt.Errorf("%w: %w", ErrNoAnchor, errors.Join(errs...))
}

// readSequence reads a volume descriptor sequence, following pointers, until a terminating
// descriptor, an unrecorded block or the end of the extent.
func (v *Volume) readSequence(extent encoding.ExtentAD) (*descriptor.VolumeDescriptorSet, error) {
	set := descriptor.NewVolumeDescriptorSet()
	size := uint32(v.src.SectorSize())
	visited := make(map[uint32]bool)
	read, hops := 0, 0

	for extent.Length > 0 {
		if visited[extent.Location] {
			return set, fmt.Errorf("volume descriptor pointer loops back to block %d: %w", extent.Location, ErrIncompleteSequence)
		}
		visited[extent.Location] = true

		blocks := (extent.Length + size - 1) / size
		next := encoding.ExtentAD{}
	sequence:
		for i := uint32(0); i < blocks; i++ {
			if read++; read > maxSequenceDescriptors {
				return set, fmt.Errorf("more than %d descriptors: %w", maxSequenceDescriptors, ErrIncompleteSequence)
			}
			block := extent.Location + i
			d, err := v.ReadTagged(block, 0)
			if err != nil {
				return set, fmt.Errorf("volume descriptor sequence: %w", err)
			}
			if d.Identifier() == 0 && d.Tag.DescriptorCRCLength == 0 {
				break
			}
			vd, err := descriptor.Parse(d)
			if err != nil {
				return set, fmt.Errorf("block %d: %w", block, err)
			}
			v.layout.Add(info.Region{
				Category: info.CategoryDescriptor,
				Name:     info.TagName(d.Identifier()),
				Block:    block,
				Length:   uint64(consts.UDF_TAG_SIZE) + uint64(d.Tag.DescriptorCRCLength),
				Version:  d.Tag.DescriptorVersion,
				Detail:   fmt.Sprintf("sequence number %d", vd.SequenceNumber()),
			})
			set.Add(vd)

			switch p := vd.(type) {
			case *descriptor.VolumeDescriptorPointer:
				if hops++; hops > maxSequencePointers {
					return set, fmt.Errorf("more than %d volume descriptor pointers: %w", maxSequencePointers, ErrIncompleteSequence)
				}
				next = p.NextVolumeDescriptorSequence
				break sequence
			case *descriptor.TerminatingDescriptor:
				return set, nil
			}
		}
		extent = next
	}
	return set, nil
}

// buildMaps decodes the partition maps, or builds them from configuration, and fills in their
// geometry from the partition descriptors.
func (v *Volume) buildMaps() ([]partition.Map, error) {
	var (
		maps []partition.Map
		err  error
	)
	if len(v.opts.PartitionMaps) > 0 {
		maps, err = mapsFromSpecs(v.opts.PartitionMaps)
	} else {
		maps, err = partition.ParseMapTable(v.set.Logical.PartitionMaps, v.set.Logical.NumberOfPartitionMaps)
	}
	if err != nil {
		return nil, err
	}

	for _, m := range maps {
		g := m.Base()
		if g.Length != 0 {
			continue
		}
		pd, ok := v.set.Partition(g.PartitionNumber)
		if !ok {
			if m.Kind() == partition.KindUnsupported {
				continue
			}
			return nil, fmt.Errorf("map %d refers to partition %d: %w", g.ReferenceNumber, g.PartitionNumber, ErrPartitionNotFound)
		}
		g.Root = pd.PartitionStartingLocation
		g.Length = pd.PartitionLength
		v.layout.Add(info.Region{
			Category: info.CategoryPartition,
			Name:     fmt.Sprintf("Partition %d (%s map, reference %d)", g.PartitionNumber, m.Kind(), g.ReferenceNumber),
			Block:    g.Root,
			Length:   uint64(g.Length) * uint64(v.src.SectorSize()),
			Detail:   pd.PartitionContents.IdentifierString(),
		})
	}
	return maps, nil
}

func mapsFromSpecs(specs []option.MapSpec) ([]partition.Map, error) {
	maps := make([]partition.Map, 0, len(specs))
	for i, s := range specs {
		g := partition.Geometry{
			ReferenceNumber:      uint16(i),
			PartitionNumber:      s.PartitionNumber,
			VolumeSequenceNumber: s.VolumeSequenceNumber,
			Root:                 s.Root,
			Length:               s.Length,
		}
		switch s.Kind {
		case "type1", "":
			maps = append(maps, &partition.Type1{Geometry: g})
		case "sparable":
			if s.PacketLength == 0 {
				return nil, fmt.Errorf("map %d: sparable map with zero packet length: %w", i, partition.ErrMalformedMap)
			}
			maps = append(maps, &partition.Sparable{
				Geometry:       g,
				PacketLength:   s.PacketLength,
				TableSize:      s.SparingTableSize,
				TableLocations: append([]uint32(nil), s.SparingTables...),
			})
		case "virtual":
			maps = append(maps, &partition.Virtual{Geometry: g})
		default:
			return nil, fmt.Errorf("map %d has kind %q: %w", i, s.Kind, partition.ErrUnsupportedPartitionMap)
		}
	}
	return maps, nil
}

// loadTables loads the sparing tables and VATs the maps need.
func (v *Volume) loadTables(maps []partition.Map) error {
	for _, m := range maps {
		switch pm := m.(type) {
		case *partition.Sparable:
			pm.Table = v.loadSparingTable(pm)
		case *partition.Virtual:
			pm.Cache = vat.NewCache(v.opts.VATCacheSlots, 0)
			table, err := v.loadVAT(pm, maps)
			if err != nil {
				return err
			}
			pm.Table = table
		}
	}
	return nil
}

// loadSparingTable returns the table with the highest sequence number among the recorded
// copies. A map without a readable table relocates nothing.
func (v *Volume) loadSparingTable(s *partition.Sparable) *partition.SparingTable {
	var best *partition.SparingTable
	for _, loc := range s.TableLocations {
		d, err := v.ReadTagged(loc, 0)
		if err != nil {
			v.log.Warn("unreadable sparing table", "block", loc, "error", err)
			continue
		}
		st, err := partition.ParseSparingTable(d)
		if err != nil {
			v.log.Warn("invalid sparing table", "block", loc, "error", err)
			continue
		}
		v.layout.Add(info.Region{
			Category: info.CategorySparing,
			Name:     info.TagName(consts.TAG_IDENT_SPARING_TABLE),
			Block:    loc,
			Length:   uint64(consts.UDF_TAG_SIZE) + uint64(d.Tag.DescriptorCRCLength),
			Version:  d.Tag.DescriptorVersion,
			Detail:   fmt.Sprintf("%d relocated packets", len(st.Entries)),
		})
		if best == nil || st.SequenceNumber > best.SequenceNumber {
			best = st
		}
	}
	if best == nil {
		v.log.Warn("sparable partition has no usable sparing table", "partition", s.PartitionNumber)
	}
	return best
}

// vatCandidates lists the blocks that may hold the VAT file entry, most recent first.
func (v *Volume) vatCandidates() ([]uint32, error) {
	if v.opts.VATBlock != 0 {
		return []uint32{v.opts.VATBlock}, nil
	}
	if v.sectors == 0 {
		return nil, fmt.Errorf("source size is unknown and no vat block is configured: %w", ErrNoVAT)
	}
	var blocks []uint32
	for i := uint32(0); i < consts.VAT_SEARCH_BLOCKS && i < v.sectors; i++ {
		blocks = append(blocks, v.sectors-1-i)
	}
	return blocks, nil
}

// loadVAT finds the VAT file entry and opens the table it records. The entry lives in the
// physical partition the virtual map shares a partition number with.
func (v *Volume) loadVAT(vm *partition.Virtual, maps []partition.Map) (*vat.Table, error) {
	var physical partition.Map
	for _, m := range maps {
		if m.Kind() != partition.KindVirtual && m.Base().PartitionNumber == vm.PartitionNumber {
			physical = m
			break
		}
	}
	if physical == nil {
		return nil, fmt.Errorf("virtual map %d has no physical partition %d: %w", vm.ReferenceNumber, vm.PartitionNumber, ErrPartitionNotFound)
	}
	pg := physical.Base()

	candidates, err := v.vatCandidates()
	if err != nil {
		return nil, err
	}
	for _, block := range candidates {
		if block < pg.Root {
			break
		}
		d, err := v.ReadTagged(block, pg.Root)
		if err != nil {
			continue
		}
		fe, err := inode.ParseFileEntry(d)
		if err != nil {
			continue
		}
		format, ok := vat.FormatForFileType(fe.ICBTag.FileType)
		if !ok {
			continue
		}
		table, err := v.openVAT(fe, block, format, pg.ReferenceNumber)
		if err != nil {
			v.log.Debug("rejected vat candidate", "block", block, "error", err)
			continue
		}
		v.vatBlock = block
		v.layout.Add(info.Region{
			Category: info.CategoryVAT,
			Name:     "Virtual Allocation Table " + format.String(),
			Block:    block,
			Length:   fe.InformationLength,
			Version:  d.Tag.DescriptorVersion,
			Detail:   fmt.Sprintf("%d entries", table.Entries),
		})
		v.log.Debug("found vat", "block", block, "format", format.String(), "entries", table.Entries)
		return table, nil
	}
	return nil, ErrNoVAT
}

func (v *Volume) openVAT(fe *inode.FileEntry, block uint32, format vat.Format, ref uint16) (*vat.Table, error) {
	r := inode.FromEntry(fe, block, inode.Config{PartitionReference: ref})
	if r.AllocationType == consts.ICB_FLAG_AD_IN_ICB {
		data := r.InlineData
		if fe.InformationLength < uint64(len(data)) {
			data = data[:fe.InformationLength]
		}
		return vat.NewInlineTable(data, format)
	}

	extents := make([]vat.Extent, 0, len(r.Extents))
	for _, e := range r.Extents {
		if e.Type != encoding.ExtentRecordedAllocated {
			return nil, fmt.Errorf("vat extent of type %s: %w", e.Type, vat.ErrMalformed)
		}
		if m, ok := v.translator.Map(e.Location.PartitionReferenceNumber); !ok || m.Kind() == partition.KindVirtual {
			return nil, fmt.Errorf("vat extent in partition %d: %w", e.Location.PartitionReferenceNumber, vat.ErrMalformed)
		}
		pbn, err := v.ToPhysicalBlock(e.Location.PartitionReferenceNumber, e.Location.LogicalBlockNumber)
		if err != nil {
			return nil, err
		}
		extents = append(extents, vat.Extent{Block: pbn, Length: e.Length})
	}
	return vat.NewTable(v.src, extents, fe.InformationLength, format)
}

func (v *Volume) readFileSet() error {
	loc := v.set.Logical.FileSetDescriptor.Location
	d, err := v.ReadDescriptor(loc)
	if err != nil {
		return fmt.Errorf("file set descriptor at %s: %w", loc, err)
	}
	fsd, err := descriptor.ParseFileSetDescriptor(d)
	if err != nil {
		return fmt.Errorf("file set descriptor at %s: %w", loc, err)
	}
	v.fileSet = fsd
	v.root = fsd.RootDirectoryICB.Location
	v.layout.Add(info.Region{
		Category: info.CategoryFileSet,
		Name:     info.TagName(consts.TAG_IDENT_FILE_SET),
		Block:    d.Block,
		Length:   uint64(consts.UDF_TAG_SIZE) + uint64(d.Tag.DescriptorCRCLength),
		Version:  d.Tag.DescriptorVersion,
		Detail:   fmt.Sprintf("file set %q at %s", fsd.FileSetIdentifier, loc),
	})
	if root, err := v.ToPhysicalBlock(v.root.PartitionReferenceNumber, v.root.LogicalBlockNumber); err == nil {
		v.layout.Add(info.Region{
			Category: info.CategoryFileEntry,
			Name:     "Root Directory",
			Block:    root,
			Length:   uint64(v.src.SectorSize()),
			Detail:   v.root.String(),
		})
	}
	return nil
}
