package info

import (
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/sector"
	"github.com/bgrewell/udf-kit/pkg/tag"
)

var tagNames = map[uint16]string{
	consts.TAG_IDENT_SPARING_TABLE:        "Sparing Table",
	consts.TAG_IDENT_PRIMARY_VOLUME:       "Primary Volume Descriptor",
	consts.TAG_IDENT_ANCHOR_VOLUME:        "Anchor Volume Descriptor Pointer",
	consts.TAG_IDENT_VOLUME_POINTER:       "Volume Descriptor Pointer",
	consts.TAG_IDENT_IMPLEMENTATION_USE:   "Implementation Use Volume Descriptor",
	consts.TAG_IDENT_PARTITION:            "Partition Descriptor",
	consts.TAG_IDENT_LOGICAL_VOLUME:       "Logical Volume Descriptor",
	consts.TAG_IDENT_UNALLOCATED_SPACE:    "Unallocated Space Descriptor",
	consts.TAG_IDENT_TERMINATING:          "Terminating Descriptor",
	consts.TAG_IDENT_LOGICAL_VOLUME_INTEG: "Logical Volume Integrity Descriptor",
	consts.TAG_IDENT_FILE_SET:             "File Set Descriptor",
	consts.TAG_IDENT_FILE_IDENTIFIER:      "File Identifier Descriptor",
	consts.TAG_IDENT_ALLOCATION_EXTENT:    "Allocation Extent Descriptor",
	consts.TAG_IDENT_INDIRECT_ENTRY:       "Indirect Entry",
	consts.TAG_IDENT_TERMINAL_ENTRY:       "Terminal Entry",
	consts.TAG_IDENT_FILE_ENTRY:           "File Entry",
	consts.TAG_IDENT_EXTENDED_ATTR_HEADER: "Extended Attribute Header Descriptor",
	consts.TAG_IDENT_UNALLOCATED_SPACE_E:  "Unallocated Space Entry",
	consts.TAG_IDENT_SPACE_BITMAP:         "Space Bitmap Descriptor",
	consts.TAG_IDENT_PARTITION_INTEGRITY:  "Partition Integrity Entry",
	consts.TAG_IDENT_EXTENDED_FILE_ENTRY:  "Extended File Entry",
}

// TagName returns the name of the descriptor recorded under a tag identifier.
func TagName(ident uint16) string {
	if name, ok := tagNames[ident]; ok {
		return name
	}
	return fmt.Sprintf("Tag %d", ident)
}

func categoryOf(ident uint16) string {
	switch ident {
	case consts.TAG_IDENT_ANCHOR_VOLUME:
		return CategoryAnchor
	case consts.TAG_IDENT_SPARING_TABLE:
		return CategorySparing
	case consts.TAG_IDENT_FILE_SET:
		return CategoryFileSet
	case consts.TAG_IDENT_FILE_ENTRY, consts.TAG_IDENT_EXTENDED_FILE_ENTRY:
		return CategoryFileEntry
	}
	if ident <= consts.TAG_IDENT_LOGICAL_VOLUME_INTEG {
		return CategoryDescriptor
	}
	return CategoryOther
}

// Scan reads sectors [0, sectors) and records every block that holds a valid descriptor with
// a known tag identifier. Tag locations are not checked, so descriptors recorded inside
// partitions are found too. Unreadable sectors end the scan with an error.
func Scan(src sector.Source, sectors uint32, s tag.Strictness, progress option.ProgressCallback) (*Layout, error) {
	s.Location = tag.LocationSkip
	l := NewLayout(src.SectorSize(), sectors)
	found := 0
	for block := uint32(0); block < sectors; block++ {
		data, err := src.ReadSector(block)
		if err != nil {
			return l, fmt.Errorf("scan stopped: %w", err)
		}
		if d, err := tag.Verify(data, block, 0, s, nil); err == nil && d.Tag.DescriptorCRCLength > 0 {
			if _, known := tagNames[d.Identifier()]; known {
				found++
				l.Add(Region{
					Category: categoryOf(d.Identifier()),
					Name:     TagName(d.Identifier()),
					Block:    block,
					Length:   uint64(consts.UDF_TAG_SIZE) + uint64(d.Tag.DescriptorCRCLength),
					Version:  d.Tag.DescriptorVersion,
					Detail:   fmt.Sprintf("tag location %d, serial %d", d.Tag.Location, d.Tag.SerialNumber),
				})
			}
		}
		if progress != nil {
			progress(block, sectors, found)
		}
	}
	return l, nil
}
