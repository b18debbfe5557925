package partition

import (
	"errors"
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/vat"
)

// Translator resolves partition relative addresses to absolute blocks. The map set is fixed
// at construction. A Translator is safe for concurrent use; the only shared mutable state is
// the VAT cache, which serializes itself.
type Translator struct {
	maps []Map
	log  *logging.Logger
}

// NewTranslator creates a translator over maps, indexed by partition reference number.
func NewTranslator(maps []Map, log *logging.Logger) *Translator {
	if log == nil {
		log = logging.DefaultLogger()
	}
	return &Translator{maps: append([]Map(nil), maps...), log: log}
}

// Maps returns the partition maps in reference number order.
func (t *Translator) Maps() []Map {
	return append([]Map(nil), t.maps...)
}

// Map returns the map with the given reference number.
func (t *Translator) Map(ref uint16) (Map, bool) {
	if int(ref) >= len(t.maps) {
		return nil, false
	}
	return t.maps[ref], true
}

// ToPhysicalBlock translates block lbn of the partition referenced by ref to an absolute
// block. Every result lies within the partition's recorded extent.
func (t *Translator) ToPhysicalBlock(ref uint16, lbn uint32) (uint32, error) {
	m, ok := t.Map(ref)
	if !ok {
		return 0, fmt.Errorf("partition reference %d of %d: %w", ref, len(t.maps), ErrOutOfRange)
	}

	var (
		pbn uint32
		err error
	)
	switch pm := m.(type) {
	case *Type1:
		pbn, err = direct(&pm.Geometry, lbn)
	case *Sparable:
		pbn, err = spared(pm, lbn)
	case *Virtual:
		pbn, err = t.virtual(pm, lbn)
	default:
		return 0, fmt.Errorf("partition reference %d (%s): %w", ref, m.Kind(), ErrUnsupportedPartitionMap)
	}
	if err != nil {
		return 0, fmt.Errorf("partition reference %d: %w", ref, err)
	}

	if g := m.Base(); !g.contains(pbn) {
		return 0, fmt.Errorf("partition reference %d: block %d maps to %d outside [%d, %d): %w",
			ref, lbn, pbn, g.Root, uint64(g.Root)+uint64(g.Length), ErrOutOfRange)
	}
	return pbn, nil
}

func direct(g *Geometry, lbn uint32) (uint32, error) {
	if lbn >= g.Length {
		return 0, fmt.Errorf("block %d of %d: %w", lbn, g.Length, ErrOutOfRange)
	}
	return g.Root + lbn, nil
}

func spared(s *Sparable, lbn uint32) (uint32, error) {
	pbn, err := direct(&s.Geometry, lbn)
	if err != nil {
		return 0, err
	}
	packetLen := uint32(s.PacketLength)
	if packetLen == 0 {
		return pbn, nil
	}
	offset := lbn % packetLen
	if mapped, ok := s.Table.Lookup(lbn - offset); ok {
		return mapped + offset, nil
	}
	return pbn, nil
}

// virtual consults the cache first and reads the VAT on a miss. The cache lock is never held
// across the read.
func (t *Translator) virtual(v *Virtual, lbn uint32) (uint32, error) {
	if v.Cache != nil {
		if pbn, ok := v.Cache.Lookup(lbn); ok {
			return pbn, nil
		}
	}
	if v.Table == nil {
		return 0, fmt.Errorf("virtual partition has no allocation table: %w", ErrUnsupportedPartitionMap)
	}
	entry, err := v.Table.Entry(lbn)
	if err != nil {
		if errors.Is(err, vat.ErrEntryOutOfRange) || errors.Is(err, vat.ErrUnusedEntry) {
			return 0, fmt.Errorf("%w: %w", ErrOutOfRange, err)
		}
		return 0, err
	}
	pbn := v.Root + entry
	if pbn < v.Root {
		return 0, fmt.Errorf("vat entry %d for block %d wraps: %w", entry, lbn, ErrOutOfRange)
	}
	t.log.Trace("vat miss", "block", lbn, "entry", entry, "physical", pbn)
	if v.Cache != nil && v.contains(pbn) {
		v.Cache.Insert(lbn, pbn)
	}
	return pbn, nil
}
