package tag

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/sector"
)

var (
	ErrChecksumMismatch = errors.New("tag checksum mismatch")
	ErrCrcMismatch      = errors.New("descriptor crc mismatch")
	ErrLocationMismatch = errors.New("tag location mismatch")
	ErrVersionMismatch  = errors.New("descriptor version mismatch")
)

// LocationCheck selects how a tag location that disagrees with the read address is treated.
type LocationCheck int

const (
	LocationEnforce LocationCheck = iota
	LocationWarn
	LocationSkip
)

func (c LocationCheck) String() string {
	switch c {
	case LocationEnforce:
		return "enforce"
	case LocationWarn:
		return "warn"
	case LocationSkip:
		return "skip"
	default:
		return fmt.Sprintf("LocationCheck(%d)", int(c))
	}
}

// ParseLocationCheck parses "enforce", "warn" or "skip".
func ParseLocationCheck(s string) (LocationCheck, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enforce":
		return LocationEnforce, nil
	case "warn":
		return LocationWarn, nil
	case "skip":
		return LocationSkip, nil
	}
	return 0, fmt.Errorf("unknown location check %q", s)
}

// VersionCheck selects which descriptor versions are accepted.
type VersionCheck int

const (
	// VersionEnforce accepts only version 2 descriptors.
	VersionEnforce VersionCheck = iota
	// VersionRelaxed accepts version 2 and version 3 (NSR03) descriptors.
	VersionRelaxed
	// VersionSkip accepts any version.
	VersionSkip
)

func (c VersionCheck) String() string {
	switch c {
	case VersionEnforce:
		return "enforce"
	case VersionRelaxed:
		return "relaxed"
	case VersionSkip:
		return "skip"
	default:
		return fmt.Sprintf("VersionCheck(%d)", int(c))
	}
}

// ParseVersionCheck parses "enforce", "relaxed" or "skip".
func ParseVersionCheck(s string) (VersionCheck, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enforce":
		return VersionEnforce, nil
	case "relaxed":
		return VersionRelaxed, nil
	case "skip":
		return VersionSkip, nil
	}
	return 0, fmt.Errorf("unknown version check %q", s)
}

// Strictness configures the policy-gated checks of ReadTagged. Checksum and CRC are always
// enforced.
type Strictness struct {
	Location LocationCheck
	Version  VersionCheck
}

// DefaultStrictness tolerates relative/absolute tag location confusion (with a warning) and
// both NSR02 and NSR03 descriptor versions.
func DefaultStrictness() Strictness {
	return Strictness{Location: LocationWarn, Version: VersionRelaxed}
}

// StrictStrictness enforces every check.
func StrictStrictness() Strictness {
	return Strictness{Location: LocationEnforce, Version: VersionEnforce}
}

// Descriptor is a verified tagged descriptor. Data holds the whole sector the descriptor was
// read from, tag included, so descriptor field offsets index Data directly.
type Descriptor struct {
	Tag   Tag
	Block uint32
	Data  []byte
}

// Identifier returns the tag identifier.
func (d *Descriptor) Identifier() uint16 {
	return d.Tag.Identifier
}

// Body returns the CRC-covered bytes following the tag.
func (d *Descriptor) Body() []byte {
	return d.Data[consts.UDF_TAG_SIZE : consts.UDF_TAG_SIZE+int(d.Tag.DescriptorCRCLength)]
}

// locationWarned makes the relaxed location warning fire once per process.
var locationWarned atomic.Bool

// ReadTagged reads the sector at block and verifies its descriptor tag. expectedOffset is the
// start of the partition the descriptor was addressed in: the tag location may be recorded
// either relative to it (block-expectedOffset) or as the absolute block.
func ReadTagged(src sector.Source, block, expectedOffset uint32, s Strictness, log *logging.Logger) (*Descriptor, error) {
	data, err := src.ReadSector(block)
	if err != nil {
		return nil, fmt.Errorf("failed to read block %d: %w", block, err)
	}
	return Verify(data, block, expectedOffset, s, log)
}

// Verify runs the ReadTagged checks over a sector that has already been read.
func Verify(data []byte, block, expectedOffset uint32, s Strictness, log *logging.Logger) (*Descriptor, error) {
	var t Tag
	if err := t.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("block %d: %w", block, err)
	}

	if sum := Checksum(data); sum != t.Checksum {
		return nil, fmt.Errorf("block %d: computed %#02x, recorded %#02x: %w", block, sum, t.Checksum, ErrChecksumMismatch)
	}

	if s.Location != LocationSkip && !locationMatches(block, expectedOffset, t.Location) {
		if s.Location == LocationEnforce {
			return nil, fmt.Errorf("block %d (offset %d): tag records %d: %w", block, expectedOffset, t.Location, ErrLocationMismatch)
		}
		if log != nil && locationWarned.CompareAndSwap(false, true) {
			log.Warn("tag location does not match read address, continuing",
				"block", block, "offset", expectedOffset, "tagLocation", t.Location)
		}
	}

	switch s.Version {
	case VersionEnforce:
		if t.DescriptorVersion != consts.UDF_DESCRIPTOR_VERSION_NSR02 {
			return nil, fmt.Errorf("block %d: version %d: %w", block, t.DescriptorVersion, ErrVersionMismatch)
		}
	case VersionRelaxed:
		if t.DescriptorVersion != consts.UDF_DESCRIPTOR_VERSION_NSR02 && t.DescriptorVersion != consts.UDF_DESCRIPTOR_VERSION_NSR03 {
			return nil, fmt.Errorf("block %d: version %d: %w", block, t.DescriptorVersion, ErrVersionMismatch)
		}
	}

	end := consts.UDF_TAG_SIZE + int(t.DescriptorCRCLength)
	if end > len(data) {
		return nil, fmt.Errorf("block %d: crc length %d overruns %d byte sector: %w", block, t.DescriptorCRCLength, len(data), ErrCrcMismatch)
	}
	if crc := CRC(data[consts.UDF_TAG_SIZE:end]); crc != t.DescriptorCRC {
		return nil, fmt.Errorf("block %d: computed %#04x, recorded %#04x: %w", block, crc, t.DescriptorCRC, ErrCrcMismatch)
	}

	if log != nil {
		log.Trace("verified descriptor", "block", block, "identifier", t.Identifier)
	}
	return &Descriptor{Tag: t, Block: block, Data: data}, nil
}

// locationMatches compares in wrapping uint32 arithmetic, so an offset that wrapped below
// zero still recovers the logical block.
func locationMatches(block, offset, location uint32) bool {
	return block == location || block-offset == location
}
