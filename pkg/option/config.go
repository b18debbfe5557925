package option

import (
	"fmt"
	"os"

	"github.com/bgrewell/udf-kit/pkg/tag"
	"gopkg.in/yaml.v3"
)

// Config is the YAML form of the mount options.
//
//	block_size: 2048
//	strictness:
//	  location: warn
//	  version: relaxed
//	default_uid: 1000
//	default_gid: 1000
//	vat_cache_slots: 8192
//	inode_cache: 256
//	partition_maps:
//	  - kind: type1
//	    partition_number: 0
type Config struct {
	BlockSize  int `yaml:"block_size"`
	Strictness struct {
		Location string `yaml:"location"`
		Version  string `yaml:"version"`
	} `yaml:"strictness"`
	DefaultUID      *uint32   `yaml:"default_uid"`
	DefaultGID      *uint32   `yaml:"default_gid"`
	VATBlock        uint32    `yaml:"vat_block"`
	VATCacheSlots   int       `yaml:"vat_cache_slots"`
	DiskPermissions bool      `yaml:"disk_permissions"`
	InodeCache      int       `yaml:"inode_cache"`
	CheckVRS        *bool     `yaml:"check_vrs"`
	PartitionMaps   []MapSpec `yaml:"partition_maps"`
}

// LoadConfig reads a YAML configuration file and returns the mount options it sets.
func LoadConfig(path string) ([]MountOption, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration. Fields left out keep their defaults.
func ParseConfig(data []byte) ([]MountOption, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return c.Options()
}

// Options converts the configuration to mount options.
func (c *Config) Options() ([]MountOption, error) {
	var opts []MountOption
	if c.BlockSize != 0 {
		opts = append(opts, WithBlockSize(c.BlockSize))
	}

	s := tag.DefaultStrictness()
	if c.Strictness.Location != "" {
		loc, err := tag.ParseLocationCheck(c.Strictness.Location)
		if err != nil {
			return nil, err
		}
		s.Location = loc
	}
	if c.Strictness.Version != "" {
		ver, err := tag.ParseVersionCheck(c.Strictness.Version)
		if err != nil {
			return nil, err
		}
		s.Version = ver
	}
	opts = append(opts, WithStrictness(s))

	if c.DefaultUID != nil || c.DefaultGID != nil {
		d := Defaults()
		uid, gid := d.DefaultUID, d.DefaultGID
		if c.DefaultUID != nil {
			uid = *c.DefaultUID
		}
		if c.DefaultGID != nil {
			gid = *c.DefaultGID
		}
		opts = append(opts, WithDefaultOwner(uid, gid))
	}
	if c.VATBlock != 0 {
		opts = append(opts, WithVATBlock(c.VATBlock))
	}
	if c.VATCacheSlots != 0 {
		opts = append(opts, WithVATCacheSlots(c.VATCacheSlots))
	}
	if c.DiskPermissions {
		opts = append(opts, WithDiskPermissions(true))
	}
	if c.InodeCache != 0 {
		opts = append(opts, WithInodeCache(c.InodeCache))
	}
	if c.CheckVRS != nil {
		opts = append(opts, WithVRSCheck(*c.CheckVRS))
	}
	if len(c.PartitionMaps) > 0 {
		for i, m := range c.PartitionMaps {
			switch m.Kind {
			case "", "type1", "sparable", "virtual":
			default:
				return nil, fmt.Errorf("partition map %d: unknown kind %q", i, m.Kind)
			}
		}
		opts = append(opts, WithPartitionMaps(c.PartitionMaps...))
	}
	return opts, nil
}
