// Package udf opens UDF images and devices.
package udf

import (
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/sector"
	"github.com/bgrewell/udf-kit/pkg/volume"
)

// Open mounts the UDF volume recorded in an image file, a zstd compressed image or a block
// device. Closing the volume closes the file.
func Open(location string, opts ...option.MountOption) (*volume.Volume, error) {
	src, err := sector.OpenFile(location, option.Apply(opts...).BlockSize)
	if err != nil {
		return nil, err
	}
	v, err := volume.Mount(src, opts...)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to mount %s: %w", location, err)
	}
	return v, nil
}

// OpenWithConfig is Open with the mount options of a YAML configuration file applied before
// opts.
func OpenWithConfig(location, configPath string, opts ...option.MountOption) (*volume.Volume, error) {
	configured, err := option.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return Open(location, append(configured, opts...)...)
}

// Mount mounts the volume recorded on an already open sector source.
func Mount(src sector.Source, opts ...option.MountOption) (*volume.Volume, error) {
	return volume.Mount(src, opts...)
}
