package main

import (
	"fmt"
	"os"

	"github.com/bgrewell/udf-kit"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/tag"
	"github.com/bgrewell/udf-kit/pkg/volume"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath    string
	blockSize     int
	locationCheck string
	versionCheck  string
	skipVRS       bool
	verbosity     int
	noColor       bool
)

var rootCmd = &cobra.Command{
	Use:           "udfinspect",
	Short:         "Inspect the structures of a UDF volume",
	Long:          "udfinspect mounts a UDF image or block device and resolves individual structures: inodes, partition addresses, descriptors and the on-disk layout.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML mount configuration")
	flags.IntVarP(&blockSize, "block-size", "b", 0, "Sector size in bytes (default: device sector size or 2048)")
	flags.StringVar(&locationCheck, "location-check", "", "Tag location check: enforce, warn or skip")
	flags.StringVar(&versionCheck, "version-check", "", "Descriptor version check: enforce, relaxed or skip")
	flags.BoolVar(&skipVRS, "skip-vrs", false, "Do not require a volume recognition sequence")
	flags.CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (repeat for trace)")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(inodeCmd, translateCmd, descriptorCmd, layoutCmd, statsCmd, metricsCmd, versionCmd)
}

// mountOptions turns the persistent flags into mount options. Flags given on the command
// line are applied after the configuration file and so override it.
func mountOptions(cmd *cobra.Command) ([]option.MountOption, error) {
	level := min(verbosity, logging.LEVEL_TRACE)
	logger := logging.NewLogger(logging.NewSimpleLogger(os.Stderr, level, !noColor))
	opts := []option.MountOption{option.WithLogger(logger)}

	if blockSize != 0 {
		opts = append(opts, option.WithBlockSize(blockSize))
	}
	if skipVRS {
		opts = append(opts, option.WithVRSCheck(false))
	}
	if locationCheck != "" || versionCheck != "" {
		s := tag.DefaultStrictness()
		if locationCheck != "" {
			lc, err := tag.ParseLocationCheck(locationCheck)
			if err != nil {
				return nil, err
			}
			s.Location = lc
		}
		if versionCheck != "" {
			vc, err := tag.ParseVersionCheck(versionCheck)
			if err != nil {
				return nil, err
			}
			s.Version = vc
		}
		opts = append(opts, option.WithStrictness(s))
	}
	return opts, nil
}

func openVolume(cmd *cobra.Command, path string) (*volume.Volume, error) {
	opts, err := mountOptions(cmd)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		return udf.OpenWithConfig(path, configPath, opts...)
	}
	return udf.Open(path, opts...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
