package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/info"
	"github.com/bgrewell/udf-kit/pkg/metrics"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	layoutJSON  bool
	layoutScan  bool
	layoutHex   bool
	statsJSON   bool
	metricsAddr string
)

var inodeCmd = &cobra.Command{
	Use:   "inode <image> [ref:lbn]",
	Short: "Materialize an inode (default: the root directory)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume(cmd, args[0])
		if err != nil {
			return err
		}
		defer v.Close()

		addr := v.RootAddress()
		if len(args) == 2 {
			if addr, err = parseAddress(args[1]); err != nil {
				return err
			}
		}
		rec, err := v.ReadInode(addr)
		if err != nil {
			return err
		}
		return printJSON(cmd, rec)
	},
}

var translateCmd = &cobra.Command{
	Use:   "translate <image> <ref> <lbn>",
	Short: "Translate a partition relative block to a physical block",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := strconv.ParseUint(args[1], 0, 16)
		if err != nil {
			return fmt.Errorf("invalid partition reference %q: %w", args[1], err)
		}
		lbn, err := strconv.ParseUint(args[2], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid logical block %q: %w", args[2], err)
		}

		v, err := openVolume(cmd, args[0])
		if err != nil {
			return err
		}
		defer v.Close()

		pbn, err := v.ToPhysicalBlock(uint16(ref), uint32(lbn))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d:%d -> %d (byte offset %d)\n", ref, lbn, pbn, uint64(pbn)*uint64(v.SectorSize()))
		return nil
	},
}

var descriptorCmd = &cobra.Command{
	Use:   "descriptor <image> <ref:lbn>",
	Short: "Read and verify the tagged descriptor at a partition address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		v, err := openVolume(cmd, args[0])
		if err != nil {
			return err
		}
		defer v.Close()

		d, err := v.ReadDescriptor(addr)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s at %s (block %d)\n", info.TagName(d.Identifier()), addr, d.Block)
		fmt.Fprintf(out, "  version:    %d\n", d.Tag.DescriptorVersion)
		fmt.Fprintf(out, "  serial:     %d\n", d.Tag.SerialNumber)
		fmt.Fprintf(out, "  crc:        %#04x over %d bytes\n", d.Tag.DescriptorCRC, d.Tag.DescriptorCRCLength)
		fmt.Fprintf(out, "  location:   %d\n", d.Tag.Location)
		return nil
	},
}

var layoutCmd = &cobra.Command{
	Use:   "layout <image>",
	Short: "Print the structures found while mounting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume(cmd, args[0])
		if err != nil {
			return err
		}
		defer v.Close()

		layout := v.Layout()
		if layoutScan {
			if layout, err = v.Scan(); err != nil {
				return err
			}
		}
		if layoutJSON {
			fmt.Fprintln(cmd.OutOrStdout(), layout.PrettyJSON())
			return nil
		}
		layout.Print(cmd.OutOrStdout(), verbosity > 0, !noColor, layoutHex)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <image> [ref:lbn...]",
	Short: "Read the given inodes and print the volume counters",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume(cmd, args[0])
		if err != nil {
			return err
		}
		defer v.Close()

		for _, arg := range args[1:] {
			addr, err := parseAddress(arg)
			if err != nil {
				return err
			}
			if _, err := v.ReadInode(addr); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", addr, err)
			}
		}

		stats := v.Stats()
		if statsJSON {
			return printJSON(cmd, stats)
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Counter", "Value"})
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.Append([]string{"descriptor reads", strconv.FormatUint(stats.DescriptorReads, 10)})
		table.Append([]string{"descriptor failures", strconv.FormatUint(stats.DescriptorFailures, 10)})
		table.Append([]string{"inode cache hits", strconv.FormatUint(stats.InodeCacheHits, 10)})
		table.Append([]string{"inode cache misses", strconv.FormatUint(stats.InodeCacheMisses, 10)})
		table.Append([]string{"inode cache entries", strconv.Itoa(stats.InodeCacheEntries)})
		for ref, vs := range stats.VAT {
			prefix := fmt.Sprintf("vat[%d] ", ref)
			table.Append([]string{prefix + "hits", strconv.FormatUint(vs.Hits, 10)})
			table.Append([]string{prefix + "misses", strconv.FormatUint(vs.Misses, 10)})
			table.Append([]string{prefix + "inserts", strconv.FormatUint(vs.Inserts, 10)})
			table.Append([]string{prefix + "evictions", strconv.FormatUint(vs.Evictions, 10)})
		}
		table.Render()
		return nil
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics <image>",
	Short: "Serve the volume counters for Prometheus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume(cmd, args[0])
		if err != nil {
			return err
		}
		defer v.Close()

		metrics.MustRegister(v)
		http.Handle("/metrics", promhttp.Handler())
		fmt.Fprintf(cmd.ErrOrStderr(), "serving metrics for %q on %s/metrics\n", v.Label(), metricsAddr)
		return http.ListenAndServe(metricsAddr, nil)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "udfinspect "+version)
	},
}

func init() {
	layoutCmd.Flags().BoolVarP(&layoutJSON, "json", "j", false, "Print as JSON")
	layoutCmd.Flags().BoolVarP(&layoutScan, "scan", "s", false, "Scan every sector for descriptors")
	layoutCmd.Flags().BoolVarP(&layoutHex, "hex", "x", false, "Print offsets in hexadecimal")
	statsCmd.Flags().BoolVarP(&statsJSON, "json", "j", false, "Print as JSON")
	metricsCmd.Flags().StringVarP(&metricsAddr, "listen", "l", ":9418", "Address to serve metrics on")
}

// parseAddress parses a partition address written as "ref:lbn". A bare block number refers
// to partition reference 0.
func parseAddress(s string) (encoding.LBAddr, error) {
	refPart, lbnPart, found := strings.Cut(s, ":")
	if !found {
		refPart, lbnPart = "0", s
	}
	ref, err := strconv.ParseUint(refPart, 0, 16)
	if err != nil {
		return encoding.LBAddr{}, fmt.Errorf("invalid partition reference in %q: %w", s, err)
	}
	lbn, err := strconv.ParseUint(lbnPart, 0, 32)
	if err != nil {
		return encoding.LBAddr{}, fmt.Errorf("invalid logical block in %q: %w", s, err)
	}
	return encoding.LBAddr{LogicalBlockNumber: uint32(lbn), PartitionReferenceNumber: uint16(ref)}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
