package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/bgrewell/udf-kit"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/partition"
	"github.com/bgrewell/udf-kit/pkg/volume"
	"github.com/bgrewell/usage"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

func main() {

	u := usage.NewUsage(
		usage.WithApplicationName("udfinfo"),
		usage.WithApplicationDescription("udfinfo mounts a UDF image or device and prints its volume identification, partition maps and on-disk layout."),
	)
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "optional", nil)
	verbose := u.AddBooleanOption("v", "verbose", false, "Print verbose output", "", nil)
	jsonOut := u.AddBooleanOption("j", "json", false, "Print the layout as JSON", "", nil)
	noColor := u.AddBooleanOption("n", "no-color", false, "Disable colored output", "", nil)
	hex := u.AddBooleanOption("x", "hex", false, "Print offsets in hexadecimal", "", nil)
	noVRS := u.AddBooleanOption("r", "skip-vrs", false, "Do not require a volume recognition sequence", "", nil)
	path := u.AddArgument(1, "image-path", "Path to the UDF image or block device", "")
	parsed := u.Parse()

	if !parsed {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}

	if *help {
		u.PrintUsage()
		os.Exit(0)
	}

	if path == nil || *path == "" {
		u.PrintError(fmt.Errorf("location of the image <image-path> must be provided"))
		os.Exit(1)
	}

	level := logging.LEVEL_INFO
	if *verbose {
		level = logging.LEVEL_DEBUG
	}
	logger := logging.NewLogger(logging.NewSimpleLogger(os.Stderr, level, !*noColor))

	v, err := udf.Open(*path, option.WithLogger(logger), option.WithVRSCheck(!*noVRS))
	if err != nil {
		u.PrintError(err)
		os.Exit(1)
	}
	defer v.Close()

	if *jsonOut {
		fmt.Println(v.Layout().PrettyJSON())
		return
	}

	color.NoColor = *noColor
	printSummary(v)
	printPartitions(v)
	v.Layout().Print(os.Stdout, *verbose, !*noColor, *hex)

	if *verbose {
		stats, _ := json.MarshalIndent(v.Stats(), "", "  ")
		fmt.Printf("\nCounters:\n%s\n", stats)
	}
}

func printSummary(v *volume.Volume) {
	title := color.New(color.FgCyan, color.Bold).SprintFunc()
	set := v.Descriptors()
	fmt.Println(title("=== Volume ==="))
	fmt.Printf("Label:            %s\n", v.Label())
	fmt.Printf("Volume set:       %s\n", set.Primary.VolumeSetIdentifier)
	fmt.Printf("Recorded:         %s\n", set.Primary.RecordingDateTime)
	fmt.Printf("Block size:       %d\n", v.SectorSize())
	fmt.Printf("Domain:           %s (revision %#x)\n", set.Logical.DomainIdentifier.IdentifierString(), set.Logical.DomainIdentifier.UDFRevision())
	if fs := v.FileSet(); fs != nil {
		fmt.Printf("File set:         %s\n", fs.FileSetIdentifier)
	}
	fmt.Printf("Root directory:   %s\n", v.RootAddress())
	if block := v.VATBlock(); block != 0 {
		fmt.Printf("VAT file entry:   block %d\n", block)
	}
}

func printPartitions(v *volume.Volume) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Ref", "Partition", "Kind", "Start", "Length", "Detail"})
	table.SetAutoWrapText(false)

	for _, m := range v.Partitions() {
		g := m.Base()
		detail := ""
		switch pm := m.(type) {
		case *partition.Sparable:
			relocated := 0
			if pm.Table != nil {
				relocated = len(pm.Table.Entries)
			}
			detail = fmt.Sprintf("packet %d, %d relocated", pm.PacketLength, relocated)
		case *partition.Virtual:
			if pm.Table != nil {
				detail = fmt.Sprintf("vat %s, %d entries", pm.Table.Format, pm.Table.Entries)
			}
		case *partition.Unsupported:
			detail = pm.Identifier
		}
		table.Append([]string{
			strconv.Itoa(int(g.ReferenceNumber)),
			strconv.Itoa(int(g.PartitionNumber)),
			m.Kind().String(),
			strconv.FormatUint(uint64(g.Root), 10),
			strconv.FormatUint(uint64(g.Length), 10),
			detail,
		})
	}
	fmt.Println()
	table.Render()
}
