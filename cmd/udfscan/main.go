package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bgrewell/udf-kit/pkg/info"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/sector"
	"github.com/bgrewell/udf-kit/pkg/tag"
	"github.com/theckman/yacspin"
	"golang.org/x/term"
)

var (
	version = "dev"
)

// CreateProgressCallback returns a ProgressCallback that updates the spinner's message.
func CreateProgressCallback(spinner *yacspin.Spinner) option.ProgressCallback {
	var last time.Time
	return func(block, total uint32, found int) {
		if spinner == nil {
			return
		}
		if time.Since(last) < 50*time.Millisecond && block+1 != total {
			return
		}
		last = time.Now()

		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil {
			width = 80
		}
		message := fmt.Sprintf(" [%d/%d] %d descriptors - %.2f%%",
			block+1, total, found, float64(block+1)/float64(total)*100)
		if len(message) > width-4 {
			message = message[:max(width-4, 10)]
		}
		spinner.Message(message)
	}
}

// InitializeSpinner sets up and starts the yacspin spinner.
func InitializeSpinner() (*yacspin.Spinner, error) {
	settings := yacspin.Config{
		Frequency:         100 * time.Millisecond,
		ShowCursor:        false,
		SpinnerAtEnd:      false,
		CharSet:           yacspin.CharSets[14],
		Colors:            []string{"fgHiCyan"},
		StopColors:        []string{"fgHiGreen"},
		StopFailColors:    []string{"fgHiRed"},
		StopFailCharacter: "✗",
		StopCharacter:     "✓",
	}

	spinner, err := yacspin.New(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create spinner: %w", err)
	}
	if err := spinner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start spinner: %w", err)
	}
	return spinner, nil
}

func main() {
	sectorSize := flag.Int("b", 0, "Sector size in bytes (default: device sector size or 2048)")
	jsonOut := flag.Bool("json", false, "Print the descriptors found as JSON")
	noColor := flag.Bool("nocolor", false, "Disable colored output")
	hex := flag.Bool("hex", false, "Print offsets in hexadecimal")
	strict := flag.Bool("strict", false, "Only accept version 2 descriptors")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("udfscan v" + version)
		fmt.Println("Usage: udfscan [options] <path-to-image>")
		fmt.Println("  -b <bytes>       Sector size (default: device sector size or 2048)")
		fmt.Println("  -json            Print the descriptors found as JSON")
		fmt.Println("  -nocolor         Disable colored output")
		fmt.Println("  -hex             Print offsets in hexadecimal")
		fmt.Println("  -strict          Only accept version 2 descriptors")
		os.Exit(1)
	}

	src, err := sector.OpenFile(flag.Arg(0), *sectorSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open image: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	strictness := tag.DefaultStrictness()
	if *strict {
		strictness = tag.StrictStrictness()
	}

	spinner, err := InitializeSpinner()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize spinner: %v\n", err)
		fmt.Fprintf(os.Stderr, "Progress updates will be disabled.\n")
	}

	layout, err := info.Scan(src, src.Sectors(), strictness, CreateProgressCallback(spinner))
	if spinner != nil {
		if err != nil {
			spinner.StopFailMessage(fmt.Sprintf(" Scan failed: %v", err))
			spinner.StopFail()
		} else {
			spinner.StopMessage(fmt.Sprintf(" Found %d descriptors in %d sectors", len(layout.Regions), src.Sectors()))
			spinner.Stop()
		}
	}
	if err != nil && layout == nil {
		os.Exit(1)
	}

	if *jsonOut {
		fmt.Println(layout.PrettyJSON())
	} else {
		layout.Print(os.Stdout, true, !*noColor, *hex)
	}
	if err != nil {
		os.Exit(1)
	}
}
