// Package info describes where the structures of a UDF volume are recorded.
package info

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/fatih/color"
)

// Region categories, in the order they are normally recorded.
const (
	CategoryRecognition = "Recognition"
	CategoryAnchor      = "Anchor"
	CategoryDescriptor  = "Volume Descriptor"
	CategorySparing     = "Sparing Table"
	CategoryPartition   = "Partition"
	CategoryVAT         = "VAT"
	CategoryFileSet     = "File Set"
	CategoryFileEntry   = "File Entry"
	CategoryOther       = "Descriptor"
)

// Region is one recorded structure.
type Region struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Block    uint32 `json:"block"`
	Length   uint64 `json:"length"`
	Version  uint16 `json:"version,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func NewLayout(sectorSize int, sectors uint32) *Layout {
	return &Layout{
		SectorSize: sectorSize,
		Sectors:    sectors,
		Regions:    make([]*Region, 0),
	}
}

type Layout struct {
	SectorSize int       `json:"sector_size"`
	Sectors    uint32    `json:"sectors"`
	Regions    []*Region `json:"regions"`
}

// Add appends a region only if it is not already present and keeps the list sorted by block.
func (l *Layout) Add(r Region) {
	for _, existing := range l.Regions {
		if existing.Block == r.Block && existing.Category == r.Category && existing.Name == r.Name {
			return
		}
	}
	l.Regions = append(l.Regions, &r)

	slices.SortStableFunc(l.Regions, func(a, b *Region) int {
		switch {
		case a.Block < b.Block:
			return -1
		case a.Block > b.Block:
			return 1
		}
		return 0
	})
}

// Filter returns the regions of one category.
func (l *Layout) Filter(category string) []*Region {
	var out []*Region
	for _, r := range l.Regions {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// PrettyJSON returns a pretty-printed JSON representation of the layout.
func (l *Layout) PrettyJSON() string {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error generating JSON: %v", err)
	}
	return string(data)
}

// Print writes the regions in the order they occur on the media.
// - `verbose` adds the detail column.
// - `useColor` controls whether colored output is used.
// - `useHexOffset` prints byte offsets in hexadecimal if true.
func (l *Layout) Print(w io.Writer, verbose bool, useColor bool, useHexOffset bool) {
	colorMap := map[string]func(a ...interface{}) string{
		CategoryRecognition: color.New(color.FgBlue, color.Bold).SprintFunc(),
		CategoryAnchor:      color.New(color.FgRed, color.Bold).SprintFunc(),
		CategoryDescriptor:  color.New(color.FgYellow, color.Bold).SprintFunc(),
		CategorySparing:     color.New(color.FgMagenta, color.Bold).SprintFunc(),
		CategoryPartition:   color.New(color.FgWhite, color.Bold).SprintFunc(),
		CategoryVAT:         color.New(color.FgMagenta).SprintFunc(),
		CategoryFileSet:     color.New(color.FgCyan, color.Bold).SprintFunc(),
		CategoryFileEntry:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		CategoryOther:       color.New(color.FgWhite).SprintFunc(),
	}
	offsetColor := color.New(color.FgGreen).SprintFunc()
	headerColor := color.New(color.FgCyan, color.Bold).SprintFunc()

	if !useColor {
		plain := func(a ...interface{}) string { return fmt.Sprint(a...) }
		for key := range colorMap {
			colorMap[key] = plain
		}
		offsetColor = plain
		headerColor = plain
	}
	paint := func(category string) func(a ...interface{}) string {
		if f, ok := colorMap[category]; ok {
			return f
		}
		return colorMap[CategoryOther]
	}

	fmt.Fprintln(w, headerColor("\n=== UDF Layout ==="))

	const categoryWidth = 18
	for _, r := range l.Regions {
		offset := uint64(r.Block) * uint64(l.SectorSize)
		offsetStr := fmt.Sprintf("Block: %8d  Offset: %12d", r.Block, offset)
		if useHexOffset {
			offsetStr = fmt.Sprintf("Block: %8d  Offset: %#12x", r.Block, offset)
		}
		detail := r.Name
		if r.Version != 0 {
			detail = fmt.Sprintf("%s (Version: %d)", r.Name, r.Version)
		}
		if verbose && r.Detail != "" {
			detail += " - " + r.Detail
		}
		fmt.Fprintf(w, "[%s] [%s] [%s] %s\n",
			offsetColor(offsetStr),
			paint(r.Category)(fmt.Sprintf("%-*s", categoryWidth, r.Category)),
			fmt.Sprintf("%12s", FormatSize(r.Length)),
			detail,
		)
	}

	fmt.Fprintln(w, headerColor("=============================="))
}

// FormatSize converts a size in bytes to a human-readable format.
func FormatSize(size uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%8.2f GB", float64(size)/float64(GB))
	case size >= MB:
		return fmt.Sprintf("%8.2f MB", float64(size)/float64(MB))
	case size >= 10*KB:
		return fmt.Sprintf("%8.2f KB", float64(size)/float64(KB))
	default:
		return fmt.Sprintf("%8d B ", size)
	}
}
