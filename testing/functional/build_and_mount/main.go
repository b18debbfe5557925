package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bgrewell/udf-kit"
	"github.com/bgrewell/udf-kit/internal/udftest"
	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/inode"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/usage"
)

type scenario struct {
	name       string
	opts       udftest.Options
	compressed bool
}

func scenarios() []scenario {
	files := []udftest.File{
		{FileType: consts.FILE_TYPE_REGULAR, UID: 1000, GID: 100, Data: []byte("hello world")},
		{FileType: consts.FILE_TYPE_REGULAR, Data: bytes.Repeat([]byte{0xA5}, 6000)},
		{FileType: consts.FILE_TYPE_SYMLINK, Data: []byte("../x")},
	}
	return []scenario{
		{name: "type1-2048", opts: udftest.Options{Kind: udftest.KindType1, Files: files}},
		{name: "type1-512", opts: udftest.Options{Kind: udftest.KindType1, SectorSize: 512, Files: files}},
		{name: "type1-nsr03-extended", opts: udftest.Options{Kind: udftest.KindType1, NSR03: true, Extended: true, Files: files}},
		{name: "sparable", opts: udftest.Options{Kind: udftest.KindSparable, Relocate: []uint32{0}, Files: files}},
		{name: "virtual-vat20", opts: udftest.Options{Kind: udftest.KindVirtual, Files: files}},
		{name: "virtual-vat15", opts: udftest.Options{Kind: udftest.KindVirtual, VAT15: true, Files: files}},
		{name: "virtual-compressed", opts: udftest.Options{Kind: udftest.KindVirtual, Files: files}, compressed: true},
	}
}

func run(dir string, s scenario, logger *logging.Logger) error {
	img, err := udftest.Build(s.opts)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	path := filepath.Join(dir, s.name+".udf")
	if err := img.WriteFile(path, s.compressed); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	v, err := udf.Open(path, option.WithLogger(logger), option.WithBlockSize(img.SectorSize))
	if err != nil {
		return err
	}
	defer v.Close()

	records := make(map[string]*inode.Record)
	root, err := v.Root()
	if err != nil {
		return fmt.Errorf("root: %w", err)
	}
	records["root"] = root
	for i, addr := range img.Files {
		rec, err := v.ReadInode(addr)
		if err != nil {
			return fmt.Errorf("file %d at %s: %w", i, addr, err)
		}
		if rec.Size != uint64(len(s.opts.Files[i].Data)) {
			return fmt.Errorf("file %d: size %d, want %d", i, rec.Size, len(s.opts.Files[i].Data))
		}
		records[fmt.Sprintf("file%d", i)] = rec
	}

	dirs, files := udftest.Counts(records)
	if dirs != 1 || files != len(img.Files) {
		return fmt.Errorf("counted %d directories and %d files", dirs, files)
	}
	if v.Label() != img.Options.Label {
		return fmt.Errorf("label %q, want %q", v.Label(), img.Options.Label)
	}
	return nil
}

func main() {

	u := usage.NewUsage(
		usage.WithApplicationName("build_and_mount"),
		usage.WithApplicationDescription("build_and_mount is a functional testing application that is part of udf-kit. It records UDF images of every supported partition layout, writes them to disk and verifies that they mount and materialize as expected."),
	)
	help := u.AddBooleanOption("h", "help", false, "Display this help message", "", nil)
	keep := u.AddBooleanOption("k", "keep", false, "Keep the generated images", "", nil)
	verbose := u.AddBooleanOption("v", "verbose", false, "Log while mounting", "", nil)
	parsed := u.Parse()

	if !parsed {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}

	if *help {
		u.PrintUsage()
		os.Exit(0)
	}

	dir, err := os.MkdirTemp("", "build_and_mount_*")
	if err != nil {
		fmt.Printf("Failed to create temporary directory: %s\n", err)
		os.Exit(1)
	}
	if *keep {
		fmt.Printf("Images: %s\n", dir)
	} else {
		defer os.RemoveAll(dir)
	}

	logger := logging.DefaultLogger()
	if *verbose {
		logger = logging.NewLogger(logging.NewSimpleLogger(os.Stderr, logging.LEVEL_TRACE, true))
	}

	failed := 0
	for _, s := range scenarios() {
		if err := run(dir, s, logger); err != nil {
			fmt.Printf("FAIL %-22s %s\n", s.name, err)
			failed++
			continue
		}
		fmt.Printf("PASS %s\n", s.name)
	}

	if failed > 0 {
		fmt.Printf("%d scenario(s) failed\n", failed)
		os.RemoveAll(dir)
		os.Exit(1)
	}
	fmt.Println("All scenarios passed")
}
