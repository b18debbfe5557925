package udftest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bgrewell/udf-kit/pkg/inode"
)

// GroundTruthEntry is the expected materialization of one named inode.
type GroundTruthEntry struct {
	Name        string `json:"name"`
	Mode        string `json:"mode"`
	UID         uint32 `json:"uid"`
	GID         uint32 `json:"gid"`
	Size        uint64 `json:"size"`
	IsDirectory bool   `json:"is_directory"`
	Openable    bool   `json:"openable"`
}

// LoadGroundTruth reads the JSON from a file and unmarshals it into a slice.
func LoadGroundTruth(filePath string) ([]GroundTruthEntry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var entries []GroundTruthEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return entries, nil
}

// Validate compares named inode records against the ground truth in gtPath. Every difference
// is reported in the returned error.
func Validate(records map[string]*inode.Record, gtPath string) error {
	groundTruth, err := LoadGroundTruth(gtPath)
	if err != nil {
		return err
	}

	var problems []string
	seen := make(map[string]bool)
	for _, gt := range groundTruth {
		seen[gt.Name] = true
		r, ok := records[gt.Name]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing %s", gt.Name))
			continue
		}
		if got := r.Mode.String(); got != gt.Mode {
			problems = append(problems, fmt.Sprintf("%s: mode %s, want %s", gt.Name, got, gt.Mode))
		}
		if r.UID != gt.UID || r.GID != gt.GID {
			problems = append(problems, fmt.Sprintf("%s: owner %d:%d, want %d:%d", gt.Name, r.UID, r.GID, gt.UID, gt.GID))
		}
		if r.Size != gt.Size {
			problems = append(problems, fmt.Sprintf("%s: size %d, want %d", gt.Name, r.Size, gt.Size))
		}
		if r.IsDir() != gt.IsDirectory {
			problems = append(problems, fmt.Sprintf("%s: directory %t, want %t", gt.Name, r.IsDir(), gt.IsDirectory))
		}
		if r.Openable != gt.Openable {
			problems = append(problems, fmt.Sprintf("%s: openable %t, want %t", gt.Name, r.Openable, gt.Openable))
		}
	}
	for name := range records {
		if !seen[name] {
			problems = append(problems, fmt.Sprintf("extra %s", name))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%d entries differ from the ground truth:\n  %s", len(problems), strings.Join(problems, "\n  "))
}

// Counts returns how many of records are directories and how many are anything else.
func Counts(records map[string]*inode.Record) (dirs, files int) {
	for _, r := range records {
		if r.IsDir() {
			dirs++
		} else {
			files++
		}
	}
	return dirs, files
}
