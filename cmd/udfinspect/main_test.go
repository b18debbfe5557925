package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/bgrewell/udf-kit/internal/udftest"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/tag"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want encoding.LBAddr
	}{
		{"1:45", encoding.LBAddr{PartitionReferenceNumber: 1, LogicalBlockNumber: 45}},
		{"45", encoding.LBAddr{LogicalBlockNumber: 45}},
		{"0:0x10", encoding.LBAddr{LogicalBlockNumber: 16}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAddress(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"x:1", "1:y", "70000:1", ""} {
		_, err := parseAddress(bad)
		require.Error(t, err, bad)
	}
}

func TestMountOptionsStrictness(t *testing.T) {
	t.Cleanup(func() { locationCheck, versionCheck = "", "" })

	locationCheck, versionCheck = "enforce", "skip"
	opts, err := mountOptions(rootCmd)
	require.NoError(t, err)
	require.Equal(t, tag.Strictness{Location: tag.LocationEnforce, Version: tag.VersionSkip}, option.Apply(opts...).Strictness)

	versionCheck = "loose"
	_, err = mountOptions(rootCmd)
	require.Error(t, err)
}

func TestTranslateCommand(t *testing.T) {
	img, err := udftest.Build(udftest.Options{Kind: udftest.KindType1})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "type1.udf")
	require.NoError(t, img.WriteFile(path, false))

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs([]string{"translate", path, "0", "3"})
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), "0:3 -> 275")
}
