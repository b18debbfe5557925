package logging

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
)

func TestDefaultWriter(t *testing.T) {
	s := NewSimpleLogSink(nil, 1, true)
	require.Equal(t, os.Stderr, s.writer)
}

func TestEnabled(t *testing.T) {
	s := NewSimpleLogSink(&bytes.Buffer{}, LEVEL_DEBUG, true)
	require.True(t, s.Enabled(LEVEL_INFO))
	require.True(t, s.Enabled(LEVEL_DEBUG))
	require.False(t, s.Enabled(LEVEL_TRACE))
}

func TestInfoLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSimpleLogSink(buf, 1, false)
	s.Info(0, "mounted volume", "label", "DISC")
	output := buf.String()

	require.Contains(t, output, "[INFO] mounted volume")
	require.Contains(t, output, "label: DISC")
}

func TestInfoNotLoggedWhenDisabled(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSimpleLogSink(buf, 0, true)
	s.Info(1, "This should not be logged", "foo", "bar")
	require.Zero(t, buf.Len())
}

func TestErrorLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSimpleLogSink(buf, 0, false)
	s.Error(errors.New("crc mismatch"), "descriptor rejected", "block", 261)
	output := buf.String()

	require.Contains(t, output, "[ERROR] descriptor rejected")
	require.Contains(t, output, "block: 261")
	require.Contains(t, output, "error: crc mismatch")
}

func TestWithNameChains(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSimpleLogSink(buf, 1, false)
	chain := s.WithName("udf").WithName("tag").(*SimpleLogSink)
	chain.Info(0, "Chained name")
	require.Contains(t, buf.String(), "[udf.tag]")
}

func TestWithValuesPrefixesPairs(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSimpleLogSink(buf, 1, false)
	withVals := s.WithValues("volume", "DISC").(*SimpleLogSink)
	withVals.Info(0, "message", "block", 16)

	output := buf.String()
	require.Less(t, strings.Index(output, "volume: DISC"), strings.Index(output, "block: 16"))
	require.True(t, withVals.Enabled(LEVEL_DEBUG), "verbosity must survive WithValues")
}

func TestNonStringKey(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSimpleLogSink(buf, 1, true)
	s.Info(0, "Non-string key", 123, "value")
	require.Contains(t, buf.String(), "key0: value")
}

func TestInitSetsCallDepth(t *testing.T) {
	s := NewSimpleLogSink(&bytes.Buffer{}, 1, true)
	s.Init(logr.RuntimeInfo{CallDepth: 5})
	require.Equal(t, 5, s.callDepth)
}

func TestLoggerLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLogger(NewSimpleLogger(buf, LEVEL_DEBUG, false))

	l.Info("info line")
	l.Debug("debug line")
	l.Trace("trace line")

	output := buf.String()
	require.Contains(t, output, "[INFO] info line")
	require.Contains(t, output, "[DEBUG] debug line")
	require.NotContains(t, output, "trace line")
}

func TestWarnOnce(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLogger(NewSimpleLogger(buf, LEVEL_INFO, false))

	require.True(t, l.WarnOnce("location", "tag location mismatch", "block", 300))
	require.False(t, l.WarnOnce("location", "tag location mismatch", "block", 301))

	output := buf.String()
	require.Equal(t, 1, strings.Count(output, "tag location mismatch"))
	require.Contains(t, output, "[WARN]")
	require.NotContains(t, output, "severity")
}

func TestNewLoggerWithZeroValue(t *testing.T) {
	l := NewLogger(logr.Logger{})
	require.NotPanics(t, func() { l.Info("discarded") })
}
