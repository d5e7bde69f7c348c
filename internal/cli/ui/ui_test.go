package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"init_sessions", "init_sessions", 0},
		{"crash_fre_percentage", "crash_free_percentage", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevenshteinDistance(tt.s1, tt.s2), "%q -> %q", tt.s1, tt.s2)
	}
}

func TestFindSimilar(t *testing.T) {
	candidates := []string{"crash_free_percentage", "crashed_sessions", "init_sessions", "errored_preaggr"}

	assert.Equal(t, []string{"crash_free_percentage"}, FindSimilar("crash_fre_percentage", candidates, nil))
	assert.Equal(t, []string{"init_sessions"}, FindSimilar("INIT_SESSION", candidates, nil))
	assert.Empty(t, FindSimilar("session.duration", candidates, nil))
	assert.Empty(t, FindSimilar("INIT_SESSION", candidates, &FuzzyMatchOptions{CaseSensitive: true}))
}

func TestFindSimilar_OrderAndLimit(t *testing.T) {
	candidates := []string{"abcd", "abc", "abx", "ab", "zzzz"}

	got := FindSimilar("abc", candidates, &FuzzyMatchOptions{MaxDistance: 1, MaxSuggestions: 2})
	assert.Equal(t, []string{"abc", "abcd"}, got)
}

func TestFormatError(t *testing.T) {
	out := FormatError(ErrorOptions{
		Context:      "metric not found",
		Problem:      "Cannot find metric 'x'.",
		Suggestions:  []string{"y", "z"},
		HelpCommands: []string{"metricsd catalog list"},
		NoColor:      true,
	})

	assert.Contains(t, out, "❌ METRIC NOT FOUND: Cannot find metric 'x'.")
	assert.Contains(t, out, "Did you mean: y, z?")
	assert.Contains(t, out, "→ metricsd catalog list")
	assert.NotContains(t, out, "\x1b[")
}

func TestMetricNotFoundError(t *testing.T) {
	out := MetricNotFoundError("init_session", []string{"init_sessions"}, true)
	assert.Contains(t, out, "Cannot find metric 'init_session'.")
	assert.Contains(t, out, "init_sessions?")
	assert.Contains(t, out, "metricsd catalog list")
}

func TestWarningAndSuccess(t *testing.T) {
	assert.True(t, strings.HasPrefix(Warning("slow", true), "⚠️ slow"))
	assert.Contains(t, ConfigError("bad driver", true), "CONFIGURATION ERROR: bad driver")

	var buf bytes.Buffer
	WriteSuccess(&buf, "done", true)
	assert.Equal(t, "✓ done\n", buf.String())
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, []string{"NAME", "UNIT"}, true)
	table.AddRow("init_sessions", "sessions")
	table.AddRow("crash_free_percentage", "percentage")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "NAME                   UNIT", lines[0])
	assert.Equal(t, "init_sessions          sessions", lines[2])
	assert.Equal(t, "crash_free_percentage  percentage", lines[3])
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("Name", "session.duration")
	kv.AddRow("Operations", "avg, max")
	kv.Render()

	assert.Equal(t, "Name:       session.duration\nOperations: avg, max\n", buf.String())
}

func TestNumberedListAndHeader(t *testing.T) {
	var buf bytes.Buffer
	Header(&buf, "Order", true)
	NumberedList(&buf, []string{"a", "b"}, true)
	assert.Equal(t, "Order\n─────\n1. a\n2. b\n", buf.String())
}

func TestWithSpinner(t *testing.T) {
	var buf bytes.Buffer
	called := false
	err := WithSpinner(&buf, "querying", true, func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, strings.HasSuffix(buf.String(), "\r\033[K"))

	boom := errors.New("boom")
	assert.ErrorIs(t, WithSpinner(&buf, "querying", true, func() error { return boom }), boom)
}

func TestSpinner_StopIdempotent(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "x", true)
	s.Stop()
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
	assert.Equal(t, "\r\033[K", buf.String()[len(buf.String())-4:])
}
