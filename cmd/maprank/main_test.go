package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/maprank/models"
)

func TestParsePairFlag(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Pair
		wantErr string
	}{
		{in: "강남 맛집=봉피양 강남점", want: models.Pair{Query: "강남 맛집", Target: "봉피양 강남점"}},
		{in: " q = a=b ", want: models.Pair{Query: "q", Target: "a=b"}},
		{in: "no separator", wantErr: "want query=target"},
		{in: "q=", wantErr: "target must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePairFlag(tt.in)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollectPairs_FileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.csv")
	require.NoError(t, os.WriteFile(path, []byte("검색어,상호명\nq1,A\nq1,A\nq2,B\n"), 0o644))

	pairs, err := collectPairs(path, []string{"q3=C"})
	require.NoError(t, err)
	assert.Equal(t, []models.Pair{
		{Query: "q1", Target: "A"},
		{Query: "q2", Target: "B"},
		{Query: "q3", Target: "C"},
	}, pairs)

	_, err = collectPairs(filepath.Join(t.TempDir(), "missing.csv"), nil)
	assert.ErrorContains(t, err, "opening input")
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, []models.ResultRow{
		{Query: "q", Target: "A", Outcome: models.Found(7)},
		{Query: "q", Target: "B", Outcome: models.NotFound,
			Error: &models.ErrorDetail{Code: models.ErrCodeNavigationTimeout, Message: "slow"}},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "QUERY"))
	assert.Contains(t, lines[1], "7")
	assert.Contains(t, lines[2], "not found")
	assert.Contains(t, lines[2], "NAVIGATION_TIMEOUT: slow")
}

func TestReportFormat(t *testing.T) {
	for path, want := range map[string]string{"r.html": "html", "R.MD": "markdown", "out/r.json": "json"} {
		got, err := reportFormat(path)
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}
	_, err := reportFormat("r.pdf")
	assert.Error(t, err)
}

func TestWriteReport_Markdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, writeReport(path, []models.ResultRow{
		{Query: "q", Target: "A", Outcome: models.Found(3)},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Rank report")
}

func TestTemplateCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"template"})
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "\ufeffquery,target-name\n"))
}

func TestRunCommand_RequiresPairs(t *testing.T) {
	rootCmd.SetArgs([]string{"run"})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetErr(nil) })

	err := rootCmd.Execute()
	assert.ErrorContains(t, err, "no pairs given")
}
