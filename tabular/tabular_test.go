package tabular

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/maprank/models"
)

const bom = "\xef\xbb\xbf"

func TestReadPairs(t *testing.T) {
	in := bom + "검색어,업체명,memo\n" +
		"의정부 미용실, 준오헤어 의정부역점 ,x\n" +
		"\n" +
		",,\n" +
		"강남 맛집,봉피양 강남점\n" +
		"의정부 미용실,준오헤어 의정부역점\n"

	pairs, err := ReadPairs(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []models.Pair{
		{Query: "의정부 미용실", Target: "준오헤어 의정부역점"},
		{Query: "강남 맛집", Target: "봉피양 강남점"},
	}, pairs)
}

func TestReadPairs_HeaderTextIsIrrelevant(t *testing.T) {
	pairs, err := ReadPairs(strings.NewReader("a,b\nq,t\n"))
	require.NoError(t, err)
	assert.Equal(t, []models.Pair{{Query: "q", Target: "t"}}, pairs)
}

func TestReadPairs_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty file", "", "file is empty"},
		{"single column", "query\nq\n", "at least two columns"},
		{"empty target", "query,target-name\nq,t\nq2,\n", "line 3: target-name is empty"},
		{"empty query", "query,target-name\n ,t\n", "line 2: query is empty"},
		{"missing cell", "query,target-name\nq\n", "line 2: target-name is empty"},
		{"bad quoting", "query,target-name\n\"q,t\n", "malformed CSV"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPairs(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, models.ErrCodeInvalidInput, models.DetailOf(err).Code)
		})
	}
}

func TestWriteResults(t *testing.T) {
	rows := []models.ResultRow{
		{Query: "강남 맛집", Target: "봉피양 강남점", Outcome: models.Found(3)},
		{Query: "q, with comma", Target: "T", Outcome: models.NotFound},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, rows))

	want := bom +
		"query,target-name,rank,found\n" +
		"강남 맛집,봉피양 강남점,3,true\n" +
		"\"q, with comma\",T,not found,false\n"
	assert.Equal(t, want, buf.String())
}

func TestTemplateRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePairsTemplate(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), bom+"query,target-name\n"))

	pairs, err := ReadPairs(&buf)
	require.NoError(t, err)
	assert.Equal(t, examplePairs, pairs)
}
