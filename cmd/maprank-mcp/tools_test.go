package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/maprank/models"
)

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestLookupTool(t *testing.T) {
	var got models.RankRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rank", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		row := models.ResultRow{Query: got.Query, Target: got.Target, Outcome: models.Found(4)}
		_ = json.NewEncoder(w).Encode(models.RankResponse{Success: true, Row: &row})
	}))
	defer srv.Close()

	text, isErr := callTool(t, handleLookup(newAPIClient(srv.URL, "k")), map[string]any{
		"query": "강남 맛집", "target": "봉피양 강남점", "max_scroll_attempts": float64(7),
	})
	assert.False(t, isErr)
	assert.Equal(t, "강남 맛집 / 봉피양 강남점: rank 4", text)
	assert.Equal(t, 7, got.MaxScrollAttempts)
}

func TestLookupTool_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: &models.ErrorDetail{Code: models.ErrCodeBusy, Message: "retry later"}})
	}))
	defer srv.Close()

	text, isErr := callTool(t, handleLookup(newAPIClient(srv.URL, "")), map[string]any{"query": "q", "target": "t"})
	assert.True(t, isErr)
	assert.Contains(t, text, "[TOO_MANY_BATCHES] retry later")

	_, isErr = callTool(t, handleLookup(newAPIClient(srv.URL, "")), map[string]any{"query": "q"})
	assert.True(t, isErr)
}

func TestBatchTool_PollsUntilDone(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/batch":
			var req models.BatchRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, []models.Pair{{Query: "q1", Target: "A"}, {Query: "q2", Target: "B"}}, req.Pairs)
			_ = json.NewEncoder(w).Encode(models.BatchResponse{ID: "batch-1", Status: models.StatusProcessing, Total: 2})
		case r.URL.Path == "/api/v1/batch/batch-1":
			st := models.BatchStatusResponse{ID: "batch-1", Status: models.StatusProcessing, Total: 2}
			if polls.Add(1) >= 2 {
				st.Status = models.StatusCompleted
				st.Completed = 2
				st.Rows = []models.ResultRow{
					{Query: "q1", Target: "A", Outcome: models.Found(1)},
					{Query: "q2", Target: "B", Outcome: models.NotFound,
						Error: &models.ErrorDetail{Code: models.ErrCodeNavigationTimeout, Message: "slow"}},
				}
			}
			_ = json.NewEncoder(w).Encode(st)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL, "")
	c.pollInterval = 5 * time.Millisecond

	text, isErr := callTool(t, handleBatch(c), map[string]any{"pairs": []any{"q1=A", "q2 = B"}})
	assert.False(t, isErr)
	assert.Equal(t, "Batch batch-1: completed (2/2 pairs)\n\n"+
		"[1] q1 / A: rank 1\n"+
		"[2] q2 / B: not found ([NAVIGATION_TIMEOUT] slow)\n", text)
	assert.Equal(t, int32(2), polls.Load())
}

func TestBatchTool_BadPair(t *testing.T) {
	text, isErr := callTool(t, handleBatch(newAPIClient("http://127.0.0.1:0", "")), map[string]any{"pairs": []any{"no separator"}})
	assert.True(t, isErr)
	assert.Contains(t, text, "want query=target")
}

func TestReportTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "markdown", r.URL.Query().Get("format"))
		_, _ = w.Write([]byte("# Rank report\n"))
	}))
	defer srv.Close()

	text, isErr := callTool(t, handleBatchReport(newAPIClient(srv.URL, "")), map[string]any{"id": "batch-1"})
	assert.False(t, isErr)
	assert.Equal(t, "# Rank report\n", text)
}

func TestNewServer(t *testing.T) {
	assert.NotNil(t, newServer(newAPIClient("http://127.0.0.1:8080", "")))
}
