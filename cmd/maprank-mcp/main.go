// Command maprank-mcp exposes the maprank API to MCP clients over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	_ = godotenv.Load()

	apiURL := os.Getenv("MAPRANK_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	// Empty is fine when the server runs without auth.
	apiKey := os.Getenv("MAPRANK_API_KEY")

	if err := server.ServeStdio(newServer(newAPIClient(apiURL, apiKey))); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(c *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"maprank",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	lookupTool := mcp.NewTool("rank_lookup",
		mcp.WithDescription("Find the position of a place in the map search results for a query. Sponsored results take a position but are never matched. Returns the 1-based rank or 'not found'."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search text, e.g. '강남 맛집'"),
		),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Exact display name of the place to find"),
		),
		mcp.WithNumber("max_scroll_attempts",
			mcp.Description("How many times to load more results before giving up (default: server setting, max: 200)"),
		),
	)
	s.AddTool(lookupTool, handleLookup(c))

	batchTool := mcp.NewTool("rank_batch",
		mcp.WithDescription("Resolve many (query, target) pairs in order and wait for the results. Slow: each pair loads a search page."),
		mcp.WithArray("pairs",
			mcp.Required(),
			mcp.Description(`Pairs written as "query=target", e.g. ["강남 맛집=봉피양 강남점"]`),
		),
		mcp.WithNumber("max_scroll_attempts",
			mcp.Description("Scroll budget per pair (default: server setting)"),
		),
	)
	s.AddTool(batchTool, handleBatch(c))

	statusTool := mcp.NewTool("batch_status",
		mcp.WithDescription("Show the progress and rows of a batch started earlier."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Batch ID returned by rank_batch"),
		),
	)
	s.AddTool(statusTool, handleBatchStatus(c))

	reportTool := mcp.NewTool("batch_report",
		mcp.WithDescription("Summarise a finished batch: found counts, best/worst rank, per-query top-20 counts."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Batch ID"),
		),
	)
	s.AddTool(reportTool, handleBatchReport(c))

	return s
}
