package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/maprank/models"
)

func handleLookup(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}
		target, err := request.RequireString("target")
		if err != nil {
			return mcp.NewToolResultError("target is required"), nil
		}

		body, err := c.post(ctx, "/api/v1/rank", models.RankRequest{
			Query:             query,
			Target:            target,
			MaxScrollAttempts: request.GetInt("max_scroll_attempts", 0),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		var resp models.RankResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if resp.Row == nil {
			return mcp.NewToolResultError(errorText(resp.Error, "lookup failed")), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s / %s: %s", query, target, describeOutcome(resp.Row.Outcome))
		if resp.Error != nil {
			fmt.Fprintf(&sb, " (%s)", errorText(resp.Error, ""))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleBatch(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := request.RequireStringSlice("pairs")
		if err != nil {
			return mcp.NewToolResultError("pairs is required and must be an array of \"query=target\" strings"), nil
		}
		pairs := make([]models.Pair, 0, len(raw))
		for _, s := range raw {
			query, target, ok := strings.Cut(s, "=")
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("pair %q: want query=target", s)), nil
			}
			pairs = append(pairs, models.Pair{Query: strings.TrimSpace(query), Target: strings.TrimSpace(target)})
		}

		// POST to create batch job.
		body, err := c.post(ctx, "/api/v1/batch", models.BatchRequest{
			Pairs:   pairs,
			Options: models.BatchOptions{MaxScrollAttempts: request.GetInt("max_scroll_attempts", 0)},
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}
		var created models.BatchResponse
		if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
			return mcp.NewToolResultError("batch job creation failed"), nil
		}

		// Poll for completion.
		st, err := c.waitForBatch(ctx, created.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling batch %s failed: %v", created.ID, err)), nil
		}
		return mcp.NewToolResultText(formatStatus(st)), nil
	}
}

func handleBatchStatus(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		body, err := c.get(ctx, "/api/v1/batch/"+id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("status request failed: %v", err)), nil
		}
		var st models.BatchStatusResponse
		if err := json.Unmarshal(body, &st); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse status: %v", err)), nil
		}
		return mcp.NewToolResultText(formatStatus(&st)), nil
	}
}

func handleBatchReport(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		body, err := c.get(ctx, "/api/v1/batch/"+id+"/report?format=markdown")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("report request failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// formatStatus renders a batch as a header line plus one line per row.
func formatStatus(st *models.BatchStatusResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s: %s (%d/%d pairs)\n", st.ID, st.Status, st.Completed, st.Total)
	if st.Status == models.StatusProcessing && st.Message != "" {
		fmt.Fprintf(&sb, "Now: %s\n", st.Message)
	}
	if st.Error != nil {
		fmt.Fprintf(&sb, "Error: %s\n", errorText(st.Error, ""))
	}
	if len(st.Rows) > 0 {
		sb.WriteString("\n")
	}
	for i, row := range st.Rows {
		fmt.Fprintf(&sb, "[%d] %s / %s: %s", i+1, row.Query, row.Target, describeOutcome(row.Outcome))
		if row.Error != nil {
			fmt.Fprintf(&sb, " (%s)", errorText(row.Error, ""))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func describeOutcome(o models.Outcome) string {
	if rank, ok := o.Rank(); ok {
		return fmt.Sprintf("rank %d", rank)
	}
	return "not found"
}

func errorText(e *models.ErrorDetail, fallback string) string {
	if e == nil {
		return fallback
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}
