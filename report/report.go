// Package report aggregates batch result rows into the series a dashboard
// needs: summary figures, a rank bar series, a target-by-query heatmap, a rank
// histogram and per-query top-N counts.
package report

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/use-agent/maprank/models"
)

// TopRankCutoff is the rank at or below which a found target counts towards
// TopN in a full report.
const TopRankCutoff = 20

// HistogramBins is the bin count used by Build.
const HistogramBins = 10

// Summary holds batch-level figures. Best, Worst and MeanRank are zero when
// nothing was found.
type Summary struct {
	Total    int     `json:"total"`
	Found    int     `json:"found"`
	NotFound int     `json:"not_found"`
	Failed   int     `json:"failed"`
	Best     int     `json:"best_rank,omitempty"`
	Worst    int     `json:"worst_rank,omitempty"`
	MeanRank float64 `json:"mean_rank,omitempty"`
}

// Summarize counts outcomes. Failed counts rows that carry an error detail.
func Summarize(rows []models.ResultRow) Summary {
	s := Summary{Total: len(rows)}
	sum := 0
	for _, row := range rows {
		if row.Error != nil {
			s.Failed++
		}
		rank, ok := row.Outcome.Rank()
		if !ok {
			s.NotFound++
			continue
		}
		s.Found++
		sum += rank
		if s.Best == 0 || rank < s.Best {
			s.Best = rank
		}
		if rank > s.Worst {
			s.Worst = rank
		}
	}
	if s.Found > 0 {
		s.MeanRank = math.Round(float64(sum)/float64(s.Found)*100) / 100
	}
	return s
}

// Bar is one found row in the rank bar series.
type Bar struct {
	Label  string `json:"label"`
	Query  string `json:"query"`
	Target string `json:"target"`
	Rank   int    `json:"rank"`
}

// BarSeries returns the found rows ordered by rank, ties in input order.
func BarSeries(rows []models.ResultRow) []Bar {
	var bars []Bar
	for _, row := range rows {
		if rank, ok := row.Outcome.Rank(); ok {
			bars = append(bars, Bar{
				Label:  fmt.Sprintf("%s (%s)", row.Target, row.Query),
				Query:  row.Query,
				Target: row.Target,
				Rank:   rank,
			})
		}
	}
	slices.SortStableFunc(bars, func(a, b Bar) int { return cmp.Compare(a.Rank, b.Rank) })
	return bars
}

// Heatmap pivots found ranks into targets × queries. Cells[i][j] is the rank
// of Targets[i] under Queries[j], or 0 when it was not found there.
type Heatmap struct {
	Targets []string `json:"targets"`
	Queries []string `json:"queries"`
	Cells   [][]int  `json:"cells"`
}

// BuildHeatmap returns the pivot only when at least one target was found
// under two or more queries; otherwise there is nothing to compare.
func BuildHeatmap(rows []models.ResultRow) (*Heatmap, bool) {
	var found []models.ResultRow
	for _, row := range rows {
		if row.Outcome.IsFound() {
			found = append(found, row)
		}
	}

	targets := uniqueSorted(found, func(r models.ResultRow) string { return r.Target })
	if len(targets) >= len(found) {
		return nil, false
	}
	queries := uniqueSorted(found, func(r models.ResultRow) string { return r.Query })

	hm := &Heatmap{Targets: targets, Queries: queries, Cells: make([][]int, len(targets))}
	for i := range hm.Cells {
		hm.Cells[i] = make([]int, len(queries))
	}
	for _, row := range found {
		i, _ := slices.BinarySearch(targets, row.Target)
		j, _ := slices.BinarySearch(queries, row.Query)
		if hm.Cells[i][j] == 0 {
			hm.Cells[i][j], _ = row.Outcome.Rank()
		}
	}
	return hm, true
}

func uniqueSorted(rows []models.ResultRow, key func(models.ResultRow) string) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, key(row))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Bin is one histogram bucket covering [Low, High); the last bin also
// includes High.
type Bin struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// Histogram spreads found ranks over bins equal-width buckets between the
// lowest and highest rank. It needs at least three found rows.
func Histogram(rows []models.ResultRow, bins int) ([]Bin, bool) {
	var ranks []int
	for _, row := range rows {
		if rank, ok := row.Outcome.Rank(); ok {
			ranks = append(ranks, rank)
		}
	}
	if len(ranks) < 3 || bins < 1 {
		return nil, false
	}

	lo, hi := float64(slices.Min(ranks)), float64(slices.Max(ranks))
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(bins)

	out := make([]Bin, bins)
	for i := range out {
		out[i].Low = lo + float64(i)*width
		out[i].High = lo + float64(i+1)*width
	}
	out[bins-1].High = hi

	for _, r := range ranks {
		i := int((float64(r) - lo) / width)
		out[min(i, bins-1)].Count++
	}
	return out, true
}

// QueryCount is the number of targets a query ranked within the cutoff.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// TopN counts, per query, the found rows ranked at or below n. Queries with
// no such row are omitted; the result is ordered by query.
func TopN(rows []models.ResultRow, n int) []QueryCount {
	counts := make(map[string]int)
	for _, row := range rows {
		if rank, ok := row.Outcome.Rank(); ok && rank <= n {
			counts[row.Query]++
		}
	}
	out := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		out = append(out, QueryCount{Query: q, Count: c})
	}
	slices.SortFunc(out, func(a, b QueryCount) int { return cmp.Compare(a.Query, b.Query) })
	return out
}

// Report bundles every aggregation of one batch.
type Report struct {
	Summary   Summary            `json:"summary"`
	Bars      []Bar              `json:"bars"`
	Heatmap   *Heatmap           `json:"heatmap,omitempty"`
	Histogram []Bin              `json:"histogram,omitempty"`
	TopN      []QueryCount       `json:"top_n"`
	Cutoff    int                `json:"top_n_cutoff"`
	Rows      []models.ResultRow `json:"rows"`
}

// Build computes the full report for rows.
func Build(rows []models.ResultRow) *Report {
	r := &Report{
		Summary: Summarize(rows),
		Bars:    BarSeries(rows),
		TopN:    TopN(rows, TopRankCutoff),
		Cutoff:  TopRankCutoff,
		Rows:    rows,
	}
	if hm, ok := BuildHeatmap(rows); ok {
		r.Heatmap = hm
	}
	if bins, ok := Histogram(rows, HistogramBins); ok {
		r.Histogram = bins
	}
	return r
}
