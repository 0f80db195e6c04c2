// Package tabular reads pair lists from and writes result tables to CSV
// files that open cleanly in spreadsheet tools.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/use-agent/maprank/models"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Column names of the input and result tables.
const (
	ColQuery  = "query"
	ColTarget = "target-name"
	ColRank   = "rank"
	ColFound  = "found"
)

// ReadPairs parses a pair list. The first record is a header and is
// discarded; whatever its text, the first column is the query and the second
// the target name. Extra columns are ignored. A leading byte-order mark is
// stripped.
//
// Blank rows are skipped. A row with an empty query or target is an
// INVALID_INPUT error naming its line. Repeated (query, target) pairs are
// dropped, keeping the first occurrence and the input order.
func ReadPairs(r io.Reader) ([]models.Pair, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, invalid("file is empty")
	}
	if err != nil {
		return nil, invalid(fmt.Sprintf("malformed CSV: %v", err))
	}
	if len(header) < 2 {
		return nil, invalid("at least two columns (query, target-name) are required")
	}

	var pairs []models.Pair
	seen := make(map[models.Pair]struct{})

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalid(fmt.Sprintf("malformed CSV: %v", err))
		}
		line, _ := cr.FieldPos(0)

		if isBlank(record) {
			continue
		}
		p := models.Pair{Query: strings.TrimSpace(record[0])}
		if len(record) > 1 {
			p.Target = strings.TrimSpace(record[1])
		}
		switch {
		case p.Query == "":
			return nil, invalid(fmt.Sprintf("line %d: %s is empty", line, ColQuery))
		case p.Target == "":
			return nil, invalid(fmt.Sprintf("line %d: %s is empty", line, ColTarget))
		}

		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		pairs = append(pairs, p)
	}

	return pairs, nil
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func invalid(msg string) error {
	return models.NewRankError(models.ErrCodeInvalidInput, msg, nil)
}

// examplePairs fill the downloadable input template.
var examplePairs = []models.Pair{
	{Query: "의정부 미용실", Target: "준오헤어 의정부역점"},
	{Query: "강남 맛집", Target: "봉피양 강남점"},
}

// WritePairsTemplate writes an example input file.
func WritePairsTemplate(w io.Writer) error {
	return writeBOM(w, func(cw *csv.Writer) error {
		if err := cw.Write([]string{ColQuery, ColTarget}); err != nil {
			return err
		}
		for _, p := range examplePairs {
			if err := cw.Write([]string{p.Query, p.Target}); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteResults writes one line per row in row order. The rank column holds
// the rank number or "not found".
func WriteResults(w io.Writer, rows []models.ResultRow) error {
	return writeBOM(w, func(cw *csv.Writer) error {
		if err := cw.Write([]string{ColQuery, ColTarget, ColRank, ColFound}); err != nil {
			return err
		}
		for _, row := range rows {
			record := []string{
				row.Query,
				row.Target,
				row.Outcome.String(),
				strconv.FormatBool(row.Outcome.IsFound()),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeBOM runs fn against a CSV writer whose output is UTF-8 with a
// byte-order mark.
func writeBOM(w io.Writer, fn func(cw *csv.Writer) error) error {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(tw)
	if err := fn(cw); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return tw.Close()
}
