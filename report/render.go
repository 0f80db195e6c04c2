package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 1.5em; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
td.num { text-align: right; }
.bar { background: #87ceeb; height: 1em; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{with .Report.Summary}}
<h2>Summary</h2>
<ul>
<li>Pairs: {{.Total}}</li>
<li>Found: {{.Found}}</li>
<li>Not found: {{.NotFound}}</li>
<li>Failed lookups: {{.Failed}}</li>
{{if .Found}}<li>Best rank: {{.Best}}, worst rank: {{.Worst}}, mean rank: {{printf "%.2f" .MeanRank}}</li>{{end}}
</ul>
{{end}}
<h2>Results</h2>
<table>
<thead><tr><th>query</th><th>target-name</th><th>rank</th><th>found</th></tr></thead>
<tbody>
{{range .Report.Rows}}<tr><td>{{.Query}}</td><td>{{.Target}}</td><td class="num">{{.Outcome}}</td><td>{{.Outcome.IsFound}}</td></tr>
{{end}}</tbody>
</table>
{{if .Report.Bars}}
<h2>Rank by target</h2>
<table>
<thead><tr><th>target (query)</th><th>rank</th></tr></thead>
<tbody>
{{range .Report.Bars}}<tr><td>{{.Label}}</td><td class="num">{{.Rank}}</td></tr>
{{end}}</tbody>
</table>
{{else}}
<p>No target was found, nothing to chart.</p>
{{end}}
{{with .Report.Heatmap}}
<h2>Rank by target and query</h2>
<table>
<thead><tr><th>target</th>{{range .Queries}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range $i, $t := .Targets}}<tr><td>{{$t}}</td>{{range index $.Report.Heatmap.Cells $i}}<td class="num">{{cell .}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
{{end}}
{{with .Report.Histogram}}
<h2>Rank distribution</h2>
<table>
<thead><tr><th>ranks</th><th>count</th></tr></thead>
<tbody>
{{range .}}<tr><td>{{printf "%.1f" .Low}} to {{printf "%.1f" .High}}</td><td class="num">{{.Count}}</td></tr>
{{end}}</tbody>
</table>
{{end}}
<h2>Targets within top {{.Report.Cutoff}} per query</h2>
{{if .Report.TopN}}
<table>
<thead><tr><th>query</th><th>count</th></tr></thead>
<tbody>
{{range .Report.TopN}}<tr><td>{{.Query}}</td><td class="num">{{.Count}}</td></tr>
{{end}}</tbody>
</table>
{{else}}
<p>None.</p>
{{end}}
</body>
</html>
`

// Renderer turns a Report into a standalone HTML page or Markdown. It is
// safe for concurrent use.
type Renderer struct {
	Title string

	tmpl *template.Template
	conv *converter.Converter
}

// NewRenderer parses the page template and prepares the Markdown converter.
func NewRenderer(title string) *Renderer {
	funcs := template.FuncMap{
		"cell": func(rank int) string {
			if rank == 0 {
				return "-"
			}
			return strconv.Itoa(rank)
		},
	}
	return &Renderer{
		Title: title,
		tmpl:  template.Must(template.New("report").Funcs(funcs).Parse(pageTemplate)),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// HTML writes the report as an HTML page.
func (r *Renderer) HTML(w io.Writer, rep *Report) error {
	data := struct {
		Title  string
		Report *Report
	}{r.Title, rep}
	if err := r.tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}

// Markdown renders the HTML page and converts it to Markdown.
func (r *Renderer) Markdown(rep *Report) (string, error) {
	var buf bytes.Buffer
	if err := r.HTML(&buf, rep); err != nil {
		return "", err
	}
	md, err := r.conv.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("report: convert markdown: %w", err)
	}
	return md, nil
}
