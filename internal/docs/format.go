package docs

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"text/tabwriter"
)

// Formatter renders a GuideModel to a writer.
type Formatter interface {
	Format(w io.Writer, model *GuideModel) error
	// FileName is the conventional file name of the guide.
	FileName() string
}

// NewFormatter returns a formatter for the given format name.
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "markdown", "md", "":
		return &MarkdownFormatter{}, nil
	case "html":
		return &HTMLFormatter{}, nil
	case "asciidoc", "adoc":
		return &AsciiDocFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported guide format: %s", format)
	}
}

// ---------------------------------------------------------------------------
// Markdown
// ---------------------------------------------------------------------------

// MarkdownFormatter renders the guide as Markdown.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FileName() string { return "README.md" }

func (f *MarkdownFormatter) Format(w io.Writer, model *GuideModel) error {
	s, err := renderSnippets(model.RulesFile)
	if err != nil {
		return err
	}

	groups, ruleCount := model.Totals()

	fmt.Fprintf(w, "# %s\n\n", model.title())
	fmt.Fprintf(w, "`%s` holds %d groups with %d rules converted for a standalone Prometheus.\n\n",
		model.RulesFile, groups, ruleCount)

	fmt.Fprintf(w, "## Usage\n\n")
	fmt.Fprintf(w, "### prometheus.yml\n\n```yaml\n%s```\n\n", s.Prometheus)
	fmt.Fprintf(w, "### Docker Compose\n\n```yaml\n%s```\n\n", s.Compose)
	fmt.Fprintf(w, "### Kubernetes ConfigMap\n\n```bash\n%s\n```\n\n", s.ConfigMap)

	fmt.Fprintf(w, "## Caveats\n\n")

	for i, c := range caveats(model.Label) {
		fmt.Fprintf(w, "%d. %s\n", i+1, c)
	}

	fmt.Fprintln(w)

	if len(model.Groups) > 0 {
		fmt.Fprintf(w, "## Groups\n\n")

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

		fmt.Fprintln(tw, "| Group\t| Interval\t| Alerts\t| Records\t|")
		fmt.Fprintln(tw, "|-------\t|----------\t|--------\t|---------\t|")

		for _, g := range model.Groups {
			interval := g.Interval
			if interval == "" {
				interval = "-"
			}

			fmt.Fprintf(tw, "| %s\t| %s\t| %d\t| %d\t|\n", g.Name, interval, g.Alerts, g.Records)
		}

		tw.Flush()

		fmt.Fprintln(w)
	}

	if len(model.Jobs) > 0 {
		fmt.Fprintf(w, "## Referenced jobs\n\n")

		for _, j := range model.Jobs {
			fmt.Fprintf(w, "- `%s` (%d)\n", j.Job, j.Count)
		}

		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "## Customization\n\n")

	for _, c := range customizations {
		fmt.Fprintf(w, "- %s\n", c)
	}

	return nil
}

// ---------------------------------------------------------------------------
// HTML
// ---------------------------------------------------------------------------

// HTMLFormatter renders the guide as a standalone HTML page.
type HTMLFormatter struct{}

func (f *HTMLFormatter) FileName() string { return "README.html" }

var htmlTpl = template.Must(template.New("guide").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:sans-serif;margin:2em;line-height:1.6}
table{border-collapse:collapse;width:100%;margin-bottom:1em}
th,td{border:1px solid #ddd;padding:8px;text-align:left}
th{background:#f5f5f5}
code{background:#f0f0f0;padding:2px 4px;border-radius:3px}
pre{background:#f5f5f5;padding:1em;border-radius:4px;overflow-x:auto}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p><code>{{.RulesFile}}</code> holds {{.GroupCount}} groups with {{.RuleCount}} rules converted for a standalone Prometheus.</p>

<h2>Usage</h2>
<h3>prometheus.yml</h3>
<pre><code>{{.Snippets.Prometheus}}</code></pre>
<h3>Docker Compose</h3>
<pre><code>{{.Snippets.Compose}}</code></pre>
<h3>Kubernetes ConfigMap</h3>
<pre><code>{{.Snippets.ConfigMap}}</code></pre>

<h2>Caveats</h2>
<ol>
{{range .Caveats}}<li>{{.}}</li>
{{end}}</ol>

{{if .Groups}}
<h2>Groups</h2>
<table>
<tr><th>Group</th><th>Interval</th><th>Alerts</th><th>Records</th></tr>
{{range .Groups}}<tr><td>{{.Name}}</td><td>{{if .Interval}}{{.Interval}}{{else}}-{{end}}</td><td>{{.Alerts}}</td><td>{{.Records}}</td></tr>
{{end}}
</table>
{{end}}

{{if .Jobs}}
<h2>Referenced jobs</h2>
<ul>
{{range .Jobs}}<li><code>{{.Job}}</code> ({{.Count}})</li>
{{end}}</ul>
{{end}}

<h2>Customization</h2>
<ul>
{{range .Customizations}}<li>{{.}}</li>
{{end}}</ul>
</body>
</html>
`))

// htmlModel wraps GuideModel with the values the HTML template needs.
type htmlModel struct {
	*GuideModel
	Title          string
	GroupCount     int
	RuleCount      int
	Snippets       snippets
	Caveats        []string
	Customizations []string
}

func (f *HTMLFormatter) Format(w io.Writer, model *GuideModel) error {
	s, err := renderSnippets(model.RulesFile)
	if err != nil {
		return err
	}

	m := htmlModel{
		GuideModel:     model,
		Title:          model.title(),
		Snippets:       s,
		Caveats:        caveats(model.Label),
		Customizations: customizations,
	}
	m.GroupCount, m.RuleCount = model.Totals()

	return htmlTpl.Execute(w, m)
}

// ---------------------------------------------------------------------------
// AsciiDoc
// ---------------------------------------------------------------------------

// AsciiDocFormatter renders the guide as AsciiDoc.
type AsciiDocFormatter struct{}

func (f *AsciiDocFormatter) FileName() string { return "README.adoc" }

func (f *AsciiDocFormatter) Format(w io.Writer, model *GuideModel) error {
	s, err := renderSnippets(model.RulesFile)
	if err != nil {
		return err
	}

	groups, ruleCount := model.Totals()

	fmt.Fprintf(w, "= %s\n\n", model.title())
	fmt.Fprintf(w, "`%s` holds %d groups with %d rules converted for a standalone Prometheus.\n\n",
		model.RulesFile, groups, ruleCount)

	fmt.Fprintf(w, "== Usage\n\n")
	fmt.Fprintf(w, "=== prometheus.yml\n\n[source,yaml]\n----\n%s----\n\n", s.Prometheus)
	fmt.Fprintf(w, "=== Docker Compose\n\n[source,yaml]\n----\n%s----\n\n", s.Compose)
	fmt.Fprintf(w, "=== Kubernetes ConfigMap\n\n[source,bash]\n----\n%s\n----\n\n", s.ConfigMap)

	fmt.Fprintf(w, "== Caveats\n\n")

	for _, c := range caveats(model.Label) {
		fmt.Fprintf(w, ". %s\n", c)
	}

	fmt.Fprintln(w)

	if len(model.Groups) > 0 {
		fmt.Fprintf(w, "== Groups\n\n")
		fmt.Fprintln(w, "[cols=\"2,1,1,1\", options=\"header\"]")
		fmt.Fprintln(w, "|===")
		fmt.Fprintln(w, "| Group | Interval | Alerts | Records")

		for _, g := range model.Groups {
			interval := g.Interval
			if interval == "" {
				interval = "-"
			}

			fmt.Fprintf(w, "\n| %s\n| %s\n| %d\n| %d\n", g.Name, interval, g.Alerts, g.Records)
		}

		fmt.Fprintln(w, "|===")
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "== Customization\n\n")

	for _, c := range customizations {
		fmt.Fprintf(w, "* %s\n", c)
	}

	return nil
}
