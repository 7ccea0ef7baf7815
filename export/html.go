package export

import (
	"html/template"
	"io"

	"github.com/caffeineduck/runsheet/batch"
	"github.com/caffeineduck/runsheet/catalog"
)

var htmlTemplate = template.Must(template.New("submission").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Calibri, Arial, sans-serif; max-width: 960px; margin: 2em auto; }
h1 { text-align: center; margin-bottom: 2em; }
h2 { margin-top: 2em; }
pre.code { font-family: "Courier New", monospace; font-size: 10pt; background: #f5f5f5; border: 1px solid #efefef; padding: 0.5em; }
pre.output { font-family: Consolas, monospace; font-size: 9pt; font-weight: bold; color: #2d3748; background: #e6fffa; border-left: 3px solid #38b2ac; margin-left: 2em; padding: 0.5em; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{- range .Problems}}
<h2>Problem {{.Number}}: {{.Name}}</h2>
<h4>Source Code:</h4>
<pre class="code"><code class="language-{{$.Language}}">{{.Source}}</code></pre>
<h4>Execution Output:</h4>
<pre class="output">{{.Output}}</pre>
{{- end}}
</body>
</html>
`))

// HTML writes b as a standalone HTML page. Source and output are escaped.
func HTML(w io.Writer, b batch.Batch, lang catalog.Language, opts ...Option) error {
	return htmlTemplate.Execute(w, newDocument(b, lang, opts))
}
