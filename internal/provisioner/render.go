// Where: cli/internal/provisioner/render.go
// What: Text and JSON renderings of a provisioning report.
// Why: Operators read the text form; automation consumes the JSON form.
package provisioner

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templateCache sync.Map

// Output formats accepted by Render.
const (
	FormatText = "text"
	FormatJSON = "json"
)

type reportRow struct {
	Mark    string
	Kind    string
	Path    string
	Outcome string
	Error   string
}

type reportTemplateData struct {
	Database string
	Rows     []reportRow
	Failures []reportRow
	Counts   Counts
	Success  bool
	Aborted  bool
}

var outcomeMarks = map[Outcome]string{
	Created:       "+",
	AlreadyExists: "=",
	Failed:        "!",
	Skipped:       "-",
}

// Render writes the report in the requested format.
func Render(w io.Writer, report Report, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		text, err := RenderText(report)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, text)
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		return fmt.Errorf("unsupported output format %q (want %s or %s)", format, FormatText, FormatJSON)
	}
}

// RenderText renders the human-readable summary table.
func RenderText(report Report) (string, error) {
	data := reportTemplateData{
		Database: report.Database,
		Counts:   report.Counts(),
		Success:  report.Success(),
		Aborted:  report.Aborted,
	}
	for _, res := range report.Results {
		row := toRow(res)
		data.Rows = append(data.Rows, row)
		if res.Outcome == Failed {
			data.Failures = append(data.Failures, row)
		}
	}
	return renderTemplate("report.tmpl", data)
}

func toRow(res Result) reportRow {
	row := reportRow{
		Mark:    outcomeMarks[res.Outcome],
		Kind:    string(res.Kind),
		Path:    res.Path(),
		Outcome: string(res.Outcome),
	}
	if res.Err != nil {
		row.Error = res.Err.Error()
	}
	return row
}

func renderTemplate(name string, data any) (string, error) {
	tmpl, err := loadTemplate(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func loadTemplate(name string) (*template.Template, error) {
	if value, ok := templateCache.Load(name); ok {
		return value.(*template.Template), nil
	}
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return nil, err
	}
	templateCache.Store(name, tmpl)
	return tmpl, nil
}
