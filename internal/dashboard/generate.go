package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"

	"tuw-telemetry/internal/telemetry"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Options parameterize the rendered dashboards.
type Options struct {
	// Title prefixes every dashboard title.
	Title string
	// Table is the GreptimeDB frame table. Empty uses telemetry.FrameTableName.
	Table string
}

// Render executes every embedded dashboard template and writes the results to
// outDir. Datasource UIDs are read from the environment; a missing one fails
// the render. It returns the paths written.
func Render(outDir string, opts Options) ([]string, error) {
	if opts.Title == "" {
		opts.Title = "tuw"
	}
	if opts.Table == "" {
		opts.Table = telemetry.FrameTableName
	}
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	names, err := templates.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, entry := range names {
		name := entry.Name()
		t, err := template.New(name).Funcs(funcMap).ParseFS(templates, path.Join("templates", name))
		if err != nil {
			return written, err
		}
		var b strings.Builder
		if err := t.Execute(&b, opts); err != nil {
			return written, fmt.Errorf("render %s: %w", name, err)
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".tmpl"))
		if err := os.WriteFile(outPath, []byte(b.String()), 0o644); err != nil {
			return written, err
		}
		written = append(written, outPath)
	}
	return written, nil
}
