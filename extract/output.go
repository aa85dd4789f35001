package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/gosimple/slug"

	"critcss/config"
)

const outputExt = ".css"

// Values holds variables available for output name template expansion.
type Values struct {
	Context string
	Host    string
	RunID   string
	Time    time.Time
}

func newValues(pageURL, runID string, now time.Time) Values {
	host := "page"
	if u, err := url.Parse(pageURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return Values{
		Context: string(config.OutputNameTemplateFieldName),
		Host:    slug.Make(host),
		RunID:   runID,
		Time:    now,
	}
}

func expandTemplate(name config.TemplateFieldName, field string, values Values) (string, error) {
	tmpl, err := template.New(string(name)).Funcs(sprig.FuncMap()).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", name, err)
	}
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// buildFileName returns output file name: expanded template or, when it is
// empty or fails, default name derived from the page host.
func buildFileName(tmpl string, values Values) (string, error) {
	name := values.Host + "-critical"
	var err error
	if tmpl != "" {
		var expanded string
		if expanded, err = expandTemplate(config.OutputNameTemplateFieldName, tmpl, values); err == nil && strings.TrimSpace(expanded) != "" {
			name = strings.TrimSpace(expanded)
		}
	}
	name = config.CleanFileName(strings.TrimSuffix(filepath.Base(filepath.FromSlash(name)), outputExt))
	return name + outputExt, err
}

// buildOutputPath resolves destination: path ending with .css is used as is,
// anything else is a directory to put generated name into.
func buildOutputPath(dst, fileName string) (string, error) {
	if strings.EqualFold(filepath.Ext(dst), outputExt) {
		return filepath.Abs(dst)
	}
	if dst == "" {
		var err error
		if dst, err = os.Getwd(); err != nil {
			return "", fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	return filepath.Abs(filepath.Join(dst, fileName))
}

// writeOutput saves css refusing to replace existing file unless overwrite
// is requested.
func writeOutput(path string, data []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("output file already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("unable to write output: %w", err)
	}
	return nil
}
