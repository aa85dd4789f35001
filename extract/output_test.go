package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewValues(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	v := newValues("https://www.Example.test:8080/blog/", "run-1", now)
	if v.Host != "www-example-test" {
		t.Errorf("Host = %q", v.Host)
	}
	if v.RunID != "run-1" || !v.Time.Equal(now) {
		t.Errorf("unexpected values %+v", v)
	}

	if v := newValues("file:///tmp/index.html", "", now); v.Host != "page" {
		t.Errorf("Host for file url = %q, want page", v.Host)
	}
}

func TestBuildFileName(t *testing.T) {
	values := Values{Host: "site-test", RunID: "0190", Time: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}

	tests := []struct {
		name    string
		tmpl    string
		want    string
		wantErr bool
	}{
		{name: "empty template", tmpl: "", want: "site-test-critical.css"},
		{name: "default template", tmpl: "{{ .Host }}-critical.css", want: "site-test-critical.css"},
		{name: "no extension", tmpl: "{{ .Host }}-{{ .RunID }}", want: "site-test-0190.css"},
		{name: "sprig", tmpl: `{{ .Host | upper }}-{{ .Time | date "2006" }}`, want: "SITE-TEST-2024.css"},
		{name: "directories dropped", tmpl: "out/{{ .Host }}.css", want: "site-test.css"},
		{name: "blank result", tmpl: "{{ if false }}x{{ end }}  ", want: "site-test-critical.css"},
		{name: "bad template", tmpl: "{{ .Host ", want: "site-test-critical.css", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildFileName(tt.tmpl, values)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildFileName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("buildFileName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildOutputPath(t *testing.T) {
	dir := t.TempDir()

	got, err := buildOutputPath(filepath.Join(dir, "main.CSS"), "ignored.css")
	if err != nil {
		t.Fatalf("buildOutputPath() error = %v", err)
	}
	if got != filepath.Join(dir, "main.CSS") {
		t.Errorf("explicit file: got %q", got)
	}

	got, err = buildOutputPath(dir, "site-critical.css")
	if err != nil {
		t.Fatalf("buildOutputPath() error = %v", err)
	}
	if got != filepath.Join(dir, "site-critical.css") {
		t.Errorf("directory: got %q", got)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	got, err = buildOutputPath("", "site-critical.css")
	if err != nil {
		t.Fatalf("buildOutputPath() error = %v", err)
	}
	if got != filepath.Join(wd, "site-critical.css") {
		t.Errorf("working directory: got %q", got)
	}
}

func TestWriteOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.css")

	if err := writeOutput(path, []byte(".a{color:red}"), false); err != nil {
		t.Fatalf("writeOutput() error = %v", err)
	}
	err := writeOutput(path, []byte(".b{color:blue}"), false)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected refusal to overwrite, got %v", err)
	}
	if err := writeOutput(path, []byte(".b{color:blue}"), true); err != nil {
		t.Fatalf("writeOutput() with overwrite error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != ".b{color:blue}" {
		t.Errorf("unexpected content %q", data)
	}
}
