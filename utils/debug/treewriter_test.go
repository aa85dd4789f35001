package debug

import (
	"testing"
)

func TestTreeWriter_Line(t *testing.T) {
	tests := []struct {
		name   string
		depth  int
		format string
		args   []any
		want   string
	}{
		{name: "no depth", depth: 0, format: "page %s", args: []any{"a"}, want: "page a\n"},
		{name: "nested", depth: 2, format: "%d selectors", args: []any{3}, want: "    3 selectors\n"},
		{name: "no args", depth: 1, format: "viewports", want: "  viewports\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw := NewTreeWriter()
			tw.Line(tt.depth, tt.format, tt.args...)
			if got := tw.String(); got != tt.want {
				t.Errorf("Line() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTreeWriter_TextBlock(t *testing.T) {
	tw := NewTreeWriter()
	tw.TextBlock(1, "css", "a\n\"b\"")
	tw.TextBlock(0, "empty", "")

	want := "  css: \"a\\n\\\"b\\\"\"\nempty: \n"
	if got := tw.String(); got != want {
		t.Errorf("TextBlock() = %q, want %q", got, want)
	}
}

func TestTreeWriter_Set(t *testing.T) {
	tw := NewTreeWriter()
	tw.Set(0, "pages", map[string]struct{}{
		"https://x.com/page10": {},
		"https://x.com/page9":  {},
		"https://x.com/page1":  {},
	})

	want := "pages (3)\n  https://x.com/page1\n  https://x.com/page9\n  https://x.com/page10\n"
	if got := tw.String(); got != want {
		t.Errorf("Set() = %q, want %q", got, want)
	}
}

func TestTreeWriter_EmptySet(t *testing.T) {
	tw := NewTreeWriter()
	tw.Set(1, "dangerous", nil)
	if got := tw.String(); got != "  dangerous (0)\n" {
		t.Errorf("Set() = %q", got)
	}
}
