package css_test

import (
	"testing"

	"critcss/css"
)

func TestMediaQuery_Useful(t *testing.T) {
	tests := []struct {
		query  string
		useful bool
	}{
		{"screen", true},
		{"all", true},
		{"print", false},
		{"speech", false},
		{"not print", true},
		{"not screen", false},
		{"not all and (monochrome)", false},
		{"(min-width: 100px)", true},
		{"only screen and (max-width: 10px)", true},
		{"print and (orientation: landscape)", false},
		{"screen and (orientation: landscape)", true},
		{"tv", true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			mqs := css.ParseMediaQueries(tt.query)
			if len(mqs) != 1 {
				t.Fatalf("expected single query, got %d", len(mqs))
			}
			if got := mqs[0].Useful(); got != tt.useful {
				t.Errorf("Useful() = %v, want %v (types %v)", got, tt.useful, mqs[0].Types)
			}
		})
	}
}

func TestParseMediaQueries_List(t *testing.T) {
	mqs := css.ParseMediaQueries("screen and (min-width: 10px), print, not speech")

	if len(mqs) != 3 {
		t.Fatalf("expected 3 queries, got %d", len(mqs))
	}
	if mqs[0].Raw != "screen and (min-width: 10px)" {
		t.Errorf("unexpected raw query %q", mqs[0].Raw)
	}
	if mqs[1].Useful() {
		t.Error("print should not be useful")
	}
	if !mqs[2].Useful() {
		t.Error("negated speech should be useful")
	}
}

func TestPruned_MediaRelevance(t *testing.T) {
	ast := mustParse(t, `@media print{.a{color:red}}@media screen,print{.a{color:blue}}@media (min-width:10px){.a{margin:0}}`)

	got := ast.Pruned(set(".a")).CSS()
	want := `@media screen{.a{color:blue}}@media (min-width:10px){.a{margin:0}}`
	if got != want {
		t.Errorf("unexpected css:\n got: %s\nwant: %s", got, want)
	}
}
