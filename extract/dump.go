package extract

import (
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/maruel/natural"

	"critcss/critical"
	"critcss/utils/debug"
)

// dumpTrace renders intermediate results of generation for debug report.
func dumpTrace(trace *critical.Trace) string {
	tw := debug.NewTreeWriter()

	tw.TextBlock(0, "run", trace.RunID)
	tw.Line(0, "valid pages (%d)", len(trace.ValidURLs))
	for _, u := range trace.ValidURLs {
		tw.Line(1, "%s", u)
	}

	tw.Line(0, "stylesheets (%d)", len(trace.Files))
	for i, f := range trace.Files {
		tw.Line(1, "#%d: %d bytes, %d rules, %d parse errors", i, len(f.CSS), f.AST.RuleCount(), len(f.AST.Errors()))
		tw.Line(2, "urls: %s", strings.Join(f.URLs, ", "))
		tw.Line(2, "pages: %s", strings.Join(f.Pages, ", "))
	}

	tw.Line(0, "selectors (%d)", len(trace.SelectorPages))
	for _, s := range sortedKeys(trace.SelectorPages) {
		tw.Set(1, s, trace.SelectorPages[s])
	}

	tw.Set(0, "critical", trace.Critical)
	return tw.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := slices.Collect(maps.Keys(m))
	sort.Sort(natural.StringSlice(keys))
	return keys
}
