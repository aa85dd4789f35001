package css

import (
	"regexp"
	"strings"
)

// excludedSelector matches pseudo-elements which never belong to critical CSS
// and cannot be probed on a page.
var excludedSelector = regexp.MustCompile(`::?(?:-moz-)?selection`)

// excludedProperties are matched against vendor stripped property names.
var excludedProperties = []string{
	"animation",
	"transition",
	"cursor",
	"pointer-events",
	"tap-highlight-color",
	"user-select",
}

// droppedAtRules are removed from critical CSS regardless of vendor prefix.
var droppedAtRules = map[string]bool{
	"keyframes": true,
	"charset":   true,
	"import":    true,
}

// groupingAtRules hold rule lists and are dropped when nothing is left inside.
var groupingAtRules = map[string]bool{
	"media":     true,
	"supports":  true,
	"layer":     true,
	"container": true,
	"document":  true,
}

// IsExcludedSelector reports if selector targets pseudo-elements which are
// never part of critical CSS.
func IsExcludedSelector(selector string) bool {
	return excludedSelector.MatchString(selector)
}

func isExcludedProperty(name string) bool {
	if strings.HasPrefix(name, "--") {
		return false
	}
	name = basename(strings.ToLower(name))
	for _, p := range excludedProperties {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

func inKeyframes(sc scope) bool {
	return sc.atRule != nil && basename(sc.atRule.Name) == "keyframes"
}

// Filters are user supplied predicates applied to the tree before pruning.
// Either may be nil.
type Filters struct {
	// Properties returns false for declarations to be removed.
	Properties func(name, value string) bool
	// AtRules returns false for at-rules to be removed. Name is lower case
	// without "@".
	AtRules func(name string) bool
}

// ApplyFilters removes declarations and at-rules rejected by f, in place.
func (a *StyleAST) ApplyFilters(f Filters) {
	if f.Properties == nil && f.AtRules == nil {
		return
	}
	a.items = filterItems(a.items, scope{}, func(it *Item, _ scope) bool {
		switch {
		case it.Declaration != nil && f.Properties != nil:
			return f.Properties(it.Declaration.Property, it.Declaration.Value)
		case it.AtRule != nil && f.AtRules != nil:
			return f.AtRules(it.AtRule.Name)
		}
		return true
	})
}

// Pruned returns a copy of the tree with everything not needed to render
// critical selectors removed. The receiver is not modified.
func (a *StyleAST) Pruned(critical map[string]struct{}) *StyleAST {
	c := a.clone()
	c.pruneMediaQueries()
	c.pruneAtRules()
	c.pruneNonCriticalSelectors(critical)
	c.pruneExcludedProperties()
	c.pruneLargeBase64Embeds()
	c.pruneComments()
	c.items = pruneEmptyRules(c.items)
	return c
}

func (a *StyleAST) pruneMediaQueries() {
	a.items = filterItems(a.items, scope{}, func(it *Item, _ scope) bool {
		at := it.AtRule
		if at == nil || basename(at.Name) != "media" || at.Prelude == "" {
			return true
		}
		useful := usefulMediaQueries(at.Prelude)
		if len(useful) == 0 {
			return false
		}
		at.Prelude = strings.Join(useful, ",")
		return true
	})
}

func (a *StyleAST) pruneAtRules() {
	a.items = filterItems(a.items, scope{}, func(it *Item, _ scope) bool {
		return it.AtRule == nil || !droppedAtRules[basename(it.AtRule.Name)]
	})
}

func (a *StyleAST) pruneNonCriticalSelectors(critical map[string]struct{}) {
	a.items = filterItems(a.items, scope{}, func(it *Item, sc scope) bool {
		r := it.Rule
		if r == nil || inKeyframes(sc) {
			return true
		}
		if r.hasDeclaration("grid-area") {
			return len(r.Selectors) > 0
		}
		kept := r.Selectors[:0]
		for _, s := range r.Selectors {
			if IsExcludedSelector(s) {
				continue
			}
			if _, ok := critical[s]; ok {
				kept = append(kept, s)
			}
		}
		r.Selectors = kept
		return len(kept) > 0
	})
	a.items = pruneEmptyGroups(a.items)
}

// pruneEmptyGroups removes grouping at-rules without any rules left inside,
// innermost first.
func pruneEmptyGroups(items []Item) []Item {
	out := items[:0]
	for _, it := range items {
		switch {
		case it.Rule != nil:
			it.Rule.Items = pruneEmptyGroups(it.Rule.Items)
		case it.AtRule != nil && it.AtRule.Block:
			it.AtRule.Items = pruneEmptyGroups(it.AtRule.Items)
			if groupingAtRules[basename(it.AtRule.Name)] && !hasRules(it.AtRule.Items) {
				continue
			}
		}
		out = append(out, it)
	}
	clear(items[len(out):])
	return out
}

// pruneEmptyRules removes style rules left without declarations and nested
// rules, together with grouping at-rules emptied by that, innermost first.
func pruneEmptyRules(items []Item) []Item {
	out := items[:0]
	for _, it := range items {
		switch {
		case it.Rule != nil:
			it.Rule.Items = pruneEmptyRules(it.Rule.Items)
			if len(it.Rule.Items) == 0 {
				continue
			}
		case it.AtRule != nil && it.AtRule.Block:
			it.AtRule.Items = pruneEmptyRules(it.AtRule.Items)
			if groupingAtRules[basename(it.AtRule.Name)] && !hasRules(it.AtRule.Items) {
				continue
			}
		}
		out = append(out, it)
	}
	clear(items[len(out):])
	return out
}

func hasRules(items []Item) bool {
	for _, it := range items {
		if it.Rule != nil || it.AtRule != nil {
			return true
		}
	}
	return false
}

func (a *StyleAST) pruneExcludedProperties() {
	a.items = filterDeclarations(a.items, func(d *Declaration, _ scope) bool {
		return !isExcludedProperty(d.Property)
	})
}

func (a *StyleAST) pruneLargeBase64Embeds() {
	a.items = filterDeclarations(a.items, func(d *Declaration, _ scope) bool {
		return !hasLargeBase64(d.Value)
	})
}

func (a *StyleAST) pruneComments() {
	a.items = filterItems(a.items, scope{}, func(it *Item, _ scope) bool {
		return it.Comment == nil
	})
}

// PruneNonCriticalFonts removes @font-face rules for families not present in
// whitelist, and those missing src or font-family. Remaining faces lose their
// src descriptors.
func (a *StyleAST) PruneNonCriticalFonts(whitelist map[string]struct{}) {
	a.items = filterItems(a.items, scope{}, func(it *Item, _ scope) bool {
		at := it.AtRule
		if at == nil || basename(at.Name) != "font-face" {
			return true
		}
		var (
			families          []string
			hasSrc, hasFamily bool
		)
		kept := at.Items[:0]
		for _, child := range at.Items {
			if d := child.Declaration; d != nil {
				switch d.Property {
				case "src":
					hasSrc = true
					continue
				case "font-family":
					hasFamily = true
					families = fontFamilies(lex(d.Value))
				}
			}
			kept = append(kept, child)
		}
		clear(at.Items[len(kept):])
		at.Items = kept
		if !hasSrc || !hasFamily {
			return false
		}
		for _, f := range families {
			if _, ok := whitelist[f]; ok {
				return true
			}
		}
		return false
	})
}

// ForEachSelector calls fn for every selector of every rule outside of
// @keyframes. Excluded pseudo-element selectors are skipped.
func (a *StyleAST) ForEachSelector(fn func(selector string)) {
	walkItems(a.items, scope{}, func(it *Item, sc scope) {
		if it.Rule == nil || inKeyframes(sc) {
			return
		}
		for _, s := range it.Rule.Selectors {
			if !IsExcludedSelector(s) {
				fn(s)
			}
		}
	})
}
