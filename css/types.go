package css

import (
	"fmt"
	"io"
	"strings"
)

// cssEscapeDoubleQuoted escapes a string for use inside CSS double quotes.
// Backslashes and double quotes are escaped per CSS syntax: \" and \\.
func cssEscapeDoubleQuoted(s string) string {
	// Fast path: nothing to escape.
	if !strings.ContainsAny(s, `"\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Declaration is a single "property: value" pair. Custom properties (--name)
// keep the name verbatim, regular property names are lower case.
type Declaration struct {
	Property  string
	Value     string // value text without "!important"
	Important bool
}

// IsCustom returns true for custom property (variable) definitions.
func (d *Declaration) IsCustom() bool {
	return strings.HasPrefix(d.Property, "--")
}

// Rule is a style rule: selector list and its block.
type Rule struct {
	Selectors []string // whitespace normalized selector text, one per list entry
	Items     []Item
}

// hasDeclaration reports if the rule directly declares the property.
func (r *Rule) hasDeclaration(property string) bool {
	for _, it := range r.Items {
		if it.Declaration != nil && it.Declaration.Property == property {
			return true
		}
	}
	return false
}

// AtRule is an @-rule with optional block. Block content is either rules
// (@media, @supports) or declarations (@font-face, @page).
type AtRule struct {
	Name    string // lower case, without "@"
	Prelude string
	Block   bool
	Items   []Item
}

// Item is a single entry of a stylesheet or a block.
// Exactly one of the fields is non-nil.
type Item struct {
	Rule        *Rule
	AtRule      *AtRule
	Declaration *Declaration
	Comment     *string // comment text including /* */
}

// StyleAST is a parsed CSS file. Pruning operations return independent
// copies, filters mutate the tree in place.
type StyleAST struct {
	source string
	items  []Item
	errors []error
}

// Source returns the text this AST was parsed from.
func (a *StyleAST) Source() string {
	return a.source
}

// Errors returns parse errors collected while building the tree.
func (a *StyleAST) Errors() []error {
	return append([]error(nil), a.errors...)
}

// Items returns top level items of the tree.
func (a *StyleAST) Items() []Item {
	return a.items
}

// clone returns structurally independent copy of the AST.
func (a *StyleAST) clone() *StyleAST {
	return &StyleAST{
		source: a.source,
		items:  cloneItems(a.items),
		errors: a.errors,
	}
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		switch {
		case it.Rule != nil:
			out[i].Rule = &Rule{
				Selectors: append([]string(nil), it.Rule.Selectors...),
				Items:     cloneItems(it.Rule.Items),
			}
		case it.AtRule != nil:
			at := *it.AtRule
			at.Items = cloneItems(it.AtRule.Items)
			out[i].AtRule = &at
		case it.Declaration != nil:
			d := *it.Declaration
			out[i].Declaration = &d
		case it.Comment != nil:
			c := *it.Comment
			out[i].Comment = &c
		}
	}
	return out
}

// scope describes where an item is located in the tree.
type scope struct {
	atRule *AtRule // closest enclosing at-rule
	rule   *Rule   // enclosing style rule, nil for at-rule descriptors
}

// filterItems walks items depth first keeping only those for which keep
// returns true. Children of dropped items are not visited. keep may modify
// the item it is given.
func filterItems(items []Item, sc scope, keep func(it *Item, sc scope) bool) []Item {
	out := items[:0]
	for _, it := range items {
		if !keep(&it, sc) {
			continue
		}
		switch {
		case it.Rule != nil:
			it.Rule.Items = filterItems(it.Rule.Items, scope{atRule: sc.atRule, rule: it.Rule}, keep)
		case it.AtRule != nil:
			it.AtRule.Items = filterItems(it.AtRule.Items, scope{atRule: it.AtRule, rule: sc.rule}, keep)
		}
		out = append(out, it)
	}
	// let removed tail be collected
	clear(items[len(out):])
	return out
}

// walkItems calls fn for every item in the tree, parents first.
func walkItems(items []Item, sc scope, fn func(it *Item, sc scope)) {
	for i := range items {
		it := &items[i]
		fn(it, sc)
		switch {
		case it.Rule != nil:
			walkItems(it.Rule.Items, scope{atRule: sc.atRule, rule: it.Rule}, fn)
		case it.AtRule != nil:
			walkItems(it.AtRule.Items, scope{atRule: it.AtRule, rule: sc.rule}, fn)
		}
	}
}

// walkDeclarations calls fn for every declaration in the tree.
func walkDeclarations(items []Item, fn func(d *Declaration, sc scope)) {
	walkItems(items, scope{}, func(it *Item, sc scope) {
		if it.Declaration != nil {
			fn(it.Declaration, sc)
		}
	})
}

// filterDeclarations removes every declaration for which keep returns false.
func filterDeclarations(items []Item, keep func(d *Declaration, sc scope) bool) []Item {
	return filterItems(items, scope{}, func(it *Item, sc scope) bool {
		if it.Declaration == nil {
			return true
		}
		return keep(it.Declaration, sc)
	})
}

// RuleCount returns number of style rules in the tree, nested ones included.
func (a *StyleAST) RuleCount() int {
	var count int
	walkItems(a.items, scope{}, func(it *Item, _ scope) {
		if it.Rule != nil {
			count++
		}
	})
	return count
}

// writer keeps the first write error and total count.
type writer struct {
	w   io.Writer
	n   int64
	err error
}

func (w *writer) str(s string) {
	if w.err != nil || len(s) == 0 {
		return
	}
	n, err := io.WriteString(w.w, s)
	w.n += int64(n)
	w.err = err
}

// WriteTo writes the tree as compact CSS to w, implementing io.WriterTo.
func (a *StyleAST) WriteTo(w io.Writer) (int64, error) {
	cw := &writer{w: w}
	writeItems(cw, a.items)
	return cw.n, cw.err
}

// CSS returns the current state of the tree as CSS text.
func (a *StyleAST) CSS() string {
	var sb strings.Builder
	a.WriteTo(&sb) //nolint:errcheck
	return sb.String()
}

// String implements fmt.Stringer.
func (a *StyleAST) String() string {
	return a.CSS()
}

func writeItems(w *writer, items []Item) {
	prevDecl := false
	for _, it := range items {
		if it.Comment != nil {
			w.str(*it.Comment)
			continue
		}
		if prevDecl {
			w.str(";")
		}
		prevDecl = false

		switch {
		case it.Declaration != nil:
			writeDeclaration(w, it.Declaration)
			prevDecl = true
		case it.Rule != nil:
			w.str(strings.Join(it.Rule.Selectors, ","))
			w.str("{")
			writeItems(w, it.Rule.Items)
			w.str("}")
		case it.AtRule != nil:
			writeAtRule(w, it.AtRule)
		}
	}
}

func writeDeclaration(w *writer, d *Declaration) {
	w.str(d.Property)
	w.str(":")
	w.str(d.Value)
	if d.Important {
		w.str("!important")
	}
}

func writeAtRule(w *writer, at *AtRule) {
	w.str("@")
	w.str(at.Name)
	if at.Prelude != "" {
		w.str(" ")
		w.str(at.Prelude)
	}
	if !at.Block {
		w.str(";")
		return
	}
	w.str("{")
	writeItems(w, at.Items)
	w.str("}")
}

// ParseError describes a recoverable problem found while parsing.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("css parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}
