package css

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// urlPattern matches url() references in CSS values.
// Captures quoted content in group 1 or unquoted content in group 2.
var urlPattern = regexp.MustCompile(`url\s*\(\s*(?:["']([^"']*)["']|([^)"']*))\s*\)`)

var (
	varPattern    = regexp.MustCompile(`(?i)var\(\s*(--[^\s,)]+)`)
	base64Pattern = regexp.MustCompile(`(?i)^data:[^,]*;base64,`)
)

// maxBase64Length is the longest inline base64 payload kept in critical CSS.
const maxBase64Length = 1000

// lex splits value text into tokens.
func lex(s string) []token {
	l := css.NewLexer(parse.NewInputString(s))
	var out []token
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			return out
		}
		out = append(out, token{tt: tt, data: string(data)})
	}
}

// urlValues returns all url() references found in text.
func urlValues(text string) []string {
	var out []string
	for _, m := range urlPattern.FindAllStringSubmatch(text, -1) {
		ref := m[1]
		if ref == "" {
			ref = strings.TrimSpace(m[2])
		}
		out = append(out, ref)
	}
	return out
}

// hasLargeBase64 reports if value embeds base64 data url above the limit.
func hasLargeBase64(value string) bool {
	for _, ref := range urlValues(value) {
		if len(ref) > maxBase64Length && base64Pattern.MatchString(ref) {
			return true
		}
	}
	return false
}

// rewriteURLs replaces url() references in text with whatever resolve
// returns. References resolve leaves unchanged are kept as written.
func rewriteURLs(text string, resolve func(ref string) string) string {
	if !strings.Contains(text, "url") {
		return text
	}
	return urlPattern.ReplaceAllStringFunc(text, func(match string) string {
		m := urlPattern.FindStringSubmatch(match)
		ref := m[1]
		if ref == "" {
			ref = strings.TrimSpace(m[2])
		}
		if ref == "" {
			return match
		}
		if resolved := resolve(ref); resolved != ref {
			return `url("` + cssEscapeDoubleQuoted(resolved) + `")`
		}
		return match
	})
}

// AbsolutifyURLs rewrites relative url() references in declarations and
// @import preludes to absolute ones using base as the stylesheet location.
func (a *StyleAST) AbsolutifyURLs(base string) error {
	bu, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("unable to parse base url %q: %w", base, err)
	}
	resolve := func(ref string) string {
		// data urls and same document references stay as is
		if strings.HasPrefix(ref, "#") || strings.HasPrefix(strings.ToLower(ref), "data:") {
			return ref
		}
		u, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return bu.ResolveReference(u).String()
	}
	walkItems(a.items, scope{}, func(it *Item, _ scope) {
		switch {
		case it.Declaration != nil:
			it.Declaration.Value = rewriteURLs(it.Declaration.Value, resolve)
		case it.AtRule != nil && it.AtRule.Name == "import":
			it.AtRule.Prelude = rewriteURLs(it.AtRule.Prelude, resolve)
		}
	})
	return nil
}

// UsedVariables returns names of custom properties referenced with var()
// anywhere in declaration values, fallbacks and variable definitions included.
func (a *StyleAST) UsedVariables() map[string]struct{} {
	used := make(map[string]struct{})
	walkDeclarations(a.items, func(d *Declaration, _ scope) {
		if !strings.Contains(strings.ToLower(d.Value), "var(") {
			return
		}
		for _, m := range varPattern.FindAllStringSubmatch(d.Value, -1) {
			used[m[1]] = struct{}{}
		}
	})
	return used
}

// PruneUnusedVariables removes custom property definitions not present in
// used. It returns number of removed declarations.
func (a *StyleAST) PruneUnusedVariables(used map[string]struct{}) int {
	var removed int
	a.items = filterDeclarations(a.items, func(d *Declaration, _ scope) bool {
		if !d.IsCustom() {
			return true
		}
		if _, ok := used[d.Property]; ok {
			return true
		}
		removed++
		return false
	})
	if removed > 0 {
		a.items = pruneEmptyRules(a.items)
	}
	return removed
}

var genericFamilies = map[string]bool{
	"serif": true, "sans-serif": true, "monospace": true, "cursive": true,
	"fantasy": true, "system-ui": true, "ui-serif": true, "ui-sans-serif": true,
	"ui-monospace": true, "ui-rounded": true, "emoji": true, "math": true,
	"fangsong": true,
	// css wide keywords
	"inherit": true, "initial": true, "unset": true, "revert": true,
	"revert-layer": true, "default": true,
}

var fontSizeKeywords = map[string]bool{
	"xx-small": true, "x-small": true, "small": true, "medium": true,
	"large": true, "x-large": true, "xx-large": true, "xxx-large": true,
	"smaller": true, "larger": true,
}

// UsedFontFamilies returns lower case family names referenced by font-family
// and font declarations of style rules. Generic families are not included.
func (a *StyleAST) UsedFontFamilies() map[string]struct{} {
	used := make(map[string]struct{})
	walkDeclarations(a.items, func(d *Declaration, sc scope) {
		if sc.rule == nil {
			return
		}
		var families []string
		switch basename(d.Property) {
		case "font-family":
			families = fontFamilies(lex(d.Value))
		case "font":
			families = fontFamilies(shorthandFamilies(lex(d.Value)))
		default:
			return
		}
		for _, f := range families {
			used[f] = struct{}{}
		}
	})
	return used
}

// fontFamilies extracts family names from a comma separated family list.
// Entries which are not plain names (var(), numbers) are skipped.
func fontFamilies(toks []token) []string {
	var (
		out   []string
		words []string
		bad   bool
		depth int
	)
	flush := func() {
		if !bad && len(words) > 0 {
			name := strings.ToLower(strings.Join(words, " "))
			if !genericFamilies[name] {
				out = append(out, name)
			}
		}
		words, bad = words[:0], false
	}
	for _, t := range toks {
		if depth > 0 {
			switch t.tt {
			case css.FunctionToken, css.LeftParenthesisToken:
				depth++
			case css.RightParenthesisToken:
				depth--
			}
			continue
		}
		switch t.tt {
		case css.StringToken:
			words = append(words, unquote(t.data))
		case css.IdentToken:
			words = append(words, t.data)
		case css.CommaToken:
			flush()
		case css.WhitespaceToken, css.CommentToken:
		case css.FunctionToken, css.LeftParenthesisToken:
			depth++
			bad = true
		default:
			bad = true
		}
	}
	flush()
	return out
}

// shorthandFamilies returns the family part of a font shorthand value: tokens
// following font-size and optional line-height. System font keywords have no
// family part.
func shorthandFamilies(toks []token) []token {
	size, depth := -1, 0
	for i, t := range toks {
		if t.tt == css.CommaToken && depth == 0 {
			break
		}
		switch t.tt {
		case css.FunctionToken, css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			depth--
		case css.DimensionToken, css.PercentageToken, css.NumberToken:
			if depth == 0 {
				size = i
			}
		case css.IdentToken:
			if depth == 0 && fontSizeKeywords[strings.ToLower(t.data)] {
				size = i
			}
		case css.DelimToken:
			if depth == 0 && t.data == "/" {
				// font-size precedes line-height
				j := nextSignificant(toks, i+1)
				if j < 0 {
					return nil
				}
				return toks[j+1:]
			}
		}
	}
	if size < 0 {
		return nil
	}
	return toks[size+1:]
}

func nextSignificant(toks []token, from int) int {
	for i := from; i < len(toks); i++ {
		if toks[i].tt != css.WhitespaceToken && toks[i].tt != css.CommentToken {
			return i
		}
	}
	return -1
}
