package probe

import (
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// ignoredPseudoClasses depend on user interaction or browsing history and
// never match in a freshly loaded page.
var ignoredPseudoClasses = map[string]bool{
	"hover":              true,
	"active":             true,
	"focus":              true,
	"focus-within":       true,
	"focus-visible":      true,
	"visited":            true,
	"target":             true,
	"target-within":      true,
	"autofill":           true,
	"user-valid":         true,
	"user-invalid":       true,
	"playing":            true,
	"paused":             true,
	"fullscreen":         true,
	"picture-in-picture": true,
	"modal":              true,
	"popover-open":       true,
}

// legacyPseudoElements may be written with a single colon.
var legacyPseudoElements = map[string]bool{
	"before":       true,
	"after":        true,
	"first-line":   true,
	"first-letter": true,
}

type queryToken struct {
	tt   css.TokenType
	data string
}

// QueryFor converts selector into a form usable with querySelector on a
// static page: pseudo-elements, vendor pseudo-classes and interaction
// pseudo-classes are removed. Compound selector left empty becomes "*".
func QueryFor(selector string) string {
	l := css.NewLexer(parse.NewInputString(selector))
	var toks []queryToken
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			break
		}
		toks = append(toks, queryToken{tt: tt, data: string(data)})
	}

	var sb strings.Builder
	for i := 0; i < len(toks); i++ {
		if toks[i].tt != css.ColonToken {
			sb.WriteString(toks[i].data)
			continue
		}
		j, element := i+1, false
		if j < len(toks) && toks[j].tt == css.ColonToken {
			element = true
			j++
		}
		if j >= len(toks) || (toks[j].tt != css.IdentToken && toks[j].tt != css.FunctionToken) {
			// malformed, leave as is
			sb.WriteString(toks[i].data)
			continue
		}
		end := j
		if toks[j].tt == css.FunctionToken {
			end = closingParen(toks, j)
		}
		name := strings.ToLower(strings.TrimSuffix(toks[j].data, "("))
		if !element && !legacyPseudoElements[name] && !ignoredPseudoClasses[name] && !strings.HasPrefix(name, "-") {
			for k := i; k <= end; k++ {
				sb.WriteString(toks[k].data)
			}
			i = end
			continue
		}
		if needsUniversal(sb.String()) {
			sb.WriteByte('*')
		}
		i = end
	}

	query := strings.TrimSpace(sb.String())
	if query == "" {
		return "*"
	}
	return query
}

func closingParen(toks []queryToken, from int) int {
	depth := 0
	for i := from; i < len(toks); i++ {
		switch toks[i].tt {
		case css.FunctionToken, css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(toks) - 1
}

// needsUniversal reports if compound selector being built is empty so far.
func needsUniversal(prefix string) bool {
	if prefix == "" {
		return true
	}
	switch prefix[len(prefix)-1] {
	case ' ', '\t', '\n', '>', '+', '~', ',', '(':
		return true
	}
	return false
}
