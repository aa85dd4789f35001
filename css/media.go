package css

import (
	"strings"

	"github.com/tdewolff/parse/v2/css"
)

// mediaTypes lists media types recognized in queries, anything else is
// treated as a feature or keyword.
var mediaTypes = map[string]bool{
	"all":    true,
	"print":  true,
	"screen": true,
	"speech": true,
}

// MediaQuery is a single entry of a comma separated @media prelude.
type MediaQuery struct {
	Raw string // whitespace normalized query text
	// Types maps media types mentioned by the query to false when the type is
	// directly negated with "not" and to true otherwise.
	Types map[string]bool
}

// Useful reports whether the query could apply to a screen rendering of the
// page. Query without media type is useful, non negated "screen" or "all"
// makes it useful, otherwise it is useful only when every listed type is
// negated.
func (mq MediaQuery) Useful() bool {
	if len(mq.Types) == 0 {
		return true
	}
	for _, t := range []string{"screen", "all"} {
		if positive, ok := mq.Types[t]; ok {
			return positive
		}
	}
	for _, positive := range mq.Types {
		if positive {
			return false
		}
	}
	return true
}

// ParseMediaQueries splits @media prelude into individual queries.
// Identifiers inside parentheses (media features) are not examined.
func ParseMediaQueries(prelude string) []MediaQuery {
	var (
		queries []MediaQuery
		current []token
		types   = make(map[string]bool)
		negated bool
		depth   int
	)
	flush := func() {
		if raw := tokensText(current); raw != "" {
			queries = append(queries, MediaQuery{Raw: raw, Types: types})
		}
		current, types, negated = current[:0], make(map[string]bool), false
	}
	for _, t := range lex(prelude) {
		switch t.tt {
		case css.FunctionToken, css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			if depth > 0 {
				depth--
			}
		case css.CommaToken:
			if depth == 0 {
				flush()
				continue
			}
		case css.IdentToken:
			if depth > 0 {
				break
			}
			id := strings.ToLower(t.data)
			if mediaTypes[id] {
				types[id] = !negated
			}
			negated = id == "not"
		}
		current = append(current, t)
	}
	flush()
	return queries
}

// usefulMediaQueries returns text of queries in prelude which are useful.
func usefulMediaQueries(prelude string) []string {
	var out []string
	for _, mq := range ParseMediaQueries(prelude) {
		if mq.Useful() {
			out = append(out, mq.Raw)
		}
	}
	return out
}
