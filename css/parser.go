package css

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// maxParseErrors limits number of consecutive parse errors before parsing is
// abandoned, parser which does not advance would loop forever otherwise.
const maxParseErrors = 256

var importantPattern = regexp.MustCompile(`(?i)\s*!\s*important\s*$`)

// token is a detached copy of css.Token, parser reuses its buffers.
type token struct {
	tt   css.TokenType
	data string
}

func tokens(values []css.Token) []token {
	out := make([]token, 0, len(values))
	for _, v := range values {
		out = append(out, token{tt: v.TokenType, data: string(v.Data)})
	}
	return out
}

// tokensText joins tokens into text collapsing whitespace and dropping
// comments.
func tokensText(toks []token) string {
	var sb strings.Builder
	space := false
	for _, t := range toks {
		switch t.tt {
		case css.CommentToken:
			continue
		case css.WhitespaceToken:
			space = true
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteString(t.data)
	}
	return sb.String()
}

// splitSelectors splits selector list on top level commas. Commas inside
// functional pseudo-classes and attribute selectors are kept.
func splitSelectors(toks []token) []string {
	var (
		selectors []string
		current   []token
		depth     int
	)
	flush := func() {
		if s := tokensText(current); s != "" {
			selectors = append(selectors, s)
		}
		current = current[:0]
	}
	for _, t := range toks {
		switch t.tt {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			if depth > 0 {
				depth--
			}
		case css.CommaToken:
			if depth == 0 {
				flush()
				continue
			}
		}
		current = append(current, t)
	}
	flush()
	return selectors
}

var commaToken = token{tt: css.CommaToken, data: ","}

// builder turns parser grammar events into the item tree.
type builder struct {
	p       *css.Parser
	log     *zap.Logger
	errs    []error
	strikes int
	eof     bool
	fatal   error
}

// Parse parses CSS text. Problems in the CSS are collected and available
// from Errors(), error is only returned when the text cannot be read at all.
func Parse(text string, log *zap.Logger) (*StyleAST, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b := &builder{
		p:   css.NewParser(parse.NewInputString(text), false),
		log: log.Named("css-parser"),
	}

	items := b.items(css.ErrorGrammar)
	if b.fatal != nil {
		return nil, b.fatal
	}
	if len(b.errs) > 0 {
		b.log.Debug("CSS parsed with errors", zap.Int("bytes", len(text)), zap.Int("errors", len(b.errs)))
	}
	return &StyleAST{source: text, items: items, errors: b.errs}, nil
}

// failed records parser error. It returns false when parsing must stop.
func (b *builder) failed() bool {
	err := b.p.Err()
	if err == nil || errors.Is(err, io.EOF) {
		b.eof = true
		return false
	}
	var perr *parse.Error
	if !errors.As(err, &perr) {
		b.fatal = fmt.Errorf("unable to read css: %w", err)
		return false
	}
	b.errs = append(b.errs, &ParseError{Line: perr.Line, Column: perr.Column, Message: perr.Message})
	b.strikes++
	if b.strikes >= maxParseErrors {
		b.fatal = fmt.Errorf("unable to parse css, too many errors, last one: %w", err)
		return false
	}
	return true
}

// items collects items until end grammar is seen or input is exhausted.
// Top level is parsed with end set to ErrorGrammar.
func (b *builder) items(end css.GrammarType) []Item {
	var (
		items   []Item
		pending []token
	)
	for !b.eof && b.fatal == nil {
		gt, tt, data := b.p.Next()
		if gt == css.ErrorGrammar {
			if !b.failed() {
				break
			}
			// selector in progress is broken
			pending = nil
			continue
		}
		b.strikes = 0

		switch gt {
		case css.CommentGrammar:
			text := string(data)
			items = append(items, Item{Comment: &text})

		case css.AtRuleGrammar:
			items = append(items, Item{AtRule: &AtRule{
				Name:    atRuleName(data),
				Prelude: tokensText(tokens(b.p.Values())),
			}})

		case css.BeginAtRuleGrammar:
			at := &AtRule{
				Name:    atRuleName(data),
				Prelude: tokensText(tokens(b.p.Values())),
				Block:   true,
			}
			at.Items = b.items(css.EndAtRuleGrammar)
			items = append(items, Item{AtRule: at})

		case css.QualifiedRuleGrammar:
			pending = appendSelectorTokens(pending, tt, data, b.p.Values())
			pending = append(pending, commaToken)

		case css.BeginRulesetGrammar:
			pending = appendSelectorTokens(pending, tt, data, b.p.Values())
			r := &Rule{Selectors: splitSelectors(pending)}
			pending = nil
			r.Items = b.items(css.EndRulesetGrammar)
			items = append(items, Item{Rule: r})

		case css.DeclarationGrammar:
			items = append(items, Item{Declaration: declaration(
				strings.ToLower(string(data)),
				tokensText(tokens(b.p.Values())),
			)})

		case css.CustomPropertyGrammar:
			var raw strings.Builder
			for _, v := range b.p.Values() {
				raw.Write(v.Data)
			}
			items = append(items, Item{Declaration: declaration(
				string(data),
				strings.TrimSpace(raw.String()),
			)})

		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			if gt == end {
				return items
			}
			b.log.Debug("Unbalanced block end", zap.Stringer("grammar", gt))

		case css.TokenGrammar:
			// CDO, CDC and stray tokens carry no style
		}
	}
	return items
}

func appendSelectorTokens(pending []token, tt css.TokenType, data []byte, values []css.Token) []token {
	if len(data) > 0 && tt != css.LeftBraceToken && tt != css.CommaToken {
		pending = append(pending, token{tt: tt, data: string(data)})
	}
	return append(pending, tokens(values)...)
}

func atRuleName(data []byte) string {
	return strings.ToLower(strings.TrimPrefix(string(data), "@"))
}

func declaration(property, value string) *Declaration {
	d := &Declaration{Property: property, Value: value}
	if loc := importantPattern.FindStringIndex(value); loc != nil {
		d.Value = strings.TrimSpace(value[:loc[0]])
		d.Important = true
	}
	return d
}

// unquote removes surrounding quotes from a string.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// basename strips vendor prefix: "-webkit-keyframes" becomes "keyframes".
func basename(name string) string {
	if len(name) > 1 && name[0] == '-' && name[1] != '-' {
		if i := strings.IndexByte(name[1:], '-'); i >= 0 {
			return name[i+2:]
		}
	}
	return name
}
