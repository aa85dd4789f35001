// Package minify wraps CSS minifiers used for generated critical CSS.
package minify

import (
	"fmt"

	"github.com/dchest/cssmin"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"

	"critcss/config"
)

const mediaType = "text/css"

// Minifier compacts CSS text.
type Minifier interface {
	Minify(text string) (string, error)
}

// New returns minifier of requested kind.
func New(kind config.MinifierKind) (Minifier, error) {
	switch kind {
	case config.MinifierKindTdewolff:
		return NewTdewolff(), nil
	case config.MinifierKindCssmin:
		return Cssmin{}, nil
	case config.MinifierKindNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("unsupported minifier %s", kind)
	}
}

// Tdewolff is a full CSS minifier which reports malformed input.
type Tdewolff struct {
	m *minify.M
}

func NewTdewolff() *Tdewolff {
	m := minify.New()
	m.AddFunc(mediaType, css.Minify)
	return &Tdewolff{m: m}
}

func (t *Tdewolff) Minify(text string) (string, error) {
	out, err := t.m.String(mediaType, text)
	if err != nil {
		return "", fmt.Errorf("unable to minify css: %w", err)
	}
	return out, nil
}

// Cssmin only removes whitespace and comments, it never fails.
type Cssmin struct{}

func (Cssmin) Minify(text string) (string, error) {
	return string(cssmin.Minify([]byte(text))), nil
}

// None returns text as is.
type None struct{}

func (None) Minify(text string) (string, error) {
	return text, nil
}
