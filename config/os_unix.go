//go:build !windows

package config

import (
	"os"
	"strings"

	"golang.org/x/term"
)

const reservedNameChars = string(os.PathSeparator) + string(os.PathListSeparator)

// CleanFileName drops characters which cannot be used in file names. Leading
// dots are removed so result is never hidden.
func CleanFileName(in string) string {
	out := strings.TrimLeft(strings.Map(func(sym rune) rune {
		if sym == 0 || strings.ContainsRune(reservedNameChars, sym) {
			return -1
		}
		return sym
	}, in), ".")
	if len(out) == 0 {
		return "_bad_file_name_"
	}
	return out
}

// EnableColorOutput checks if colorized output is possible.
func EnableColorOutput(stream *os.File) bool {
	return term.IsTerminal(int(stream.Fd()))
}
