package config

// Specification of CSS minifier to run on generated critical CSS.
// ENUM(tdewolff, cssmin, none)
type MinifierKind int
