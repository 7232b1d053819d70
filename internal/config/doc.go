// Package config loads, normalizes, and validates curator configuration.
//
// Configuration lives in a TOML file (default ~/.config/curator/config.toml,
// falling back to ./curator.toml). Load applies repository defaults first,
// decodes the file on top, expands `~` paths, applies environment overrides
// for the backend URL and default selection, and finally validates the
// result. Callers receive a fully populated Config and never need to repeat
// defaulting logic.
package config
