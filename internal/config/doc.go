// Package config loads and validates the revq configuration file.
//
// Configuration lives in a TOML file (default ~/.config/revq/config.toml).
// Load applies defaults first, then file contents, then normalizes every
// path field to an absolute path. A missing file is not an error; the
// defaults are returned so read-only commands still work.
package config
