// Package config owns the non-secret preference document (config.toml).
//
// It supplies repository defaults, reads TOML files into the typed Config
// struct, preserves keys it does not recognise, and writes documents back
// atomically with deterministic output. Parsing failures never abort the
// process: Load always returns a usable document and reports the problem in
// its Status so diagnostics can surface it.
//
// Normalized and Validate turn a document into the sanitized values the rest
// of the program consumes: expanded paths, canonical lower-case enums, and
// defaults for anything left blank.
package config
