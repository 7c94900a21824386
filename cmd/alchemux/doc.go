// Package main hosts the Alchemux CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves the configuration directory, opens
// the merged settings view, and hands it to the download pipeline, the
// config subcommands, and the doctor. Configuration resolution and logger
// setup happen once per invocation in commandContext so subcommands only
// deal with presentation.
//
// Keep this package lean: behaviour belongs in the internal packages and is
// surfaced here through commands and flags.
package main
