// Package doctor runs the read-only diagnostic battery over a resolved
// configuration.
//
// Checks always run in the same order and never short-circuit: config
// directory, preference document, secret document, output and temp
// directories, cloud credentials, and the pointer record. Each check yields
// one or more findings; a finding names the repair action that remedies it
// when one exists. Checks only read the filesystem and never include secret
// values in their messages.
package doctor
