// Package output writes converted artifacts to disk.
//
// A [FileWriter] writes one file, creating parent directories. An [Emitter]
// wraps it for the commands: it can print a unified diff against the file
// already on disk and skip writing in dry-run mode.
package output
