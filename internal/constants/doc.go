// Package constants provides application-wide fixed values for statebak.
//
// These are values that are part of the on-disk or on-remote contract (the
// remote name, the commit message prefix, the bot identity written into
// commits) rather than tunables; tunables live in package config.
//
//	import "github.com/bashhack/statebak/internal/constants"
//
//	msg := fmt.Sprintf("%s: %s - %s", constants.CommitPrefix, files, stamp)
package constants
