// Package version holds build metadata injected through -ldflags and
// exposes it through a cobra `version` subcommand.
package version
