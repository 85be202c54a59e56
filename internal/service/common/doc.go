// Package common holds helpers shared by services.
//
// It provides a small gRPC health client with per-call timeouts, used to
// probe a relaunched artifact for readiness, and detection of the host and
// user running the updater for the audit line of each run.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
