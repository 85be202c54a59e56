// Package logger wraps zap with a global sugared logger that writes
// line-oriented console output to stdout.
//
// Callers keep the logger in a context (ToContext/FromContext), scope it with
// WithName and WithKV, and log through the package-level helpers such as
// InfoKV or WarnKV.
package logger
