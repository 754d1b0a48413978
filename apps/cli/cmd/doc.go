// Package cmd implements the httpsession CLI commands using Cobra.
//
// Available commands:
//   - get: Fetch URLs concurrently through one session
//   - version: Show httpsession version information
//
// Flags override values from .httpsession.json or httpsession.yaml.
// SIGINT cancels all in-flight requests and exits with code 130.
package cmd
