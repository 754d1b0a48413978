// Package http provides the transport used by httpsession sessions.
//
// It wraps the standard library's http package with additional features:
//   - Configurable timeouts, redirects, proxy and TLS verification
//   - Default headers applied to every request
//   - Digest authentication challenge-response
//   - Byte-level download progress through ProgressReader
//   - Response helpers for JSON path extraction and schema validation
package http
