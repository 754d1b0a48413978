// Package config handles configuration loading for httpsession.
//
// Configuration is read from .httpsession.json, httpsession.config.json or
// httpsession.yaml in the working directory, or from an explicit path, and
// merged over DefaultConfig. CLI flags are applied on top with Merge.
package config
