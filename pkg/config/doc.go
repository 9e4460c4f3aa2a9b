// Package config provides configuration management for Warden.
//
// Configuration is loaded from a YAML file, defaults are applied, optional
// WARDEN_SECTION_FIELD environment variables override file values, and the
// final configuration is validated before anything starts.
//
// # Loading
//
//	cfg, err := config.Load("warden.yaml")
//
// or with environment overrides:
//
//	cfg, err := config.LoadWithEnvOverrides("warden.yaml")
//
// # Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Example
//
// A minimal configuration file:
//
//	server:
//	  listen_address: "127.0.0.1:8080"
//
//	audit:
//	  secret: "${WARDEN_AUDIT_SECRET}"
//
//	policy:
//	  directory: "./policies"
//	  watch: true
//
// The audit signing secret is the only required field: Warden refuses to
// start without one, because an unsigned trail is no trail at all.
package config
