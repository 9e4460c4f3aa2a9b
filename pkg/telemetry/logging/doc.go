// Package logging configures structured logging for Warden.
//
// Logging is built on log/slog. Setup installs a JSON or text handler as
// the process default, so every component's slog.Default().With(...) call
// inherits the configured level, format, and redaction.
//
// Prompts and request metadata routinely contain credentials and PII, and
// governance logs outlive the requests they describe. The redacting
// handler scrubs string attribute values against a fixed pattern set (API
// keys, bearer tokens, emails, card and SSN shapes) before they reach the
// sink.
package logging
