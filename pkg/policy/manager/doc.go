// Package manager loads policy sets from disk and serves them to the
// pipeline as atomically swappable snapshots.
//
// A policy document is one YAML file (or a multi-document file) carrying
// the fields of policy.Policy. Loading is idempotent; a reload parses
// the whole directory, validates every document, and only then swaps the
// served set. A reload that fails validation leaves the previous set in
// place, so a bad commit can never partially apply.
//
// The optional watcher rides fsnotify with debouncing so that an editor
// save or a git checkout triggers exactly one reload.
package manager
