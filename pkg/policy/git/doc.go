// Package git keeps a local checkout of a policy repository in sync
// with its remote, so the policy directory served to the pipeline is
// whatever the governance team last merged.
//
// The syncer clones on first run, then polls with fetch-and-pull. When
// HEAD moves, it invokes the reload callback; the policy manager's
// atomic swap does the rest. Sync failures are logged and retried on
// the next tick; the pipeline keeps serving the last good set.
package git
