// Package policy defines the declarative policy model and the request
// context it is evaluated against.
//
// A Policy is a pure declarative rule: a scope (which requests it applies
// to), conditions (what must be true of the request), an effect
// (allow / deny / review), and a priority. Policies carry no code; the
// evaluator in the engine subpackage is the only interpreter.
//
// A RequestContext is the frozen set of facts about one request. It is
// constructed once at pipeline entry and never mutated; the engine treats
// it as read-only by construction (accessor methods return copies of the
// tag and metadata collections).
package policy
