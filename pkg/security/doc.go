// Package security provides authentication for Warden's API surface.
//
// The auth subpackage validates static bearer tokens and attaches the
// resolved actor (id plus roles) to the request context, where the server
// layer uses it for approval authorization and audit attribution.
package security
