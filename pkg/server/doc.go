// Package server provides Warden's HTTP API.
//
// The surface splits into the ingress path and the admin plane. Ingress
// is a single POST /v1/requests that runs the full governance pipeline
// and maps the pipeline result onto HTTP: allowed requests return 200
// with the model response, governance blocks return 403 with an
// error-type discriminator, unknown agents 404, and enforcement refusals
// 503. The admin plane exposes the kill switch, the agent registry,
// approval review, policy reload, audit verification and export, and the
// execution event query API.
//
// Authentication is optional bearer-token middleware; when enabled, the
// authenticated actor becomes the reviewer identity for approval
// decisions and the actor recorded on kill-switch activations.
package server
