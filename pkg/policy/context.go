package policy

import (
	"errors"
	"fmt"
)

// RequestContext is the frozen set of facts the engine judges. It is built
// once by NewRequestContext, which validates and defensively copies its
// inputs; nothing mutates it afterwards. Collection accessors return copies
// so callers cannot reach the internal state.
type RequestContext struct {
	actorID      string
	actorRole    string
	resourceID   string
	resourceType string
	environment  string
	intent       string
	tags         []string
	tagSet       map[string]struct{}
	metadata     map[string]string
}

// ErrInvalidContext reports a request context that fails construction
// validation.
type ErrInvalidContext struct {
	Field string
}

func (e *ErrInvalidContext) Error() string {
	return fmt.Sprintf("request context requires a non-empty %s", e.Field)
}

// ContextParams carries the inputs to NewRequestContext.
type ContextParams struct {
	ActorID      string
	ActorRole    string
	ResourceID   string
	ResourceType string
	Environment  string
	Intent       string
	Tags         []string
	Metadata     map[string]string
}

// NewRequestContext validates params and constructs an immutable context.
// ActorID, ResourceID, and Environment are required.
func NewRequestContext(params ContextParams) (*RequestContext, error) {
	switch {
	case params.ActorID == "":
		return nil, &ErrInvalidContext{Field: "actor_id"}
	case params.ResourceID == "":
		return nil, &ErrInvalidContext{Field: "resource_id"}
	case params.Environment == "":
		return nil, &ErrInvalidContext{Field: "environment"}
	}

	tags := make([]string, len(params.Tags))
	copy(tags, params.Tags)

	tagSet := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tagSet[tag] = struct{}{}
	}

	metadata := make(map[string]string, len(params.Metadata))
	for k, v := range params.Metadata {
		metadata[k] = v
	}

	return &RequestContext{
		actorID:      params.ActorID,
		actorRole:    params.ActorRole,
		resourceID:   params.ResourceID,
		resourceType: params.ResourceType,
		environment:  params.Environment,
		intent:       params.Intent,
		tags:         tags,
		tagSet:       tagSet,
		metadata:     metadata,
	}, nil
}

// ActorID returns the requesting principal's id.
func (c *RequestContext) ActorID() string { return c.actorID }

// ActorRole returns the requesting principal's role.
func (c *RequestContext) ActorRole() string { return c.actorRole }

// ResourceID returns the target resource id (the agent id).
func (c *RequestContext) ResourceID() string { return c.resourceID }

// ResourceType returns the target resource type.
func (c *RequestContext) ResourceType() string { return c.resourceType }

// Environment returns the deployment environment.
func (c *RequestContext) Environment() string { return c.environment }

// Intent returns the declared intent of the request.
func (c *RequestContext) Intent() string { return c.intent }

// Tags returns a copy of the request's tags.
func (c *RequestContext) Tags() []string {
	tags := make([]string, len(c.tags))
	copy(tags, c.tags)
	return tags
}

// HasTag reports whether the request carries the given tag.
func (c *RequestContext) HasTag(tag string) bool {
	_, ok := c.tagSet[tag]
	return ok
}

// Metadata returns a copy of the request's metadata mapping.
func (c *RequestContext) Metadata() map[string]string {
	m := make(map[string]string, len(c.metadata))
	for k, v := range c.metadata {
		m[k] = v
	}
	return m
}

// MetadataValue returns the metadata value for key and whether it exists.
func (c *RequestContext) MetadataValue(key string) (string, bool) {
	v, ok := c.metadata[key]
	return v, ok
}

var errNilContext = errors.New("request context is nil")

// FacetValue returns the context field backing a scope facet name.
func (c *RequestContext) FacetValue(facet string) (string, error) {
	if c == nil {
		return "", errNilContext
	}
	switch facet {
	case "environment":
		return c.environment, nil
	case "resource_type":
		return c.resourceType, nil
	case "actor_role":
		return c.actorRole, nil
	}
	return "", fmt.Errorf("unknown scope facet %q", facet)
}
