package audit

import "maps"

// WithActor sets the user who performed the action. Empty means system.
func WithActor(id string) EventOption {
	return func(e *Event) {
		e.ActorID = id
	}
}

// WithTenant sets the tenant the action applies to.
func WithTenant(id string) EventOption {
	return func(e *Event) {
		e.TenantID = id
	}
}

// WithIP sets the client address the action came from.
func WithIP(ip string) EventOption {
	return func(e *Event) {
		e.IP = ip
	}
}

// WithResource sets the resource type and ID
func WithResource(resource, id string) EventOption {
	return func(e *Event) {
		e.Resource = resource
		e.ResourceID = id
	}
}

// WithDetails merges details into the event.
func WithDetails(details map[string]any) EventOption {
	return func(e *Event) {
		if len(details) == 0 {
			return
		}
		if e.Details == nil {
			e.Details = make(map[string]any, len(details))
		}
		maps.Copy(e.Details, details)
	}
}

// WithDetail adds a single detail to the event
func WithDetail(key string, value any) EventOption {
	return func(e *Event) {
		if e.Details == nil {
			e.Details = make(map[string]any)
		}
		e.Details[key] = value
	}
}
