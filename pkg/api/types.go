package api

import "github.com/semanticlink/todo-hypermedia-sub002/pkg/rights"

// GrantRequest is the body of the grant and inheritance rule writes
type GrantRequest struct {
	Rights rights.Permission `json:"rights"`
}

// EffectiveRightsResponse lists every grant a user holds on a resource
type EffectiveRightsResponse struct {
	ResourceID string                                 `json:"resource_id"`
	UserID     string                                 `json:"user_id"`
	Rights     map[rights.RightType]rights.Permission `json:"rights"`
}

// CreateResourceRequest asks for the initial grants of a new resource. Type is
// a pointer because the zero RightType is Root; a body without "type" is
// rejected rather than read as a root grant.
type CreateResourceRequest struct {
	CreatorID        string                                 `json:"creator_id"`
	ResourceID       string                                 `json:"resource_id"`
	Type             *rights.RightType                      `json:"type"`
	CreatorRights    rights.Permission                      `json:"creator_rights,omitempty"`
	CollectionRights map[rights.RightType]rights.Permission `json:"collection_rights,omitempty"`
	Inherit          *rights.InheritForm                    `json:"inherit,omitempty"`
}

// CreateResourceResponse reports the grants written for a new resource
type CreateResourceResponse struct {
	ResourceID string                                 `json:"resource_id"`
	CreatorID  string                                 `json:"creator_id"`
	Granted    map[rights.RightType]rights.Permission `json:"granted"`
}

// TagChangeRequest carries a todo's tag list before and after an update
type TagChangeRequest struct {
	Old []string `json:"old"`
	New []string `json:"new"`
}

// TagChangeResponse reports the counters a tag change moved
type TagChangeResponse struct {
	TodoID  string   `json:"todo_id"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// TagCountResponse is the number of todos carrying a tag
type TagCountResponse struct {
	TagID string `json:"tag_id"`
	Count int64  `json:"count"`
}
