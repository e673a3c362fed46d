package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/auth"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/httputil"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/observability"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/rights"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/tags"
)

// getEffectiveRights handles GET /rights/{resourceId}/users/{userId}
func (s *Server) getEffectiveRights(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	effective, err := s.resolver.Effective(r.Context(), vars[userIDVar], vars[resourceIDVar])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, EffectiveRightsResponse{
		ResourceID: vars[resourceIDVar],
		UserID:     vars[userIDVar],
		Rights:     effective,
	})
}

// getRight handles GET /rights/{resourceId}/users/{userId}/types/{type}
func (s *Server) getRight(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rightType, ok := parseRightTypeOrError(w, vars[typeVar])
	if !ok {
		return
	}

	right, err := s.store.Get(r.Context(), vars[userIDVar], vars[resourceIDVar], rightType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if right == nil {
		httputil.WriteNotFound(w, "no grant")
		return
	}
	httputil.WriteSuccess(w, right)
}

// setRight handles PUT /rights/{resourceId}/users/{userId}/types/{type}
func (s *Server) setRight(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rightType, ok := parseRightTypeOrError(w, vars[typeVar])
	if !ok {
		return
	}

	var req GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	event := auth.AuditEvent{
		Action:     auth.ActionRightSet,
		TargetUser: vars[userIDVar],
		ResourceID: vars[resourceIDVar],
		RightType:  rightType.String(),
		Detail:     req.Rights.String(),
	}

	id, err := s.store.SetRight(r.Context(), vars[userIDVar], vars[resourceIDVar], rightType, req.Rights)
	if err != nil {
		s.auditFailure(r, event, err)
		s.writeError(w, r, err)
		return
	}
	s.auditSuccess(r, event)

	httputil.WriteSuccess(w, rights.UserRight{
		ID:         id,
		ResourceID: vars[resourceIDVar],
		Type:       rightType,
		UserID:     vars[userIDVar],
		Rights:     req.Rights,
	})
}

// removeRight handles DELETE /rights/{resourceId}/users/{userId}/types/{type}
func (s *Server) removeRight(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rightType, ok := parseRightTypeOrError(w, vars[typeVar])
	if !ok {
		return
	}

	event := auth.AuditEvent{
		Action:     auth.ActionRightRemove,
		TargetUser: vars[userIDVar],
		ResourceID: vars[resourceIDVar],
		RightType:  rightType.String(),
	}

	if err := s.store.RemoveRight(r.Context(), vars[userIDVar], vars[resourceIDVar], rightType); err != nil {
		s.auditFailure(r, event, err)
		s.writeError(w, r, err)
		return
	}
	s.auditSuccess(r, event)
	httputil.WriteNoContent(w)
}

// listInheritRules handles GET /rights/{resourceId}/users/{userId}/inherit
func (s *Server) listInheritRules(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	rules, err := s.store.GetAllInherit(r.Context(), vars[userIDVar], vars[resourceIDVar])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rules == nil {
		rules = []rights.UserInheritRight{}
	}
	httputil.WriteSuccess(w, rules)
}

// setInheritRule handles PUT /rights/{resourceId}/users/{userId}/inherit/{type}/{inheritType}
func (s *Server) setInheritRule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rightType, ok := parseRightTypeOrError(w, vars[typeVar])
	if !ok {
		return
	}
	inheritType, ok := parseRightTypeOrError(w, vars[inheritTypeVar])
	if !ok {
		return
	}

	var req GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	event := auth.AuditEvent{
		Action:     auth.ActionInheritSet,
		TargetUser: vars[userIDVar],
		ResourceID: vars[resourceIDVar],
		RightType:  rightType.String() + "->" + inheritType.String(),
		Detail:     req.Rights.String(),
	}

	id, err := s.store.SetInherit(r.Context(), inheritType, vars[userIDVar], vars[resourceIDVar], rightType, req.Rights)
	if err != nil {
		s.auditFailure(r, event, err)
		s.writeError(w, r, err)
		return
	}
	s.auditSuccess(r, event)

	httputil.WriteSuccess(w, rights.UserInheritRight{
		ID:          id,
		ResourceID:  vars[resourceIDVar],
		Type:        rightType,
		UserID:      vars[userIDVar],
		Rights:      req.Rights,
		InheritType: inheritType,
	})
}

// removeInheritRule handles DELETE /rights/{resourceId}/users/{userId}/inherit/{type}/{inheritType}
func (s *Server) removeInheritRule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rightType, ok := parseRightTypeOrError(w, vars[typeVar])
	if !ok {
		return
	}
	inheritType, ok := parseRightTypeOrError(w, vars[inheritTypeVar])
	if !ok {
		return
	}

	event := auth.AuditEvent{
		Action:     auth.ActionRightRemove,
		TargetUser: vars[userIDVar],
		ResourceID: vars[resourceIDVar],
		RightType:  rightType.String() + "->" + inheritType.String(),
	}

	if err := s.store.RemoveInherit(r.Context(), vars[userIDVar], vars[resourceIDVar], rightType, inheritType); err != nil {
		s.auditFailure(r, event, err)
		s.writeError(w, r, err)
		return
	}
	s.auditSuccess(r, event)
	httputil.WriteNoContent(w)
}

// createResource handles POST /resources
func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	var req CreateResourceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.CreatorID, "creator_id") ||
		!httputil.RequireNonEmpty(w, req.ResourceID, "resource_id") {
		return
	}
	if req.Type == nil {
		httputil.WriteBadRequest(w, "type is required")
		return
	}

	event := auth.AuditEvent{
		Action:     auth.ActionResourceCreate,
		TargetUser: req.CreatorID,
		ResourceID: req.ResourceID,
		RightType:  req.Type.String(),
	}

	granted, err := s.propagator.Create(r.Context(), rights.CreateRequest{
		CreatorID:         req.CreatorID,
		ResourceID:        req.ResourceID,
		Type:              *req.Type,
		CreatorPermission: req.CreatorRights,
		CollectionRights:  req.CollectionRights,
		Inherit:           req.Inherit,
	})
	if err != nil {
		s.auditFailure(r, event, err)
		s.writeError(w, r, err)
		return
	}
	s.auditSuccess(r, event)

	httputil.WriteCreated(w, CreateResourceResponse{
		ResourceID: req.ResourceID,
		CreatorID:  req.CreatorID,
		Granted:    granted,
	})
}

// removeResource handles DELETE /resources/{resourceId}
func (s *Server) removeResource(w http.ResponseWriter, r *http.Request) {
	resourceID := mux.Vars(r)[resourceIDVar]
	event := auth.AuditEvent{Action: auth.ActionRightRemove, ResourceID: resourceID, Detail: "all grants"}

	if err := s.store.RemoveResource(r.Context(), resourceID); err != nil {
		s.auditFailure(r, event, err)
		s.writeError(w, r, err)
		return
	}
	s.auditSuccess(r, event)
	httputil.WriteNoContent(w)
}

// reconcileTags handles PUT /todos/{todoId}/tags
func (s *Server) reconcileTags(w http.ResponseWriter, r *http.Request) {
	var req TagChangeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := tags.Reconcile(r.Context(), s.counter, req.Old, req.New); err != nil {
		s.writeError(w, r, err)
		return
	}

	added, removed := tags.Changes(req.Old, req.New)
	httputil.WriteSuccess(w, TagChangeResponse{
		TodoID:  mux.Vars(r)[todoIDVar],
		Added:   nonNil(added),
		Removed: nonNil(removed),
	})
}

// getTagCount handles GET /tags/{tagId}/count
func (s *Server) getTagCount(w http.ResponseWriter, r *http.Request) {
	tagID := mux.Vars(r)[tagIDVar]

	n, err := s.counter.Count(r.Context(), tagID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, TagCountResponse{TagID: tagID, Count: n})
}

func parseRightTypeOrError(w http.ResponseWriter, name string) (rights.RightType, bool) {
	t, err := rights.ParseRightType(name)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return 0, false
	}
	return t, true
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// writeError maps domain errors to status codes. Store outages are 503 so
// clients retry instead of treating them as a refusal.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := observability.FromContext(r.Context()).WithError(err)

	switch {
	case errors.Is(err, rights.ErrInvalidRight), errors.Is(err, tags.ErrInvalidTag):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, rights.ErrGrantCollision):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, rights.ErrStoreUnavailable):
		log.Warn("Rights store unavailable")
		httputil.WriteServiceUnavailable(w, "rights store unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Info("Request cancelled")
		httputil.WriteServiceUnavailable(w, "request cancelled")
	default:
		log.Error("Request failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) auditSuccess(r *http.Request, event auth.AuditEvent) {
	event.Status = auth.StatusSuccess
	s.audit.LogFromRequest(r, event)
}

func (s *Server) auditFailure(r *http.Request, event auth.AuditEvent, err error) {
	event.Status = auth.StatusFailure
	event.Err = err
	s.audit.LogFromRequest(r, event)
}
