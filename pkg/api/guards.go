package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/authz"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/contextkeys"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/httputil"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/rights"
)

// Named policies an operator may define in the policy file to widen who can
// use a route. A name left undefined grants nothing extra.
const (
	PolicyRightsReaders    = "rights-readers"
	PolicyResourceCreators = "resource-creators"
	PolicyResourceRemovers = "resource-removers"
	PolicyTagEditors       = "tag-editors"
)

// rootPolicy is the encoded policy name of access on the root resource.
func rootPolicy(access rights.Permission) string {
	return authz.PolicyName{Type: rights.Root, Access: access, ResourceKey: authz.RootResourceKey}.String()
}

// todoPolicy is the encoded policy name of access on the {todoId} todo.
func todoPolicy(access rights.Permission) string {
	return authz.PolicyName{Type: rights.Todo, Access: access, ResourceKey: todoIDVar}.String()
}

func rootRequirement(access rights.Permission) authz.Requirement {
	return authz.Requirement{Type: rights.Root, Permission: access, ResourceKey: authz.RootResourceKey}
}

// requireOnType guards routes carrying a {type} variable: the caller needs
// access on that right type of the resource, or on the root.
func (s *Server) requireOnType(access rights.Permission) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rightType, err := rights.ParseRightType(mux.Vars(r)[typeVar])
			if err != nil {
				httputil.WriteBadRequest(w, err.Error())
				return
			}

			guard := s.authorizer.Require(
				rootRequirement(access),
				authz.Requirement{Type: rightType, Permission: access, ResourceKey: resourceIDVar},
			)
			guard(next).ServeHTTP(w, r)
		})
	}
}

// selfOr lets users read their own grants and sends everyone else through
// guard.
func (s *Server) selfOr(guard mux.MiddlewareFunc) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		guarded := guard(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := contextkeys.GetUserID(r.Context())
			if caller != "" && caller == mux.Vars(r)[userIDVar] {
				next.ServeHTTP(w, r)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}
