package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/auth"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/authz"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/rights"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/tags"
	"github.com/sirupsen/logrus"
)

// Route variables shared by the routes and the requirements guarding them.
const (
	resourceIDVar  = "resourceId"
	userIDVar      = "userId"
	typeVar        = "type"
	inheritTypeVar = "inheritType"
	todoIDVar      = "todoId"
	tagIDVar       = "tagId"
)

// Server is the rights administration API
type Server struct {
	router     *mux.Router
	store      rights.Store
	resolver   *rights.Resolver
	propagator *rights.Propagator
	counter    tags.Tally
	authorizer *authz.Authorizer
	audit      *auth.AuditLogger
}

// Dependencies holds what the server needs to answer requests
type Dependencies struct {
	Store      rights.Store
	Counter    tags.Tally
	Authorizer *authz.Authorizer
	Audit      *auth.AuditLogger
	Logger     logrus.FieldLogger
}

// NewServer creates a new API server and registers its routes
func NewServer(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	audit := deps.Audit
	if audit == nil {
		audit = auth.NewAuditLogger(logger)
	}

	s := &Server{
		router:     mux.NewRouter(),
		store:      deps.Store,
		resolver:   rights.NewResolver(deps.Store),
		propagator: rights.NewPropagator(deps.Store),
		counter:    deps.Counter,
		authorizer: deps.Authorizer,
		audit:      audit,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	policy := s.authorizer.RequirePolicy

	// Grants
	s.router.Handle("/rights/{resourceId}/users/{userId}",
		s.selfOr(policy(rootPolicy(rights.GetPermissions), PolicyRightsReaders))(http.HandlerFunc(s.getEffectiveRights))).Methods(http.MethodGet)
	s.router.Handle("/rights/{resourceId}/users/{userId}/types/{type}",
		s.requireOnType(rights.GetPermissions)(http.HandlerFunc(s.getRight))).Methods(http.MethodGet)
	s.router.Handle("/rights/{resourceId}/users/{userId}/types/{type}",
		s.requireOnType(rights.PutPermissions)(http.HandlerFunc(s.setRight))).Methods(http.MethodPut)
	s.router.Handle("/rights/{resourceId}/users/{userId}/types/{type}",
		s.requireOnType(rights.PutPermissions)(http.HandlerFunc(s.removeRight))).Methods(http.MethodDelete)

	// Inheritance rules
	s.router.Handle("/rights/{resourceId}/users/{userId}/inherit",
		s.selfOr(policy(rootPolicy(rights.GetInheritPermissions), PolicyRightsReaders))(http.HandlerFunc(s.listInheritRules))).Methods(http.MethodGet)
	s.router.Handle("/rights/{resourceId}/users/{userId}/inherit/{type}/{inheritType}",
		s.requireOnType(rights.PutInheritPermissions)(http.HandlerFunc(s.setInheritRule))).Methods(http.MethodPut)
	s.router.Handle("/rights/{resourceId}/users/{userId}/inherit/{type}/{inheritType}",
		s.requireOnType(rights.PutInheritPermissions)(http.HandlerFunc(s.removeInheritRule))).Methods(http.MethodDelete)

	// Resources
	s.router.Handle("/resources",
		policy(rootPolicy(rights.Post), PolicyResourceCreators)(http.HandlerFunc(s.createResource))).Methods(http.MethodPost)
	s.router.Handle("/resources/{resourceId}",
		policy(rootPolicy(rights.Delete), PolicyResourceRemovers)(http.HandlerFunc(s.removeResource))).Methods(http.MethodDelete)

	// Tag counts
	s.router.Handle("/todos/{todoId}/tags",
		policy(rootPolicy(rights.Put), todoPolicy(rights.Put), PolicyTagEditors)(http.HandlerFunc(s.reconcileTags))).Methods(http.MethodPut)
	s.router.HandleFunc("/tags/{tagId}/count", s.getTagCount).Methods(http.MethodGet)
}

// Router returns the underlying router so callers can attach middleware
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}
