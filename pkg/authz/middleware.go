package authz

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/contextkeys"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/httputil"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/rights"
	"github.com/sirupsen/logrus"
)

// Authorizer guards routes with rights requirements
type Authorizer struct {
	handler  *Handler
	provider Provider
	logger   logrus.FieldLogger
}

// NewAuthorizer creates a new authorizer
func NewAuthorizer(handler *Handler, provider Provider, logger logrus.FieldLogger) *Authorizer {
	return &Authorizer{
		handler:  handler,
		provider: provider,
		logger:   logger,
	}
}

// RequestContextFromRequest builds the RequestContext of an HTTP request:
// the authenticated user id and the gorilla/mux route variables.
func RequestContextFromRequest(r *http.Request) RequestContext {
	return RequestContext{
		UserID:      contextkeys.GetUserID(r.Context()),
		RouteValues: mux.Vars(r),
	}
}

// RequirePolicy creates middleware that requires any of the named policies.
// Names are resolved per request so replaced policies apply immediately. A
// name no provider defines adds no requirement; any other failure is a 500.
func (a *Authorizer) RequirePolicy(names ...string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var reqs []Requirement
			for _, name := range names {
				policy, err := a.provider.Policy(name)
				if errors.Is(err, ErrUnknownPolicy) {
					a.requestLogger(r).WithField("policy", name).Debug("Policy not defined")
					continue
				}
				if err != nil {
					a.requestLogger(r).WithError(err).WithField("policy", name).Error("Failed to resolve policy")
					httputil.WriteErrorMessage(w, http.StatusInternalServerError, "authorization policy unavailable")
					return
				}
				reqs = append(reqs, policy...)
			}

			if a.authorize(w, r, reqs) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Require creates middleware that requires any of the given requirements
func (a *Authorizer) Require(reqs ...Requirement) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.authorize(w, r, reqs) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// authorize writes the error response and returns false unless the request
// satisfies one of reqs.
func (a *Authorizer) authorize(w http.ResponseWriter, r *http.Request, reqs []Requirement) bool {
	reqCtx := RequestContextFromRequest(r)

	decision, err := a.handler.EvaluateAny(r.Context(), reqs, reqCtx)
	if err != nil {
		log := a.requestLogger(r).WithError(err)
		if errors.Is(err, rights.ErrStoreUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Warn("Authorization check could not reach the rights store")
			httputil.WriteServiceUnavailable(w, "authorization temporarily unavailable")
			return false
		}
		log.Error("Authorization check failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "authorization check failed")
		return false
	}

	if decision == Satisfied {
		return true
	}
	if reqCtx.UserID == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return false
	}
	httputil.WriteForbidden(w, "insufficient permissions")
	return false
}

func (a *Authorizer) requestLogger(r *http.Request) logrus.FieldLogger {
	return a.logger.WithFields(logrus.Fields{
		"request_id": contextkeys.GetRequestID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	})
}
