package authz

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/semanticlink/todo-hypermedia-sub002/pkg/rights"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/semanticlink/todo-hypermedia-sub002/pkg/authz"

// DefaultRootID is the resource id of the root resource.
const DefaultRootID = "root"

// Requirement asks for Permission on the resource of kind Type whose id is
// found under ResourceKey.
type Requirement struct {
	Type        rights.RightType
	Permission  rights.Permission
	ResourceKey string
}

func (r Requirement) String() string {
	return PolicyName{Type: r.Type, Access: r.Permission, ResourceKey: r.ResourceKey}.String()
}

// RequestContext carries the caller identity and route values of the request
// being authorized.
type RequestContext struct {
	UserID      string
	RouteValues map[string]string
}

// Decision is the outcome of evaluating requirements. The zero value is
// Unsatisfied: nothing is proven until a grant is found.
type Decision int

const (
	Unsatisfied Decision = iota
	Satisfied
)

func (d Decision) String() string {
	if d == Satisfied {
		return "satisfied"
	}
	return "unsatisfied"
}

// GrantReader is the part of rights.Store the handler needs.
type GrantReader interface {
	Get(ctx context.Context, userID, resourceID string, rightType rights.RightType) (*rights.UserRight, error)
}

// DecisionObserver is notified of every evaluated requirement.
type DecisionObserver interface {
	ObserveDecision(rightType string, outcome string)
}

// Handler decides whether a request proves a requirement.
type Handler struct {
	store       GrantReader
	rootID      string
	logger      logrus.FieldLogger
	observer    DecisionObserver
	tracer      trace.Tracer
	maxParallel int
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithRootID overrides DefaultRootID
func WithRootID(id string) HandlerOption {
	return func(h *Handler) {
		if id != "" {
			h.rootID = id
		}
	}
}

// WithDecisionObserver reports decisions to o
func WithDecisionObserver(o DecisionObserver) HandlerOption {
	return func(h *Handler) {
		h.observer = o
	}
}

// WithTracerProvider records a span per evaluated requirement on tp instead
// of the global provider
func WithTracerProvider(tp trace.TracerProvider) HandlerOption {
	return func(h *Handler) {
		if tp != nil {
			h.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithMaxParallel bounds concurrent evaluations in EvaluateAny
func WithMaxParallel(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxParallel = n
		}
	}
}

// NewHandler creates a decision handler reading grants from store
func NewHandler(store GrantReader, logger logrus.FieldLogger, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:       store,
		rootID:      DefaultRootID,
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
		maxParallel: 4,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RootID returns the resource id used for RootResourceKey requirements.
func (h *Handler) RootID() string {
	return h.rootID
}

// Evaluate checks one requirement. A missing resource id, an anonymous
// caller, a missing grant or an insufficient grant all leave the requirement
// Unsatisfied without error. Store failures and cancellation are returned as
// errors and never read as a denial.
func (h *Handler) Evaluate(ctx context.Context, req Requirement, reqCtx RequestContext) (Decision, error) {
	ctx, span := h.tracer.Start(ctx, "authz.Evaluate", trace.WithAttributes(
		attribute.String("authz.requirement", req.String()),
	))
	defer span.End()

	decision, err := h.evaluate(ctx, req, reqCtx)
	h.observe(req, decision, err)

	span.SetAttributes(attribute.String("authz.decision", decision.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grant lookup failed")
	}
	return decision, err
}

func (h *Handler) evaluate(ctx context.Context, req Requirement, reqCtx RequestContext) (Decision, error) {
	log := h.logger.WithFields(logrus.Fields{
		"requirement": req.String(),
		"user_id":     reqCtx.UserID,
	})

	resourceID, ok := h.resourceID(req, reqCtx)
	if !ok {
		log.Debug("resource id not in route values")
		return Unsatisfied, nil
	}

	if strings.TrimSpace(reqCtx.UserID) == "" {
		log.Debug("anonymous caller")
		return Unsatisfied, nil
	}

	grant, err := h.store.Get(ctx, reqCtx.UserID, resourceID, req.Type)
	if err != nil {
		return Unsatisfied, err
	}
	if grant == nil {
		log.WithField("resource_id", resourceID).Debug("no grant")
		return Unsatisfied, nil
	}

	if !rights.Allow(grant.Rights, req.Permission) {
		log.WithFields(logrus.Fields{
			"resource_id": resourceID,
			"granted":     grant.Rights.String(),
		}).Debug("grant does not contain required permission")
		return Unsatisfied, nil
	}
	return Satisfied, nil
}

func (h *Handler) resourceID(req Requirement, reqCtx RequestContext) (string, bool) {
	if req.ResourceKey == RootResourceKey {
		return h.rootID, true
	}
	key := req.ResourceKey
	if key == "" {
		key = DefaultResourceKey
	}
	id := strings.TrimSpace(reqCtx.RouteValues[key])
	return id, id != ""
}

// EvaluateAny is satisfied when any requirement is. Requirements are
// evaluated concurrently; the first satisfied one cancels the rest. An error
// is returned only when no requirement was satisfied.
func (h *Handler) EvaluateAny(ctx context.Context, reqs []Requirement, reqCtx RequestContext) (Decision, error) {
	switch len(reqs) {
	case 0:
		return Unsatisfied, nil
	case 1:
		return h.Evaluate(ctx, reqs[0], reqCtx)
	}

	parent := ctx
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		mu        sync.Mutex
		satisfied bool
		errs      []error
		g         errgroup.Group
	)
	g.SetLimit(h.maxParallel)

	for _, req := range reqs {
		req := req
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			decision, err := h.Evaluate(ctx, req, reqCtx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case decision == Satisfied:
				satisfied = true
				cancel()
			case err != nil:
				errs = append(errs, err)
			}
			return nil
		})
	}
	g.Wait()

	if satisfied {
		return Satisfied, nil
	}
	if len(errs) > 0 {
		return Unsatisfied, errors.Join(errs...)
	}
	if err := parent.Err(); err != nil {
		return Unsatisfied, err
	}
	return Unsatisfied, nil
}

func (h *Handler) observe(req Requirement, decision Decision, err error) {
	if h.observer == nil {
		return
	}
	outcome := decision.String()
	if err != nil {
		outcome = "error"
	}
	h.observer.ObserveDecision(req.Type.String(), outcome)
}
