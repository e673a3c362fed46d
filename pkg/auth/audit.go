package auth

import (
	"net/http"
	"strings"

	"github.com/semanticlink/todo-hypermedia-sub002/pkg/contextkeys"
	"github.com/sirupsen/logrus"
)

// Audit actions
const (
	ActionAuthSuccess    = "auth.success"
	ActionAuthFailure    = "auth.failure"
	ActionTokenCreate    = "token.create"
	ActionTokenRevoke    = "token.revoke"
	ActionRightSet       = "right.set"
	ActionRightRemove    = "right.remove"
	ActionInheritSet     = "inherit.set"
	ActionResourceCreate = "resource.create"
	ActionAccessDenied   = "access.denied"
)

// Status constants
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

// AuditEvent is a security relevant action
type AuditEvent struct {
	Action     string
	Status     string
	UserID     string
	TargetUser string
	ResourceID string
	RightType  string
	Detail     string
	IPAddress  string
	UserAgent  string
	RequestID  string
	Err        error
}

// AuditLogger writes audit events as structured log entries with an
// "audit" field, so they can be routed separately from application logs.
type AuditLogger struct {
	logger logrus.FieldLogger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger logrus.FieldLogger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// Log records an event. Failures and denials are logged at warning level.
func (al *AuditLogger) Log(event AuditEvent) {
	fields := logrus.Fields{
		"audit":  true,
		"action": event.Action,
		"status": event.Status,
	}
	for key, value := range map[string]string{
		"user_id":     event.UserID,
		"target_user": event.TargetUser,
		"resource_id": event.ResourceID,
		"right_type":  event.RightType,
		"detail":      event.Detail,
		"ip_address":  event.IPAddress,
		"user_agent":  event.UserAgent,
		"request_id":  event.RequestID,
	} {
		if value != "" {
			fields[key] = value
		}
	}

	entry := al.logger.WithFields(fields)
	if event.Err != nil {
		entry = entry.WithError(event.Err)
	}

	if event.Status == StatusSuccess {
		entry.Info("audit event")
	} else {
		entry.Warn("audit event")
	}
}

// LogFromRequest fills the caller details of event from r and logs it.
func (al *AuditLogger) LogFromRequest(r *http.Request, event AuditEvent) {
	event.IPAddress = getClientIP(r)
	event.UserAgent = r.UserAgent()
	event.RequestID = contextkeys.GetRequestID(r.Context())
	if event.UserID == "" {
		event.UserID = contextkeys.GetUserID(r.Context())
	}
	al.Log(event)
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (if behind proxy)
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	// Check X-Real-IP header
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	// Use remote address
	return r.RemoteAddr
}
