package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/semanticlink/todo-hypermedia-sub002/pkg/contextkeys"
	"github.com/sirupsen/logrus"
)

// Log formats accepted by NewLogger.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// NewLogger creates a logrus logger writing to output in the given format.
func NewLogger(level logrus.Level, format string, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stdout
	}

	logger := logrus.New()
	logger.SetOutput(output)
	logger.SetLevel(level)

	if strings.EqualFold(format, FormatText) {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// ParseLevel parses a log level, accepting "warn" as well as logrus' names.
func ParseLevel(level string) (logrus.Level, error) {
	l, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}

// FromContext returns the request scoped logger stored by the request id
// middleware, falling back to the standard logger. Request and user ids in
// the context are attached as fields, as are the trace and span ids when the
// request is traced.
func FromContext(ctx context.Context) *logrus.Entry {
	entry, ok := ctx.Value(contextkeys.LoggerKey).(*logrus.Entry)
	if !ok {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}

	fields := traceFields(ctx)
	if fields == nil {
		fields = logrus.Fields{}
	}
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	if userID := contextkeys.GetUserID(ctx); userID != "" {
		fields["user_id"] = userID
	}
	if len(fields) == 0 {
		return entry
	}
	return entry.WithFields(fields)
}
