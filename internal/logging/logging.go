package logging

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const envLogLevel = "LOG_LEVEL"

type contextKeyLogger struct{}

func init() {
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	})
}

// LoadLevel sets the global log level from the LOG_LEVEL environment
// variable. Invalid values leave the level at info and return an error.
func LoadLevel() error {
	return SetLevel(os.Getenv(envLogLevel))
}

func SetLevel(logLevel string) error {
	if logLevel == "" {
		logLevel = logrus.InfoLevel.String()
	}
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		allLevels := make([]string, 0, len(logrus.AllLevels))
		for _, l := range logrus.AllLevels {
			allLevels = append(allLevels, l.String())
		}
		logrus.SetLevel(logrus.InfoLevel)
		return fmt.Errorf("invalid %s '%s', must be one of [%s]",
			envLogLevel, logLevel, strings.Join(allLevels, ", "))
	}
	logrus.SetLevel(level)
	return nil
}

// Middleware attaches a logger carrying the request coordinates to the
// request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logrus.WithField("http", logrus.Fields{
			"host":   r.Host,
			"method": r.Method,
			"path":   r.URL.Path,
		})
		next.ServeHTTP(w, IntoRequest(r, l))
	})
}

func FromRequest(r *http.Request) logrus.FieldLogger {
	return FromContext(r.Context())
}

func FromContext(ctx context.Context) logrus.FieldLogger {
	if l := ctx.Value(contextKeyLogger{}); l != nil {
		if logger, ok := l.(logrus.FieldLogger); ok {
			return logger
		}
	}
	return logrus.StandardLogger()
}

func IntoRequest(r *http.Request, logger logrus.FieldLogger) *http.Request {
	return r.WithContext(IntoContext(r.Context(), logger))
}

func IntoContext(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, contextKeyLogger{}, logger)
}
