package requestid

import (
	"context"
	"log/slog"
)

// LoggerExtractor returns a context extractor for the logger factory so any
// request ID set by Middleware shows up on every log record of the request.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if requestID := FromContext(ctx); requestID != "" {
			return slog.String("request_id", requestID), true
		}
		return slog.Attr{}, false
	}
}
