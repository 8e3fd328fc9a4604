package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/wingman-dev/wingman/pkg/api"
)

// Logging returns middleware that emits structured log entries for each
// request. The log entry includes the request ID (from context), the
// strategy, conversation size, duration, and whether the request
// succeeded or failed.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ReplyCreator) ReplyCreator {
		return ReplyCreatorFunc(func(ctx context.Context, req *api.PipelineRequest) (*api.PipelineResult, error) {
			start := time.Now()
			requestID := RequestIDFromContext(ctx)

			result, err := next.CreateReply(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("strategy", string(req.Strategy)),
				slog.Int("messages", len(req.Conversation)),
				slog.Bool("has_image", req.Image != nil),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "reply request failed", attrs...)
			} else {
				attrs = append(attrs, slog.Int("stages", len(result.Stages)))
				logger.LogAttrs(ctx, slog.LevelInfo, "reply request completed", attrs...)
			}

			return result, err
		})
	}
}
