package transport

import (
	"context"

	"github.com/wingman-dev/wingman/pkg/api"
)

// RequestID returns middleware that assigns a unique request ID to each
// request. If the incoming request context already carries a request ID
// (set by the HTTP adapter from the X-Request-ID header), that value is
// used. Otherwise, a new unique ID is generated. The ID is also stamped
// onto the request so the pipeline result echoes it.
//
// The request ID is stored in the context and can be retrieved with
// RequestIDFromContext.
func RequestID() Middleware {
	return func(next ReplyCreator) ReplyCreator {
		return ReplyCreatorFunc(func(ctx context.Context, req *api.PipelineRequest) (*api.PipelineResult, error) {
			id := RequestIDFromContext(ctx)
			if id == "" {
				id = api.NewRequestID()
				ctx = ContextWithRequestID(ctx, id)
			}
			if req.RequestID == "" {
				req.RequestID = id
			}
			return next.CreateReply(ctx, req)
		})
	}
}
