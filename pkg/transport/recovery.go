package transport

import (
	"context"
	"fmt"

	"github.com/wingman-dev/wingman/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to internal error responses. The server continues to
// accept new requests after a panic is recovered.
func Recovery() Middleware {
	return func(next ReplyCreator) ReplyCreator {
		return ReplyCreatorFunc(func(ctx context.Context, req *api.PipelineRequest) (result *api.PipelineResult, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					result = nil
					retErr = api.NewInternal(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.CreateReply(ctx, req)
		})
	}
}
