package transport

import (
	"context"

	"github.com/wingman-dev/wingman/pkg/api"
)

// ReplyCreator handles the core reply-generation operation. The
// implementation receives a validated request and returns the pipeline
// result or a taxonomy error. pipeline.Orchestrator satisfies this
// contract through a thin adapter at wiring time.
type ReplyCreator interface {
	CreateReply(ctx context.Context, req *api.PipelineRequest) (*api.PipelineResult, error)
}

// ReplyCreatorFunc is an adapter that allows using an ordinary function
// as a ReplyCreator.
type ReplyCreatorFunc func(ctx context.Context, req *api.PipelineRequest) (*api.PipelineResult, error)

// CreateReply calls f(ctx, req).
func (f ReplyCreatorFunc) CreateReply(ctx context.Context, req *api.PipelineRequest) (*api.PipelineResult, error) {
	return f(ctx, req)
}
