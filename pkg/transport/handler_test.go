package transport

import (
	"context"
	"testing"

	"github.com/wingman-dev/wingman/pkg/api"
)

func TestReplyCreatorFunc(t *testing.T) {
	var gotReq *api.PipelineRequest

	f := ReplyCreatorFunc(func(ctx context.Context, req *api.PipelineRequest) (*api.PipelineResult, error) {
		gotReq = req
		return &api.PipelineResult{Reply: "sounds good!"}, nil
	})

	req := testRequest()
	result, err := f.CreateReply(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotReq != req {
		t.Error("handler did not receive the original request")
	}
	if result.Reply != "sounds good!" {
		t.Errorf("reply = %q, want %q", result.Reply, "sounds good!")
	}
}

func TestReplyCreatorFuncPropagatesError(t *testing.T) {
	sentinel := api.NewProviderUnavailable("primary", "down")

	f := ReplyCreatorFunc(func(ctx context.Context, req *api.PipelineRequest) (*api.PipelineResult, error) {
		return nil, sentinel
	})

	_, err := f.CreateReply(context.Background(), testRequest())
	if err != sentinel {
		t.Errorf("err = %v, want the sentinel error", err)
	}
}
