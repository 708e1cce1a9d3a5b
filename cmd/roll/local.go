package main

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cory-johannsen/rollbot/internal/rollserver"
)

// localClient serves RollServiceClient calls in-process.
type localClient struct {
	srv *rollserver.Server
}

func (c localClient) Evaluate(ctx context.Context, in *wrapperspb.StringValue, _ ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return c.srv.Evaluate(ctx, in)
}

func (c localClient) Roll(ctx context.Context, in *wrapperspb.StringValue, _ ...grpc.CallOption) (*structpb.Struct, error) {
	return c.srv.Roll(ctx, in)
}
