package rollserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "rollbot.v1.RollService"

const (
	evaluateMethod = "/" + ServiceName + "/Evaluate"
	rollMethod     = "/" + ServiceName + "/Roll"
)

// RollServiceServer is the server API for the roll service.
//
// Evaluate takes dice notation such as "2d6 1d20" and returns the formatted
// outcome. Roll takes the same input and returns the outcome as a Struct:
//
//	{"grand_total": 19, "text": "...", "groups": [{"faces": 6, "multiplier": 2, "total": 7, "results": [3, 4]}]}
type RollServiceServer interface {
	Evaluate(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Roll(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// RollServiceClient is the client API for the roll service.
type RollServiceClient interface {
	Evaluate(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Roll(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type rollServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRollServiceClient wraps cc in a RollServiceClient.
func NewRollServiceClient(cc grpc.ClientConnInterface) RollServiceClient {
	return &rollServiceClient{cc: cc}
}

func (c *rollServiceClient) Evaluate(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, evaluateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *rollServiceClient) Roll(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, rollMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterRollServiceServer registers srv with s.
func RegisterRollServiceServer(s grpc.ServiceRegistrar, srv RollServiceServer) {
	s.RegisterService(&rollServiceDesc, srv)
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RollServiceServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: evaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RollServiceServer).Evaluate(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func rollHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RollServiceServer).Roll(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rollMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RollServiceServer).Roll(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var rollServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RollServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "Roll", Handler: rollHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rollbot/v1/roll.proto",
}
