// Package rollserver exposes dice evaluation over gRPC so other services
// can roll without going through a chat front end.
package rollserver

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cory-johannsen/rollbot/internal/dice"
)

// rpcCommand stands in for the chat command token, which the evaluator
// strips before rolling.
const rpcCommand = "rpc"

// OutcomeEvaluator is the subset of *dice.Roller the server uses.
type OutcomeEvaluator interface {
	EvaluateOutcome(ctx context.Context, raw string) (*dice.Outcome, error)
}

// Server implements RollServiceServer.
type Server struct {
	roller  OutcomeEvaluator
	timeout time.Duration
	logger  *zap.Logger
}

// NewServer creates a Server. timeout bounds each evaluation; 0 disables it.
//
// Precondition: roller and logger must be non-nil.
func NewServer(roller OutcomeEvaluator, timeout time.Duration, logger *zap.Logger) *Server {
	return &Server{roller: roller, timeout: timeout, logger: logger}
}

// Evaluate implements RollServiceServer.
func (s *Server) Evaluate(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	outcome, err := s.evaluate(ctx, in.GetValue())
	if err != nil {
		return nil, err
	}
	return wrapperspb.String(dice.Format(outcome)), nil
}

// Roll implements RollServiceServer.
func (s *Server) Roll(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	outcome, err := s.evaluate(ctx, in.GetValue())
	if err != nil {
		return nil, err
	}
	st, err := OutcomeStruct(outcome)
	if err != nil {
		s.logger.Error("encoding outcome", zap.Error(err))
		return nil, status.Error(codes.Internal, "encoding outcome")
	}
	return st, nil
}

func (s *Server) evaluate(ctx context.Context, notation string) (*dice.Outcome, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	outcome, err := s.roller.EvaluateOutcome(ctx, rpcCommand+" "+notation)
	if err != nil {
		return nil, statusFromError(err)
	}
	return outcome, nil
}

// statusFromError maps evaluation failures onto gRPC codes. The message
// of an InvalidArgument status is the user-facing evaluation error.
func statusFromError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.InvalidArgument, err.Error())
	}
}

// OutcomeStruct converts an Outcome to a protobuf Struct.
func OutcomeStruct(o *dice.Outcome) (*structpb.Struct, error) {
	groups := make([]any, 0, o.Len())
	for _, g := range o.Groups() {
		results := make([]any, len(g.Results))
		for i, r := range g.Results {
			results[i] = int(r)
		}
		groups = append(groups, map[string]any{
			"faces":      int(g.Faces),
			"multiplier": g.Multiplier,
			"total":      g.Total,
			"results":    results,
		})
	}
	return structpb.NewStruct(map[string]any{
		"grand_total": o.GrandTotal,
		"text":        dice.Format(o),
		"groups":      groups,
	})
}

// NewGRPCServer creates a grpc.Server with srv registered and every call
// logged.
func NewGRPCServer(srv RollServiceServer, logger *zap.Logger) *grpc.Server {
	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(loggingInterceptor(logger)),
	)
	RegisterRollServiceServer(gs, srv)
	return gs
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("elapsed", time.Since(start)),
		}
		if code == codes.Internal || code == codes.Unknown {
			logger.Error("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("rpc handled", fields...)
		}
		return resp, err
	}
}

// Dial connects to a roll service at addr without transport security.
//
// Postcondition: Returns a client and its connection; the caller must close
// the connection.
func Dial(addr string) (RollServiceClient, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, nil, err
	}
	return NewRollServiceClient(conn), conn, nil
}
