package scoring

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "questline.scoring.v1.ScoringService"

// Full method names, as seen by interceptors.
const (
	SimulateMethod        = "/" + ServiceName + "/Simulate"
	CalculatePointsMethod = "/" + ServiceName + "/CalculatePoints"
	CompleteTaskMethod    = "/" + ServiceName + "/CompleteTask"
	ListStrategiesMethod  = "/" + ServiceName + "/ListStrategies"
	RegisterGameMethod    = "/" + ServiceName + "/RegisterGame"
	RegisterTaskMethod    = "/" + ServiceName + "/RegisterTask"
)

// MutationMethods lists the methods guarded by the abuse gate.
var MutationMethods = []string{CalculatePointsMethod, CompleteTaskMethod}

// ScoringServiceServer is the server API for the scoring service. Requests
// and responses are JSON-shaped structs; field names are snake_case.
type ScoringServiceServer interface {
	Simulate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CalculatePoints(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListStrategies(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RegisterGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RegisterTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterScoringServiceServer registers srv on registrar.
func RegisterScoringServiceServer(registrar grpc.ServiceRegistrar, srv ScoringServiceServer) {
	registrar.RegisterService(&ScoringServiceDesc, srv)
}

// ScoringServiceDesc describes the scoring service for grpc.Server.
var ScoringServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScoringServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Simulate", Handler: unaryHandler(SimulateMethod, ScoringServiceServer.Simulate)},
		{MethodName: "CalculatePoints", Handler: unaryHandler(CalculatePointsMethod, ScoringServiceServer.CalculatePoints)},
		{MethodName: "CompleteTask", Handler: unaryHandler(CompleteTaskMethod, ScoringServiceServer.CompleteTask)},
		{MethodName: "ListStrategies", Handler: unaryHandler(ListStrategiesMethod, ScoringServiceServer.ListStrategies)},
		{MethodName: "RegisterGame", Handler: unaryHandler(RegisterGameMethod, ScoringServiceServer.RegisterGame)},
		{MethodName: "RegisterTask", Handler: unaryHandler(RegisterTaskMethod, ScoringServiceServer.RegisterTask)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "questline/scoring/v1/scoring.proto",
}

type unaryMethod func(ScoringServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, method unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(ScoringServiceServer)
		if interceptor == nil {
			return method(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls the scoring service over conn.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient creates a scoring service client.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Simulate issues a committed preview.
func (c *Client) Simulate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SimulateMethod, in, opts...)
}

// CalculatePoints scores a completion without persisting it.
func (c *Client) CalculatePoints(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, CalculatePointsMethod, in, opts...)
}

// CompleteTask scores and persists a completion.
func (c *Client) CompleteTask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, CompleteTaskMethod, in, opts...)
}

// ListStrategies pages through registered strategies.
func (c *Client) ListStrategies(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ListStrategiesMethod, in, opts...)
}

// RegisterGame creates or updates a game.
func (c *Client) RegisterGame(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, RegisterGameMethod, in, opts...)
}

// RegisterTask creates or updates a task.
func (c *Client) RegisterTask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, RegisterTaskMethod, in, opts...)
}
