// Package rpc exposes diagram lock operations over gRPC.
//
// Messages are protobuf well-known types so the service needs no generated
// code: requests carry the diagram id as a StringValue and responses carry
// the lock state as a Struct shaped like the HTTP lock body.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// LockServiceName is the fully qualified gRPC service name.
const LockServiceName = "diagrams.v1.LockService"

// Full method names.
const (
	LockService_GetLock_FullMethodName     = "/" + LockServiceName + "/GetLock"
	LockService_AcquireLock_FullMethodName = "/" + LockServiceName + "/AcquireLock"
	LockService_ReleaseLock_FullMethodName = "/" + LockServiceName + "/ReleaseLock"
)

// LockServiceServer is the server API for the lock service.
type LockServiceServer interface {
	GetLock(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	AcquireLock(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ReleaseLock(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

type lockCall func(LockServiceServer, context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call lockCall) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wrapperspb.StringValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LockServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LockServiceServer), ctx, req.(*wrapperspb.StringValue))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LockService_ServiceDesc is the grpc.ServiceDesc for the lock service.
var LockService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: LockServiceName,
	HandlerType: (*LockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetLock",
			Handler:    unaryHandler(LockService_GetLock_FullMethodName, LockServiceServer.GetLock),
		},
		{
			MethodName: "AcquireLock",
			Handler:    unaryHandler(LockService_AcquireLock_FullMethodName, LockServiceServer.AcquireLock),
		},
		{
			MethodName: "ReleaseLock",
			Handler:    unaryHandler(LockService_ReleaseLock_FullMethodName, LockServiceServer.ReleaseLock),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterLockServiceServer registers srv on s.
func RegisterLockServiceServer(s grpc.ServiceRegistrar, srv LockServiceServer) {
	s.RegisterService(&LockService_ServiceDesc, srv)
}

// LockServiceClient is the client API for the lock service.
type LockServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLockServiceClient creates a client over cc.
func NewLockServiceClient(cc grpc.ClientConnInterface) *LockServiceClient {
	return &LockServiceClient{cc: cc}
}

// GetLock reads the lock state of a diagram.
func (c *LockServiceClient) GetLock(ctx context.Context, diagramID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, LockService_GetLock_FullMethodName, diagramID, opts)
}

// AcquireLock takes the lock of a diagram or reports the current holder.
func (c *LockServiceClient) AcquireLock(ctx context.Context, diagramID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, LockService_AcquireLock_FullMethodName, diagramID, opts)
}

// ReleaseLock releases a lock held by the caller.
func (c *LockServiceClient) ReleaseLock(ctx context.Context, diagramID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, LockService_ReleaseLock_FullMethodName, diagramID, opts)
}

func (c *LockServiceClient) invoke(ctx context.Context, method, diagramID string, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, wrapperspb.String(diagramID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
