// C:/workspace/go/SwarmRL/api/service.go
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName 是强化学习环境 gRPC 服务的全名。
// 消息体使用 structpb.Struct，训练端无需生成代码即可调用。
const ServiceName = "swarm.RLEnvironment"

const (
	resetMethod = "/" + ServiceName + "/Reset"
	stepMethod  = "/" + ServiceName + "/Step"
)

// RLEnvironmentServer 是环境服务需要实现的接口。
type RLEnvironmentServer interface {
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Step(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterRLEnvironmentServer 把实现注册到 gRPC 服务器上。
func RegisterRLEnvironmentServer(s grpc.ServiceRegistrar, srv RLEnvironmentServer) {
	s.RegisterService(&RLEnvironment_ServiceDesc, srv)
}

func _RLEnvironment_Reset_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RLEnvironmentServer).Reset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: resetMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RLEnvironmentServer).Reset(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _RLEnvironment_Step_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RLEnvironmentServer).Step(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: stepMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RLEnvironmentServer).Step(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RLEnvironment_ServiceDesc 是 swarm.RLEnvironment 服务的描述。
var RLEnvironment_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RLEnvironmentServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Reset",
			Handler:    _RLEnvironment_Reset_Handler,
		},
		{
			MethodName: "Step",
			Handler:    _RLEnvironment_Step_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "swarm/rl_environment.proto",
}
