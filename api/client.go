package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client 是训练端访问环境服务的 gRPC 客户端。
type Client struct {
	conn *grpc.ClientConn
}

// Dial 连接到 addr 上的环境服务。额外的 opts 会追加在默认选项之后。
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close 关闭底层连接。
func (c *Client) Close() error { return c.conn.Close() }

// Reset 开始一个新的 episode。
func (c *Client) Reset(ctx context.Context) (ResetReply, error) {
	in, err := ResetRequest{}.ToStruct()
	if err != nil {
		return ResetReply{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, resetMethod, in, out); err != nil {
		return ResetReply{}, err
	}
	return ParseResetReply(out)
}

// Step 发送所有无人机的动作并返回结果。
func (c *Client) Step(ctx context.Context, actions [][]float64) (StepReply, error) {
	in, err := StepRequest{Actions: actions}.ToStruct()
	if err != nil {
		return StepReply{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, stepMethod, in, out); err != nil {
		return StepReply{}, err
	}
	return ParseStepReply(out)
}
