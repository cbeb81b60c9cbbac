package environment

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/adriengoldszal/SwarmRL/api"
)

func startTestServer(t *testing.T, cfg Config) *api.Client {
	t.Helper()
	env, err := New(cfg)
	if err != nil {
		t.Fatalf("创建环境失败: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	api.RegisterRLEnvironmentServer(srv, NewServer(env))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := api.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestServerResetAndStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FixedStep = 1
	client := startTestServer(t, cfg)
	ctx := context.Background()

	reset, err := client.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset 失败: %v", err)
	}
	if len(reset.Observations) != 2 || len(reset.Observations[0]) != ObservationDim(2, 2) {
		t.Fatalf("观测形状错误: %d", len(reset.Observations))
	}
	if reset.Info["map_name"] != "Easy" {
		t.Errorf("期望地图 Easy, 得到 %v", reset.Info["map_name"])
	}

	reply, err := client.Step(ctx, zeroActions(2, 2))
	if err != nil {
		t.Fatalf("Step 失败: %v", err)
	}
	if len(reply.Rewards) != 2 || len(reply.Dones) != 2 {
		t.Fatalf("回复形状错误: %+v", reply)
	}
	if !almostEqual(reply.Rewards[0], -1.5) {
		t.Errorf("期望共享奖励 -1.5, 得到 %v", reply.Rewards[0])
	}
	assignment, _ := reply.Info["assignment"].([]any)
	if len(assignment) != 2 || assignment[0] != 0.0 || assignment[1] != 1.0 {
		t.Errorf("期望分配 [0 1], 得到 %v", reply.Info["assignment"])
	}
	if reply.Info["step"] != 1.0 {
		t.Errorf("期望 step=1, 得到 %v", reply.Info["step"])
	}
}

func TestServerMapsBadActionToInvalidArgument(t *testing.T) {
	client := startTestServer(t, DefaultConfig())
	ctx := context.Background()
	if _, err := client.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	_, err := client.Step(ctx, zeroActions(3, 2))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("期望 InvalidArgument, 得到 %v", err)
	}
}

func TestServerAutoResetsAfterEpisodeEnds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FixedStep = 1
	cfg.MaxEpisodeSteps = 1
	client := startTestServer(t, cfg)
	ctx := context.Background()

	if _, err := client.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	first, err := client.Step(ctx, zeroActions(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	if !first.Dones[0] {
		t.Fatal("步数上限为 1 时第一步应结束 episode")
	}

	second, err := client.Step(ctx, zeroActions(2, 2))
	if err != nil {
		t.Fatalf("结束后的 Step 应自动重置, 得到 %v", err)
	}
	if !second.Dones[0] || second.Rewards[0] != 0 {
		t.Errorf("自动重置回复应为 done 且奖励为 0, 得到 %+v", second)
	}
	if second.Info["episode"] != 2.0 || second.Info["step"] != 0.0 {
		t.Errorf("期望进入第 2 个 episode 的第 0 步, 得到 %v/%v", second.Info["episode"], second.Info["step"])
	}
}
