// C:/workspace/go/SwarmRL/environment/server.go
package environment

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/paulmach/orb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/adriengoldszal/SwarmRL/api"
)

// Server 结构体实现了 gRPC 服务，并持有整个环境的状态
type Server struct {
	mu  sync.Mutex
	env *Env
}

var _ api.RLEnvironmentServer = (*Server)(nil)

// NewServer 用一个已创建的环境构造服务器
func NewServer(env *Env) *Server {
	return &Server{env: env}
}

// Reset 实现了 gRPC 的 Reset 方法
func (s *Server) Reset(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obs, err := s.env.Reset()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return api.ResetReply{Observations: obs, Info: InfoMap(s.env.Info())}.ToStruct()
}

// Step 实现了 gRPC 的 Step 方法，这是 RL 的核心
func (s *Server) Step(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := api.ParseStepRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 检查 episode 是否在上一步已经结束 (或者从未开始)
	if s.env.pg == nil || s.env.done {
		log.Println("Episode is done, resetting for a new episode...")
		obs, err := s.env.Reset()
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		n := s.env.cfg.NAgents
		dones := make([]bool, n)
		for i := range dones {
			dones[i] = true // 告知训练端上一个 episode 确实结束了
		}
		return api.StepReply{
			Observations: obs,
			Rewards:      make([]float64, n),
			Dones:        dones,
			Info:         InfoMap(s.env.Info()),
		}.ToStruct()
	}

	res, err := s.env.Step(req.Actions)
	switch {
	case errors.Is(err, ErrBadAction):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrNotReset):
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	case err != nil:
		return nil, status.Error(codes.Internal, err.Error())
	}
	if res.Terminated {
		log.Printf("🏁 [Episode %d] 所有伤员均已获救，用时 %d 步", res.Info.Episode, res.Info.Step)
	} else if res.Truncated {
		log.Printf("⌛ [Episode %d] 达到步数上限 %d，已救出 %d 人", res.Info.Episode, res.Info.Step, res.Info.RescuedCount)
	}

	return api.StepReply{
		Observations: res.Observations,
		Rewards:      res.Rewards,
		Dones:        res.Dones,
		Info:         InfoMap(res.Info),
	}.ToStruct()
}

// InfoMap 把 Info 转换为可以放进 structpb 的通用结构
func InfoMap(info Info) map[string]any {
	assignment := make([]any, len(info.Assignment))
	for i, a := range info.Assignment {
		assignment[i] = float64(a)
	}
	conflicts := make([]any, len(info.ConflictCount))
	for i, c := range info.ConflictCount {
		conflicts[i] = float64(c)
	}
	return map[string]any{
		"map_name":           info.MapName,
		"wounded_people_pos": points(info.WoundedPeoplePos),
		"rescue_zone":        []any{info.RescueZone[0], info.RescueZone[1]},
		"drones_true_pos":    points(info.DronesTruePos),
		"conflict_count":     conflicts,
		"assignment":         assignment,
		"step":               float64(info.Step),
		"episode":            float64(info.Episode),
		"rescued_count":      float64(info.RescuedCount),
	}
}

func points(ps []orb.Point) []any {
	out := make([]any, len(ps))
	for i, p := range ps {
		out[i] = []any{p[0], p[1]}
	}
	return out
}
