package market

import "math"

// 奖励项常量
const (
	StepCost          = -0.5 // 每个逻辑步每架无人机的固定代价
	RescueBonus       = 50.0 // 子步内救援信号非零时的奖励
	TruncationPenalty = 20.0 // episode 因步数用尽被截断时的惩罚

	CollisionPenalty   = 1.0
	ContactBonus       = 1.0
	ConflictPenalty    = 1.0
	ReleasePenalty     = 0.75 // 丢失分配时仍在抓取该目标
	LostPenalty        = 0.25 // 丢失分配且未抓取该目标
	FulfilledBonus     = 2.0
	UnfulfilledPenalty = 0.25

	SharedFloorPerAgent = -10.0 // 共享奖励的下限系数 (乘以 n_agents)
	DistanceDivisor     = 5.0
	ExplorationWeight   = 50.0
)

// AgentStatus 是奖励计算所需的单架无人机的仿真状态。
type AgentStatus struct {
	Collided       bool // 与障碍物发生碰撞
	TouchingTarget bool // 正在接触伤员
}

// Snapshot 是逻辑步结束时的仿真观测量，只读。
type Snapshot struct {
	Agents []AgentStatus
	// GraspedBy[t] 是当前抓取目标 t 的无人机下标集合
	GraspedBy [][]int
}

// Grasping 报告无人机 agent 是否正在抓取目标 target。
func (s Snapshot) Grasping(agent, target int) bool {
	if target < 0 || target >= len(s.GraspedBy) {
		return false
	}
	for _, a := range s.GraspedBy[target] {
		if a == agent {
			return true
		}
	}
	return false
}

// RewardConfig 控制奖励塑形的开关。
type RewardConfig struct {
	ShareReward       bool
	UseConflictReward bool
	UseExploration    bool
}

// Shaper 计算每架无人机的塑形奖励以及团队共享奖励。
type Shaper struct {
	cfg RewardConfig
}

// NewShaper 是 Shaper 的构造函数。
func NewShaper(cfg RewardConfig) *Shaper {
	return &Shaper{cfg: cfg}
}

// Config 返回当前的奖励配置。
func (s *Shaper) Config() RewardConfig { return s.cfg }

// AgentReward 计算无人机 idx 在本步的塑形奖励以及它参与的抓取冲突数量。
// previous 是上一步的分配快照 (第一步为 nil)，current 是本步拍卖结果。
func (s *Shaper) AgentReward(idx int, rotation float64, previous, current Assignment, snap Snapshot) (float64, int) {
	rew := -math.Abs(rotation)
	conflicts := 0

	if idx < len(snap.Agents) {
		if snap.Agents[idx].Collided {
			rew -= CollisionPenalty
		}
		if snap.Agents[idx].TouchingTarget {
			rew += ContactBonus
		}
	}

	for t, graspers := range snap.GraspedBy {
		if len(graspers) > 1 && snap.Grasping(idx, t) {
			if s.cfg.UseConflictReward {
				rew -= ConflictPenalty
			}
			conflicts++
		}
	}

	// 上一步持有、本步不再持有的分配
	for t := range previous {
		if previous[t] != idx || current.AgentFor(t) == idx {
			continue
		}
		if snap.Grasping(idx, t) {
			rew -= ReleasePenalty
		} else {
			rew -= LostPenalty
		}
	}

	for t := range current {
		if current[t] != idx {
			continue
		}
		if snap.Grasping(idx, t) {
			rew += FulfilledBonus
		} else {
			rew -= UnfulfilledPenalty
		}
	}

	return rew, conflicts
}

// Shape 对所有无人机调用 AgentReward，所有无人机使用同一份 previous 快照。
func (s *Shaper) Shape(rotations []float64, previous, current Assignment, snap Snapshot) ([]float64, []int) {
	rewards := make([]float64, len(rotations))
	conflicts := make([]int, len(rotations))
	for i, rot := range rotations {
		rewards[i], conflicts[i] = s.AgentReward(i, rot, previous, current, snap)
	}
	return rewards, conflicts
}

// StepOutcome 汇总了一个逻辑步结束时计算团队奖励所需的全部输入。
type StepOutcome struct {
	// Individual 已包含固定代价、子步救援奖励、塑形项和截断惩罚
	Individual []float64
	Truncated  bool
	// DistanceDelta 为所有伤员到救援区距离 (当前 - 步开始时) 之和
	DistanceDelta float64
	// ExplorationDelta 为探索分数的增量，仅在 UseExploration 时生效
	ExplorationDelta float64
}

// TeamReward 返回共享标量。未截断时基础部分不低于 -10 * n_agents，
// 距离项和探索项在下限之后加入，不受其约束。
func (s *Shaper) TeamReward(o StepOutcome) float64 {
	shared := 0.0
	for _, r := range o.Individual {
		shared += r
	}
	if !o.Truncated {
		shared = math.Max(shared, SharedFloorPerAgent*float64(len(o.Individual)))
	}
	shared -= o.DistanceDelta / DistanceDivisor
	if s.cfg.UseExploration {
		shared += ExplorationWeight * o.ExplorationDelta
	}
	return shared
}

// Team 返回每架无人机最终得到的奖励以及共享标量。
// 开启共享时每架无人机都拿到共享标量，否则拿到各自的个体奖励。
func (s *Shaper) Team(o StepOutcome) ([]float64, float64) {
	shared := s.TeamReward(o)
	out := make([]float64, len(o.Individual))
	if s.cfg.ShareReward {
		for i := range out {
			out[i] = shared
		}
	} else {
		copy(out, o.Individual)
	}
	return out, shared
}
