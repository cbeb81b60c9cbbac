package market

import (
	"math"
	"testing"
)

const eps = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < eps }

func TestAgentRewardReleasedWhileGrasping(t *testing.T) {
	s := NewShaper(RewardConfig{})
	// 无人机 0 上一步持有目标 0，本步没有任何分配，但仍抓着目标 0
	prev := Assignment{0, 1}
	cur := Assignment{1, Unassigned}
	snap := Snapshot{
		Agents:    []AgentStatus{{}, {}},
		GraspedBy: [][]int{{0}, {}},
	}
	got, conflicts := s.AgentReward(0, 0, prev, cur, snap)
	if !near(got, -ReleasePenalty) {
		t.Fatalf("期望奖励 %.2f, 得到 %.4f", -ReleasePenalty, got)
	}
	if conflicts != 0 {
		t.Errorf("期望冲突数 0, 得到 %d", conflicts)
	}
}

func TestAgentRewardTerms(t *testing.T) {
	cases := []struct {
		name      string
		cfg       RewardConfig
		idx       int
		rotation  float64
		prev, cur Assignment
		snap      Snapshot
		want      float64
		conflicts int
	}{
		{
			name: "rotation only", idx: 0, rotation: -0.4,
			cur:  Assignment{Unassigned},
			snap: Snapshot{Agents: []AgentStatus{{}}, GraspedBy: [][]int{{}}},
			want: -0.4,
		},
		{
			name: "collided and touching", idx: 0,
			cur:  Assignment{Unassigned},
			snap: Snapshot{Agents: []AgentStatus{{Collided: true, TouchingTarget: true}}, GraspedBy: [][]int{{}}},
			want: 0,
		},
		{
			name: "assignment fulfilled", idx: 1, rotation: 0.5,
			cur:  Assignment{1},
			snap: Snapshot{Agents: []AgentStatus{{}, {}}, GraspedBy: [][]int{{1}}},
			want: -0.5 + FulfilledBonus,
		},
		{
			name: "assignment unfulfilled", idx: 1,
			cur:  Assignment{1},
			snap: Snapshot{Agents: []AgentStatus{{}, {}}, GraspedBy: [][]int{{0}}},
			want: -UnfulfilledPenalty,
		},
		{
			name: "lost assignment not grasping", idx: 0,
			prev: Assignment{0},
			cur:  Assignment{1},
			snap: Snapshot{Agents: []AgentStatus{{}, {}}, GraspedBy: [][]int{{}}},
			want: -LostPenalty,
		},
		{
			name: "kept assignment is not a reassignment", idx: 0,
			prev: Assignment{0},
			cur:  Assignment{0},
			snap: Snapshot{Agents: []AgentStatus{{}}, GraspedBy: [][]int{{0}}},
			want: FulfilledBonus,
		},
		{
			name: "moved to another target", idx: 0,
			prev: Assignment{0, Unassigned},
			cur:  Assignment{Unassigned, 0},
			snap: Snapshot{Agents: []AgentStatus{{}}, GraspedBy: [][]int{{}, {0}}},
			want: -LostPenalty + FulfilledBonus,
		},
		{
			name: "conflict counted without penalty", idx: 0,
			cur:       Assignment{Unassigned},
			snap:      Snapshot{Agents: []AgentStatus{{}, {}}, GraspedBy: [][]int{{0, 1}}},
			want:      0,
			conflicts: 1,
		},
		{
			name: "conflict penalised when enabled", cfg: RewardConfig{UseConflictReward: true}, idx: 1,
			cur:       Assignment{Unassigned, Unassigned},
			snap:      Snapshot{Agents: []AgentStatus{{}, {}}, GraspedBy: [][]int{{0, 1}, {1, 0}}},
			want:      -2 * ConflictPenalty,
			conflicts: 2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewShaper(tc.cfg)
			got, conflicts := s.AgentReward(tc.idx, tc.rotation, tc.prev, tc.cur, tc.snap)
			if !near(got, tc.want) {
				t.Errorf("期望奖励 %.4f, 得到 %.4f", tc.want, got)
			}
			if conflicts != tc.conflicts {
				t.Errorf("期望冲突数 %d, 得到 %d", tc.conflicts, conflicts)
			}
		})
	}
}

func TestShapeUsesSamePreviousSnapshotForAllAgents(t *testing.T) {
	s := NewShaper(RewardConfig{})
	prev := Assignment{0, 1}
	cur := Assignment{1, 0}
	snap := Snapshot{Agents: []AgentStatus{{}, {}}, GraspedBy: [][]int{{}, {}}}
	rewards, _ := s.Shape([]float64{0, 0}, prev, cur, snap)
	want := -LostPenalty - UnfulfilledPenalty
	for i, r := range rewards {
		if !near(r, want) {
			t.Errorf("无人机 %d 期望 %.4f, 得到 %.4f", i, want, r)
		}
	}
}

func TestTeamRewardFloorAndAdjustments(t *testing.T) {
	s := NewShaper(RewardConfig{ShareReward: true})

	// 基础部分被下限截到 -20，距离增大 10 再扣 2
	o := StepOutcome{Individual: []float64{-30, -5}, DistanceDelta: 10}
	rewards, shared := s.Team(o)
	if !near(shared, -22) {
		t.Fatalf("期望共享奖励 -22, 得到 %.4f", shared)
	}
	for i, r := range rewards {
		if !near(r, shared) {
			t.Errorf("无人机 %d 应得到共享奖励, 得到 %.4f", i, r)
		}
	}

	// 截断时不做下限处理
	o.Truncated = true
	if got := s.TeamReward(o); !near(got, -37) {
		t.Errorf("截断时期望 -37, 得到 %.4f", got)
	}

	// 伤员靠近救援区，距离项为正奖励
	o = StepOutcome{Individual: []float64{1, 1}, DistanceDelta: -25}
	if got := s.TeamReward(o); !near(got, 7) {
		t.Errorf("期望 7, 得到 %.4f", got)
	}
}

func TestTeamRewardExplorationAndIndividualMode(t *testing.T) {
	o := StepOutcome{Individual: []float64{2, -1}, DistanceDelta: 5, ExplorationDelta: 0.1}

	explore := NewShaper(RewardConfig{ShareReward: true, UseExploration: true})
	if got := explore.TeamReward(o); !near(got, 1-1+5) {
		t.Errorf("期望 5, 得到 %.4f", got)
	}

	noExplore := NewShaper(RewardConfig{ShareReward: true})
	if got := noExplore.TeamReward(o); !near(got, 0) {
		t.Errorf("未开启探索时期望 0, 得到 %.4f", got)
	}

	individual := NewShaper(RewardConfig{UseExploration: true})
	rewards, _ := individual.Team(o)
	if !near(rewards[0], 2) || !near(rewards[1], -1) {
		t.Errorf("非共享模式应返回个体奖励, 得到 %v", rewards)
	}
}
