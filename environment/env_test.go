package environment

import (
	"errors"
	"math"
	"testing"

	"github.com/adriengoldszal/SwarmRL/market"
	"github.com/adriengoldszal/SwarmRL/simulation"
)

type recordingObserver struct {
	steps    []StepRecord
	episodes []EpisodeRecord
}

func (r *recordingObserver) CollectStep(rec StepRecord)       { r.steps = append(r.steps, rec) }
func (r *recordingObserver) CollectEpisode(rec EpisodeRecord) { r.episodes = append(r.episodes, rec) }

func newTestEnv(t *testing.T, mutate func(*Config), observers ...StepObserver) *Env {
	t.Helper()
	cfg := DefaultConfig()
	cfg.FixedStep = 1
	cfg.Seed = 7
	if mutate != nil {
		mutate(&cfg)
	}
	env, err := New(cfg, observers...)
	if err != nil {
		t.Fatalf("创建环境失败: %v", err)
	}
	if _, err := env.Reset(); err != nil {
		t.Fatalf("Reset 失败: %v", err)
	}
	return env
}

func zeroActions(nAgents, nTargets int) [][]float64 {
	actions := make([][]float64, nAgents)
	for i := range actions {
		actions[i] = make([]float64, ActionDim(nTargets))
	}
	return actions
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewRejectsInvalidMap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MapName = "Atlantis"
	_, err := New(cfg)
	if !errors.Is(err, simulation.ErrInvalidMap) {
		t.Fatalf("期望 ErrInvalidMap, 得到 %v", err)
	}
}

func TestNewRejectsDiscreteActions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContinuousAction = false
	if _, err := New(cfg); err == nil {
		t.Fatal("离散动作应返回错误")
	}
}

func TestResetObservationShape(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.NAgents = 3; c.NTargets = 2 })
	obs, err := env.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 3 {
		t.Fatalf("期望 3 个观测, 得到 %d", len(obs))
	}
	want := ObservationDim(3, 2)
	if want != 180+15+5+6+1 {
		t.Fatalf("观测维度计算错误: %d", want)
	}
	for i, o := range obs {
		if len(o) != want {
			t.Errorf("无人机 %d: 期望观测长度 %d, 得到 %d", i, want, len(o))
		}
	}
	if got := len(env.State()); got != 3*want {
		t.Errorf("期望全局状态长度 %d, 得到 %d", 3*want, got)
	}
	if env.Episode() != 2 {
		t.Errorf("两次 Reset 之后 episode 应为 2, 得到 %d", env.Episode())
	}
}

func TestStepBeforeResetFails(t *testing.T) {
	env, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Step(zeroActions(2, 2)); !errors.Is(err, ErrNotReset) {
		t.Fatalf("期望 ErrNotReset, 得到 %v", err)
	}
}

func TestStepRejectsMalformedActions(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.Step(zeroActions(1, 2)); !errors.Is(err, ErrBadAction) {
		t.Errorf("无人机数量错误时期望 ErrBadAction, 得到 %v", err)
	}
	actions := zeroActions(2, 2)
	actions[1] = actions[1][:3]
	if _, err := env.Step(actions); !errors.Is(err, ErrBadAction) {
		t.Errorf("动作长度错误时期望 ErrBadAction, 得到 %v", err)
	}
}

func TestIdleStepIndividualRewards(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ShareReward = false })
	res, err := env.Step(zeroActions(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	// 出价全为 0: 目标 0 -> 无人机 0, 目标 1 -> 无人机 1
	if res.Info.Assignment[0] != 0 || res.Info.Assignment[1] != 1 {
		t.Fatalf("期望分配 [0 1], 得到 %v", res.Info.Assignment)
	}
	// 固定代价 -0.5, 分配未完成 -0.25
	for i, r := range res.Rewards {
		if !almostEqual(r, -0.75) {
			t.Errorf("无人机 %d: 期望奖励 -0.75, 得到 %v", i, r)
		}
	}
	if !almostEqual(res.SharedReward, -1.5) {
		t.Errorf("期望共享奖励 -1.5, 得到 %v", res.SharedReward)
	}
	if res.Terminated || res.Truncated || res.Dones[0] {
		t.Errorf("第一步不应结束 episode: %+v", res)
	}
	if res.Info.Step != 1 || len(res.Info.DronesTruePos) != 2 || len(res.Info.WoundedPeoplePos) != 2 {
		t.Errorf("Info 内容不完整: %+v", res.Info)
	}
}

func TestSharedRewardIsBroadcast(t *testing.T) {
	env := newTestEnv(t, nil)
	actions := zeroActions(2, 2)
	actions[0][actionRotation] = 0.5
	res, err := env.Step(actions)
	if err != nil {
		t.Fatal(err)
	}
	// -0.75 * 2 - 0.5 (旋转)
	if !almostEqual(res.SharedReward, -2.0) {
		t.Fatalf("期望共享奖励 -2, 得到 %v", res.SharedReward)
	}
	for i, r := range res.Rewards {
		if r != res.SharedReward {
			t.Errorf("无人机 %d: 共享模式下期望 %v, 得到 %v", i, res.SharedReward, r)
		}
	}
}

func TestTruncationPenaltyBypassesClamp(t *testing.T) {
	obs := &recordingObserver{}
	env := newTestEnv(t, func(c *Config) { c.MaxEpisodeSteps = 1 }, obs)
	res, err := env.Step(zeroActions(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Truncated || res.Terminated {
		t.Fatalf("期望截断, 得到 terminated=%v truncated=%v", res.Terminated, res.Truncated)
	}
	for i, d := range res.Dones {
		if !d {
			t.Errorf("无人机 %d: 截断后 done 应为 true", i)
		}
	}
	// 2 * (-0.75 - 20)，截断步不做下限截断
	if !almostEqual(res.SharedReward, -41.5) {
		t.Errorf("期望共享奖励 -41.5, 得到 %v", res.SharedReward)
	}
	if _, err := env.Step(zeroActions(2, 2)); !errors.Is(err, ErrNotReset) {
		t.Errorf("episode 结束后期望 ErrNotReset, 得到 %v", err)
	}
	if len(obs.steps) != 1 || len(obs.episodes) != 1 {
		t.Fatalf("期望 1 条步记录和 1 条 episode 记录, 得到 %d/%d", len(obs.steps), len(obs.episodes))
	}
	if ep := obs.episodes[0]; !ep.Truncated || ep.Steps != 1 || !almostEqual(ep.Return, -41.5) {
		t.Errorf("episode 记录不正确: %+v", ep)
	}
}

func TestExplorationDeltaStartsAtZero(t *testing.T) {
	obs := &recordingObserver{}
	env := newTestEnv(t, func(c *Config) {
		c.UseExpMap = true
		c.FixedStep = 5
	}, obs)

	if _, err := env.Step(zeroActions(2, 2)); err != nil {
		t.Fatal(err)
	}
	actions := zeroActions(2, 2)
	actions[0][actionForward] = 1
	actions[1][actionForward] = 1
	res, err := env.Step(actions)
	if err != nil {
		t.Fatal(err)
	}
	if obs.steps[0].ExplorationDelta != 0 {
		t.Errorf("第一步的探索增量应为 0, 得到 %v", obs.steps[0].ExplorationDelta)
	}
	delta := obs.steps[1].ExplorationDelta
	if delta <= 0 {
		t.Fatalf("移动之后探索增量应为正, 得到 %v", delta)
	}
	want := -1.5 + market.ExplorationWeight*delta - obs.steps[1].DistanceDelta/market.DistanceDivisor
	if !almostEqual(res.SharedReward, want) {
		t.Errorf("期望共享奖励 %v, 得到 %v", want, res.SharedReward)
	}
}

func TestReassignmentUsesPreviousStep(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ShareReward = false })

	first := zeroActions(2, 2)
	first[0][moveDims+0] = 0.9
	first[1][moveDims+1] = 0.9
	if _, err := env.Step(first); err != nil {
		t.Fatal(err)
	}

	// 两架无人机交换目标: 各自丢失上一步的分配 (-0.25)，新分配未完成 (-0.25)
	second := zeroActions(2, 2)
	second[0][moveDims+1] = 0.9
	second[1][moveDims+0] = 0.9
	res, err := env.Step(second)
	if err != nil {
		t.Fatal(err)
	}
	if res.Info.Assignment[0] != 1 || res.Info.Assignment[1] != 0 {
		t.Fatalf("期望分配 [1 0], 得到 %v", res.Info.Assignment)
	}
	for i, r := range res.Rewards {
		if !almostEqual(r, -1.0) {
			t.Errorf("无人机 %d: 期望奖励 -1, 得到 %v", i, r)
		}
	}
}

func TestResetClearsAssignmentAndExplorationBaseline(t *testing.T) {
	obs := &recordingObserver{}
	env := newTestEnv(t, func(c *Config) {
		c.ShareReward = false
		c.UseExpMap = true
		c.FixedStep = 5
	}, obs)

	first := zeroActions(2, 2)
	first[0][actionForward] = 1
	first[1][actionForward] = 1
	first[0][moveDims+0] = 0.9
	first[1][moveDims+1] = 0.9
	for step := 0; step < 3; step++ {
		if _, err := env.Step(first); err != nil {
			t.Fatal(err)
		}
	}
	if obs.steps[2].ExplorationDelta <= 0 {
		t.Fatalf("第一个 episode 中移动之后探索增量应为正, 得到 %v", obs.steps[2].ExplorationDelta)
	}

	if _, err := env.Reset(); err != nil {
		t.Fatal(err)
	}
	// 交换目标: 若保留上一 episode 的分配，每架无人机会多出 -0.25
	swapped := zeroActions(2, 2)
	swapped[0][moveDims+1] = 0.9
	swapped[1][moveDims+0] = 0.9
	res, err := env.Step(swapped)
	if err != nil {
		t.Fatal(err)
	}
	if res.Info.Assignment[0] != 1 || res.Info.Assignment[1] != 0 {
		t.Fatalf("期望分配 [1 0], 得到 %v", res.Info.Assignment)
	}
	for i, r := range res.Rewards {
		if !almostEqual(r, -0.75) {
			t.Errorf("无人机 %d: 新 episode 第一步期望奖励 -0.75, 得到 %v", i, r)
		}
	}
	last := obs.steps[len(obs.steps)-1]
	if last.Episode != 2 || last.Step != 1 {
		t.Fatalf("期望第 2 个 episode 的第 1 步, 得到 %d/%d", last.Episode, last.Step)
	}
	if last.ExplorationDelta != 0 {
		t.Errorf("新 episode 第一步的探索增量应为 0, 得到 %v", last.ExplorationDelta)
	}
	if !almostEqual(res.SharedReward, -1.5) {
		t.Errorf("期望共享奖励 -1.5, 得到 %v", res.SharedReward)
	}
}

func TestCarryingPersonToRescueZoneTerminates(t *testing.T) {
	obs := &recordingObserver{}
	env := newTestEnv(t, func(c *Config) {
		c.NAgents = 1
		c.NTargets = 1
		c.ShareReward = false
		c.MaxEpisodeSteps = 300
	}, obs)

	pg := env.Playground()
	drone := pg.Drones()[0]
	rescue := pg.Map.RescueCenter

	var res *StepResult
	for step := 0; step < 300; step++ {
		goal := pg.WoundedPersons()[0].Position
		if len(drone.GraspedEntities()) > 0 {
			goal = rescue
		}
		pos := drone.TruePosition()
		// 机头保持朝向 0，机体坐标系与世界坐标系重合
		action := []float64{
			clip((goal[0] - pos[0]) / simulation.LinearSpeed),
			clip((goal[1] - pos[1]) / simulation.LinearSpeed),
			0,
			1,
			1,
		}
		var err error
		res, err = env.Step([][]float64{action})
		if err != nil {
			t.Fatalf("第 %d 步失败: %v", step, err)
		}
		if res.Dones[0] {
			break
		}
	}
	if !res.Terminated || res.Truncated {
		t.Fatalf("期望伤员获救后终止, 得到 terminated=%v truncated=%v", res.Terminated, res.Truncated)
	}
	// -0.5 + 50 (救援) + 1 (送达前的接触) - 0.25 (伤员已送达，分配未完成)
	if !almostEqual(res.Rewards[0], 50.25) {
		t.Errorf("期望终止步奖励 50.25, 得到 %v", res.Rewards[0])
	}
	if res.Info.RescuedCount != 1 {
		t.Errorf("期望救出 1 人, 得到 %d", res.Info.RescuedCount)
	}
	if len(obs.episodes) != 1 || !obs.episodes[0].Terminated || obs.episodes[0].Rescued != 1 {
		t.Errorf("episode 记录不正确: %+v", obs.episodes)
	}
}

func TestConstructActionSplitsMoveAndBids(t *testing.T) {
	cmd, bids := ConstructAction([]float64{2, -3, 0.5, 0.7, 0.1, 0.9}, 2)
	if cmd.Forward != 1 || cmd.Lateral != -1 || cmd.Rotation != 0.5 || !cmd.Grasper {
		t.Errorf("指令解析错误: %+v", cmd)
	}
	if len(bids) != 2 || bids[0] != 0.1 || bids[1] != 0.9 {
		t.Errorf("出价解析错误: %v", bids)
	}
}

func TestSampleActionWithinBounds(t *testing.T) {
	env := newTestEnv(t, nil)
	low, high := ActionBounds(2)
	for n := 0; n < 20; n++ {
		for _, a := range env.SampleAction() {
			for j, v := range a {
				if v < low[j] || v > high[j] {
					t.Fatalf("采样值 %v 超出 [%v, %v]", v, low[j], high[j])
				}
			}
		}
	}
}
