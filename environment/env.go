// C:/workspace/go/SwarmRL/environment/env.go
package environment

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand/v2"

	"github.com/adriengoldszal/SwarmRL/market"
	"github.com/adriengoldszal/SwarmRL/simulation"
)

var (
	// ErrNotReset 表示在 Reset 之前或 episode 结束之后调用了 Step。
	ErrNotReset = errors.New("environment: call Reset before Step")
	// ErrBadAction 表示动作向量的数量或长度与动作空间不符。
	ErrBadAction = errors.New("environment: malformed action")
)

// 动作向量中移动部分的下标
const (
	actionForward = iota
	actionLateral
	actionRotation
	actionGrasper
	moveDims
)

// Env 是多无人机搜救的市场环境 (MASwarmMarket)。
// 每个逻辑步先推进 FixedStep 个物理子步，再执行拍卖和奖励塑形。
// Env 不是并发安全的，调用方需要保证串行访问。
type Env struct {
	cfg       Config
	shaper    *market.Shaper
	observers []StepObserver
	rng       *rand.Rand

	// --- 本 episode 的仿真上下文，Reset 时重建 ---
	pg   *simulation.Playground
	done bool

	// --- 跨步状态 ---
	prevAssignment market.Assignment // 上一步的拍卖结果，只读快照
	lastAssignment market.Assignment
	lastConflicts  []int
	currentStep    int
	rescueCount    int // 本 episode 累计的救援事件
	hasExpScore    bool
	lastExpScore   float64

	// --- episode 统计 ---
	epCount          int
	episodeReturn    float64
	episodeRescued   int
	episodeConflicts int
}

// New 校验配置并创建环境。地图名称无效时直接返回配置错误。
func New(cfg Config, observers ...StepObserver) (*Env, error) {
	if !cfg.ContinuousAction {
		return nil, fmt.Errorf("environment: only continuous actions are supported")
	}
	if cfg.FixedStep <= 0 || cfg.MaxEpisodeSteps <= 0 {
		return nil, fmt.Errorf("environment: fixed_step and max_episode_steps must be positive (got %d, %d)", cfg.FixedStep, cfg.MaxEpisodeSteps)
	}
	if _, err := simulation.NewMap(cfg.MapName, cfg.NAgents, cfg.NTargets, cfg.MapSize); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	e := &Env{
		cfg: cfg,
		shaper: market.NewShaper(market.RewardConfig{
			ShareReward:       cfg.ShareReward,
			UseConflictReward: cfg.UseConflictReward,
			UseExploration:    cfg.UseExpMap,
		}),
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1)),
	}
	for _, o := range observers {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
	return e, nil
}

// Config 返回环境配置。
func (e *Env) Config() Config { return e.cfg }

// Playground 返回当前 episode 的仿真上下文，Reset 之前为 nil。
func (e *Env) Playground() *simulation.Playground { return e.pg }

// Reset 销毁旧的仿真上下文并重建一个新的，返回每架无人机的初始观测。
func (e *Env) Reset() ([][]float32, error) {
	m, err := simulation.NewMap(e.cfg.MapName, e.cfg.NAgents, e.cfg.NTargets, e.cfg.MapSize)
	if err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	e.pg = simulation.NewPlayground(m, e.cfg.NTargets, e.cfg.Seed+uint64(e.epCount))
	e.epCount++
	e.done = false

	e.prevAssignment = nil
	e.lastAssignment = nil
	e.lastConflicts = make([]int, e.cfg.NAgents)
	e.currentStep = 0
	e.rescueCount = 0
	e.hasExpScore = false
	e.episodeReturn = 0
	e.episodeRescued = 0
	e.episodeConflicts = 0

	log.Printf("🔄 [Episode %d] 仿真上下文已重建 (地图 %s, %d 架无人机, %d 名伤员)", e.epCount, m.Name, e.cfg.NAgents, e.cfg.NTargets)
	return e.observations(), nil
}

// Episode 返回已开始的 episode 数量。
func (e *Env) Episode() int { return e.epCount }

// Step 执行一个逻辑步。actions[i] 为无人机 i 的动作:
// [前进, 横移, 旋转, 抓取, 对每个目标的出价...]。
func (e *Env) Step(actions [][]float64) (*StepResult, error) {
	if e.pg == nil || e.done {
		return nil, ErrNotReset
	}
	if err := e.checkActions(actions); err != nil {
		return nil, err
	}

	persons := e.pg.WoundedPersons()
	drones := e.pg.Drones()

	// 1. 在推进物理之前记录每名伤员到救援区的距离
	prevDistances := make([]float64, len(persons))
	for i := range persons {
		prevDistances[i] = e.pg.DistanceToRescue(i)
	}

	// 2. 解析动作，出价通过广播信道发送
	commands := make([]simulation.Command, len(drones))
	rotations := make([]float64, len(drones))
	for i := range drones {
		cmd, bids := ConstructAction(actions[i], e.cfg.NTargets)
		commands[i] = cmd
		e.pg.Comms().Broadcast(simulation.NewBidMessage(i, e.currentStep+1, bids))
		rotations[i] = actions[i][actionRotation]
		if e.cfg.Verbose {
			log.Printf("📨 [无人机 %d] 出价 %v", i, bids)
		}
	}

	// 3. 推进物理子步，累计救援事件
	rewards := make([]float64, len(drones))
	for i := range rewards {
		rewards[i] = market.StepCost
	}
	terminated, truncated := false, false
	done := false
	for counter := 0; counter < e.cfg.FixedStep && !done; counter++ {
		done = e.pg.Step(commands)
		for i, d := range drones {
			if r := d.Reward(); r != 0 {
				e.rescueCount += r
				e.episodeRescued += r
				rewards[i] += market.RescueBonus
			}
		}
		if e.rescueCount >= e.pg.Map.NumberWoundedPersons() {
			terminated = true
			e.rescueCount = 0
			break
		}
	}

	// 4. 拍卖与奖励塑形，读取逻辑步结束时的状态
	messages := e.pg.Comms().Messages()
	bidMatrix := market.BidMatrix(messages, e.cfg.NTargets)
	assignment := market.Resolve(bidMatrix)
	if e.cfg.Verbose {
		log.Printf("📋 [Episode %d] 第 %d 步分配结果 %v", e.epCount, e.currentStep+1, assignment)
	}

	shaped, conflicts := e.shaper.Shape(rotations, e.prevAssignment, assignment, e.snapshot())
	for i := range rewards {
		rewards[i] += shaped[i]
	}
	e.prevAssignment = assignment.Clone()

	e.currentStep++
	if e.currentStep >= e.cfg.MaxEpisodeSteps {
		truncated = true
		for i := range rewards {
			rewards[i] -= market.TruncationPenalty
		}
	}

	// 5. 团队奖励: 距离项与探索项只进入共享奖励
	deltaDistances := 0.0
	for i := range persons {
		deltaDistances += e.pg.DistanceToRescue(i) - prevDistances[i]
	}
	deltaExp := 0.0
	if e.cfg.UseExpMap {
		score := e.pg.ExploredMap().Score()
		if e.hasExpScore {
			deltaExp = score - e.lastExpScore
		}
		e.lastExpScore = score
		e.hasExpScore = true
	}

	outcome := market.StepOutcome{
		Individual:       rewards,
		Truncated:        truncated,
		DistanceDelta:    deltaDistances,
		ExplorationDelta: deltaExp,
	}
	final, shared := e.shaper.Team(outcome)
	if e.cfg.Verbose {
		log.Printf("💰 [Episode %d] 个体奖励 %v, delta_distances %.3f, 共享奖励 %.3f", e.epCount, rewards, deltaDistances, shared)
	}

	e.done = terminated || truncated
	e.lastAssignment = assignment
	e.lastConflicts = conflicts
	e.episodeReturn += final[0]
	for _, c := range conflicts {
		e.episodeConflicts += c
	}

	dones := make([]bool, len(drones))
	for i := range dones {
		dones[i] = e.done
	}

	res := &StepResult{
		Observations: e.observations(),
		Rewards:      final,
		SharedReward: shared,
		Dones:        dones,
		Terminated:   terminated,
		Truncated:    truncated,
		Info:         e.Info(),
	}

	e.notifyStep(messages, outcome, res)
	if e.done {
		e.notifyEpisode(terminated, truncated)
	}
	return res, nil
}

// ConstructAction 把动作向量拆成物理指令和出价。移动分量截断到 [-1, 1]，
// 抓取分量大于 0.5 视为闭合，出价保持原值。
func ConstructAction(action []float64, nTargets int) (simulation.Command, []float64) {
	cmd := simulation.Command{
		Forward:  clip(action[actionForward]),
		Lateral:  clip(action[actionLateral]),
		Rotation: clip(action[actionRotation]),
		Grasper:  action[actionGrasper] > 0.5,
	}
	bids := make([]float64, nTargets)
	copy(bids, action[moveDims:])
	return cmd, bids
}

func (e *Env) checkActions(actions [][]float64) error {
	if len(actions) != e.cfg.NAgents {
		return fmt.Errorf("%w: expected %d agents, got %d", ErrBadAction, e.cfg.NAgents, len(actions))
	}
	want := ActionDim(e.cfg.NTargets)
	for i, a := range actions {
		if len(a) != want {
			return fmt.Errorf("%w: agent %d expected %d components, got %d", ErrBadAction, i, want, len(a))
		}
	}
	return nil
}

// snapshot 把逻辑步结束时的仿真状态整理成奖励塑形需要的只读快照。
func (e *Env) snapshot() market.Snapshot {
	drones := e.pg.Drones()
	persons := e.pg.WoundedPersons()
	snap := market.Snapshot{
		Agents:    make([]market.AgentStatus, len(drones)),
		GraspedBy: make([][]int, len(persons)),
	}
	for i, d := range drones {
		snap.Agents[i] = market.AgentStatus{Collided: d.IsCollided(), TouchingTarget: d.TouchHuman()}
	}
	for i, p := range persons {
		snap.GraspedBy[i] = append([]int(nil), p.GraspedBy...)
	}
	return snap
}

// SampleAction 在动作空间内均匀采样每架无人机的动作。
func (e *Env) SampleAction() [][]float64 {
	low, high := ActionBounds(e.cfg.NTargets)
	actions := make([][]float64, e.cfg.NAgents)
	for i := range actions {
		a := make([]float64, len(low))
		for j := range a {
			a[j] = low[j] + e.rng.Float64()*(high[j]-low[j])
		}
		actions[i] = a
	}
	return actions
}

// ActionDim 返回单架无人机的动作维度。
func ActionDim(nTargets int) int { return moveDims + nTargets }

// ActionBounds 返回动作空间的上下界: 移动分量 [-1, 1]，抓取与出价 [0, 1]。
func ActionBounds(nTargets int) (low, high []float64) {
	low = append([]float64{-1, -1, -1, 0}, make([]float64, nTargets)...)
	high = []float64{1, 1, 1, 1}
	for i := 0; i < nTargets; i++ {
		high = append(high, 1)
	}
	return low, high
}

func clip(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
