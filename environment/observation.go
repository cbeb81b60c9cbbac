package environment

import (
	"github.com/adriengoldszal/SwarmRL/simulation"
)

// 观测向量各部分的长度
const (
	lidarDims    = simulation.LidarRays - 1
	velocityDims = 2
	poseDims     = 3
	semanticDims = 3
	grasperDims  = 1
)

// ObservationDim 返回单架无人机观测向量的长度:
// 激光雷达 + (伤员 + 无人机) 语义三元组 + 速度与位姿 + 所有消息 + 抓取标志。
func ObservationDim(nAgents, nTargets int) int {
	return lidarDims +
		(nTargets+nAgents)*semanticDims +
		velocityDims + poseDims +
		nAgents*nTargets +
		grasperDims
}

// Observe 生成无人机 agentID 的观测向量。
func (e *Env) Observe(agentID int) []float32 {
	nA, nT := e.cfg.NAgents, e.cfg.NTargets
	obs := make([]float32, 0, ObservationDim(nA, nT))
	drones := e.pg.Drones()
	d := drones[agentID]

	// 激光雷达，丢弃与第一条重合的最后一条射线
	lidar := e.pg.LidarValues(d)
	for _, v := range lidar[:lidarDims] {
		obs = append(obs, float32(v/simulation.LidarMaxRange))
	}

	vel := d.MeasuredVelocity()
	obs = append(obs, float32(vel[0]), float32(vel[1]))

	pos := d.TruePosition()
	size := e.pg.Map.SizeArea
	obs = append(obs, float32(pos[0]/size[0]), float32(pos[1]/size[1]), float32(d.TrueAngle()))

	// 语义: 救援中心, nT 个伤员, nA-1 架其他无人机，看不到的位置补零
	semantic := make([]simulation.SemanticTriple, 1+nT+(nA-1))
	center, humans, others := e.pg.ProcessSpecialSemantic(d)
	semantic[0] = center
	for i := 0; i < len(humans) && i < nT; i++ {
		semantic[1+i] = humans[i]
	}
	for i := 0; i < len(others) && i < nA-1; i++ {
		semantic[1+nT+i] = others[i]
	}
	for _, s := range semantic {
		obs = append(obs, float32(s[0]), float32(s[1]), float32(s[2]))
	}

	if len(d.GraspedEntities()) > 0 {
		obs = append(obs, 1)
	} else {
		obs = append(obs, 0)
	}

	for _, msg := range e.pg.Comms().Messages() {
		for _, m := range msg {
			obs = append(obs, float32(m))
		}
	}
	return obs
}

func (e *Env) observations() [][]float32 {
	out := make([][]float32, e.cfg.NAgents)
	for i := range out {
		out[i] = e.Observe(i)
	}
	return out
}

// State 返回所有无人机观测的拼接，供集中式 critic 使用。
func (e *Env) State() []float32 {
	if e.pg == nil {
		return nil
	}
	var state []float32
	for _, o := range e.observations() {
		state = append(state, o...)
	}
	return state
}
