package market

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Unassigned 表示某个目标在本步没有分配到任何无人机。
const Unassigned = -1

// Assignment 是目标到无人机的映射，长度为 n_targets。
// 每个无人机下标在其中最多出现一次。
type Assignment []int

// AgentFor 返回目标 target 分配到的无人机，未分配时返回 Unassigned。
func (a Assignment) AgentFor(target int) int {
	if target < 0 || target >= len(a) {
		return Unassigned
	}
	return a[target]
}

// TargetOf 返回无人机 agent 被分配到的目标，没有则返回 Unassigned。
func (a Assignment) TargetOf(agent int) int {
	for t, ag := range a {
		if ag == agent {
			return t
		}
	}
	return Unassigned
}

// Clone 返回一份独立的副本，用作下一步的只读快照。
func (a Assignment) Clone() Assignment {
	if a == nil {
		return nil
	}
	out := make(Assignment, len(a))
	copy(out, a)
	return out
}

// BidMatrix 把每架无人机最近一次广播的消息拼成 n_agents × n_targets 的出价矩阵。
// 消息长度不足的部分按 0 处理。
func BidMatrix(messages [][]float64, nTargets int) *mat.Dense {
	if len(messages) == 0 || nTargets == 0 {
		return &mat.Dense{}
	}
	m := mat.NewDense(len(messages), nTargets, nil)
	for i, msg := range messages {
		for j := 0; j < nTargets && j < len(msg); j++ {
			m.Set(i, j, msg[j])
		}
	}
	return m
}

// candidate 缓存某个目标当前可用无人机中出价最高的那一个。
type candidate struct {
	agent int
	bid   float64
}

// Resolve 执行贪心拍卖：每一轮在所有 (未分配目标, 空闲无人机) 中选出严格最大的出价，
// 相同出价时按目标优先、无人机次之的下标顺序取第一个。
// 当无人机数量少于目标数量时，多出来的目标保持 Unassigned。
func Resolve(bids mat.Matrix) Assignment {
	nAgents, nTargets := dims(bids)
	order := make(Assignment, nTargets)
	for t := range order {
		order[t] = Unassigned
	}
	if nAgents == 0 || nTargets == 0 {
		return order
	}

	agentFree := make([]bool, nAgents)
	for i := range agentFree {
		agentFree[i] = true
	}
	targetOpen := make([]bool, nTargets)
	for t := range targetOpen {
		targetOpen[t] = true
	}

	best := make([]candidate, nTargets)
	for t := 0; t < nTargets; t++ {
		best[t] = bestAgent(bids, t, agentFree)
	}

	rounds := nTargets
	if nAgents < rounds {
		rounds = nAgents
	}
	for r := 0; r < rounds; r++ {
		winTarget := Unassigned
		winBid := math.Inf(-1)
		for t := 0; t < nTargets; t++ {
			if !targetOpen[t] || best[t].agent == Unassigned {
				continue
			}
			if best[t].bid > winBid {
				winBid = best[t].bid
				winTarget = t
			}
		}
		if winTarget == Unassigned {
			// 剩余的出价全部不大于 -Inf（或为 NaN），没有可选的配对
			break
		}

		winAgent := best[winTarget].agent
		order[winTarget] = winAgent
		targetOpen[winTarget] = false
		agentFree[winAgent] = false

		// 只有缓存了刚被占用无人机的目标需要重新计算
		for t := 0; t < nTargets; t++ {
			if targetOpen[t] && best[t].agent == winAgent {
				best[t] = bestAgent(bids, t, agentFree)
			}
		}
	}
	return order
}

// bestAgent 返回目标 t 在空闲无人机中的最高出价者，同价取下标最小者。
func bestAgent(bids mat.Matrix, t int, agentFree []bool) candidate {
	c := candidate{agent: Unassigned, bid: math.Inf(-1)}
	for a, free := range agentFree {
		if !free {
			continue
		}
		if b := bids.At(a, t); b > c.bid {
			c = candidate{agent: a, bid: b}
		}
	}
	return c
}

func dims(m mat.Matrix) (int, int) {
	if m == nil {
		return 0, 0
	}
	if d, ok := m.(*mat.Dense); ok && d.IsEmpty() {
		return 0, 0
	}
	return m.Dims()
}
