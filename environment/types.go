package environment

import (
	"github.com/paulmach/orb"

	"github.com/adriengoldszal/SwarmRL/market"
)

// StepResult 封装了所有无人机执行一个逻辑步后的完整结果。
type StepResult struct {
	Observations [][]float32
	Rewards      []float64 // 开启共享奖励时每个元素都等于 SharedReward
	SharedReward float64
	Dones        []bool // 标志着一个 episode 是否结束
	Terminated   bool   // 所有伤员均已获救
	Truncated    bool   // 步数预算用尽
	Info         Info
}

// Info 是每一步附带的诊断信息。
type Info struct {
	MapName          string            `json:"map_name"`
	WoundedPeoplePos []orb.Point       `json:"wounded_people_pos"`
	RescueZone       orb.Point         `json:"rescue_zone"`
	DronesTruePos    []orb.Point       `json:"drones_true_pos"`
	ConflictCount    []int             `json:"conflict_count"`
	Assignment       market.Assignment `json:"assignment"`
	Step             int               `json:"step"`
	Episode          int               `json:"episode"`
	RescuedCount     int               `json:"rescued_count"`
}

// StepRecord 是提供给数据收集器的单步记录。
type StepRecord struct {
	Episode          int               `json:"episode"`
	Step             int               `json:"step"`
	MapName          string            `json:"map_name"`
	Bids             [][]float64       `json:"bids"`
	Assignment       market.Assignment `json:"assignment"`
	Individual       []float64         `json:"individual"`
	Rewards          []float64         `json:"rewards"`
	SharedReward     float64           `json:"shared_reward"`
	DistanceDelta    float64           `json:"distance_delta"`
	ExplorationDelta float64           `json:"exploration_delta"`
	ConflictCount    []int             `json:"conflict_count"`
	RescuedCount     int               `json:"rescued_count"`
	Terminated       bool              `json:"terminated"`
	Truncated        bool              `json:"truncated"`
}

// EpisodeRecord 是一个 episode 结束时的汇总。
type EpisodeRecord struct {
	Episode    int     `json:"episode"`
	MapName    string  `json:"map_name"`
	NAgents    int     `json:"n_agents"`
	NTargets   int     `json:"n_targets"`
	Steps      int     `json:"steps"`
	Return     float64 `json:"return"` // 无人机 0 的累计奖励
	Rescued    int     `json:"rescued"`
	Conflicts  int     `json:"conflicts"`
	Terminated bool    `json:"terminated"`
	Truncated  bool    `json:"truncated"`
}

// StepObserver 接收环境产生的记录，例如 Excel 报告或轨迹日志。
type StepObserver interface {
	CollectStep(rec StepRecord)
	CollectEpisode(rec EpisodeRecord)
}

// Info 返回当前状态的诊断信息。
func (e *Env) Info() Info {
	info := Info{
		MapName:       e.cfg.MapName,
		ConflictCount: append([]int(nil), e.lastConflicts...),
		Assignment:    e.lastAssignment.Clone(),
		Step:          e.currentStep,
		Episode:       e.epCount,
		RescuedCount:  e.episodeRescued,
	}
	if e.pg == nil {
		return info
	}
	info.RescueZone = e.pg.Map.RescueCenter
	for _, p := range e.pg.WoundedPersons() {
		info.WoundedPeoplePos = append(info.WoundedPeoplePos, p.Position)
	}
	for _, d := range e.pg.Drones() {
		info.DronesTruePos = append(info.DronesTruePos, d.TruePosition())
	}
	return info
}

func (e *Env) notifyStep(bids [][]float64, o market.StepOutcome, res *StepResult) {
	if len(e.observers) == 0 {
		return
	}
	rec := StepRecord{
		Episode:          e.epCount,
		Step:             e.currentStep,
		MapName:          e.cfg.MapName,
		Bids:             bids,
		Assignment:       res.Info.Assignment,
		Individual:       append([]float64(nil), o.Individual...),
		Rewards:          res.Rewards,
		SharedReward:     res.SharedReward,
		DistanceDelta:    o.DistanceDelta,
		ExplorationDelta: o.ExplorationDelta,
		ConflictCount:    res.Info.ConflictCount,
		RescuedCount:     e.episodeRescued,
		Terminated:       res.Terminated,
		Truncated:        res.Truncated,
	}
	for _, obs := range e.observers {
		obs.CollectStep(rec)
	}
}

func (e *Env) notifyEpisode(terminated, truncated bool) {
	if len(e.observers) == 0 {
		return
	}
	rec := EpisodeRecord{
		Episode:    e.epCount,
		MapName:    e.cfg.MapName,
		NAgents:    e.cfg.NAgents,
		NTargets:   e.cfg.NTargets,
		Steps:      e.currentStep,
		Return:     e.episodeReturn,
		Rescued:    e.episodeRescued,
		Conflicts:  e.episodeConflicts,
		Terminated: terminated,
		Truncated:  truncated,
	}
	for _, obs := range e.observers {
		obs.CollectEpisode(rec)
	}
}
