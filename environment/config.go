package environment

// Config 结构体用于封装所有可以从外部配置的环境参数。
// 这样做可以使 New 的函数签名保持整洁，并易于未来扩展。
type Config struct {
	MapName           string
	NAgents           int
	NTargets          int
	MapSize           float64
	MaxEpisodeSteps   int
	ContinuousAction  bool
	FixedStep         int // 每个逻辑步内执行的物理子步数量
	ShareReward       bool
	UseExpMap         bool // 是否加入探索分数增量奖励
	UseConflictReward bool
	Seed              uint64
	Verbose           bool // 打印每一步的出价、分配和奖励明细
}

// DefaultConfig 返回与训练脚本一致的默认参数。
func DefaultConfig() Config {
	return Config{
		MapName:          "Easy",
		NAgents:          2,
		NTargets:         2,
		MapSize:          300,
		MaxEpisodeSteps:  100,
		ContinuousAction: true,
		FixedStep:        20,
		ShareReward:      true,
	}
}
