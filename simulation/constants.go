// C:/workspace/go/SwarmRL/simulation/constants.go
package simulation

import "math"

// 全局仿真常量
const (
	// 运动学参数 (每个物理子步)
	LinearSpeed  = 4.0          // 满油门时每个子步的位移
	AngularSpeed = math.Pi / 24 // 满舵时每个子步的转角
	DroneRadius  = 8.0

	// 抓取与接触
	GraspRadius = 18.0 // 抓取器可以抓住伤员的距离
	TouchRadius = 14.0 // 视为"接触伤员"的距离

	// 传感器
	LidarRays        = 181 // 360° 激光雷达，最后一条与第一条重合
	LidarMaxRange    = 300.0
	SemanticMaxRange = 200.0

	// 探索地图
	ExploreCellSize = 10.0
	ExploreRadius   = 60.0

	// 伤员刷新位置的随机扰动
	PersonJitter = 6.0
)
