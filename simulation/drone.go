package simulation

import (
	"math"

	"github.com/paulmach/orb"
)

// Command 是一个物理子步内施加给无人机的控制量。
type Command struct {
	Forward  float64 // [-1, 1]
	Lateral  float64 // [-1, 1]
	Rotation float64 // [-1, 1]
	Grasper  bool
}

// Drone 是搜救无人机，由 Playground 持有并在每个子步更新。
type Drone struct {
	ID int

	// --- 运动状态 ---
	position orb.Point
	velocity orb.Point
	angle    float64

	// --- 交互状态 ---
	grasping bool  // 抓取器是否处于闭合状态
	grasped  []int // 当前抓住的伤员下标
	collided bool  // 本子步是否撞到墙或边界
	touching bool  // 本子步是否接触到伤员
	reward   int   // 本子步送达救援区的伤员数量
}

func newDrone(id int, pos orb.Point) *Drone {
	return &Drone{
		ID:       id,
		position: pos,
	}
}

// TruePosition 返回无人机的真实位置。
func (d *Drone) TruePosition() orb.Point { return d.position }

// TrueAngle 返回无人机朝向，范围 [-π, π]。
func (d *Drone) TrueAngle() float64 { return d.angle }

// MeasuredVelocity 返回上一个子步的速度向量。
func (d *Drone) MeasuredVelocity() orb.Point { return d.velocity }

// IsCollided 报告最近一个子步是否发生碰撞。
func (d *Drone) IsCollided() bool { return d.collided }

// TouchHuman 报告最近一个子步是否接触到伤员。
func (d *Drone) TouchHuman() bool { return d.touching }

// GraspedEntities 返回当前抓住的伤员下标。
func (d *Drone) GraspedEntities() []int {
	out := make([]int, len(d.grasped))
	copy(out, d.grasped)
	return out
}

// Reward 返回最近一个子步的救援信号，非零表示有伤员被送达。
func (d *Drone) Reward() int { return d.reward }

func (d *Drone) release() {
	d.grasped = d.grasped[:0]
}

// bodyToWorld 把机体坐标系下的 (前进, 横移) 转换为世界坐标系速度。
func (d *Drone) bodyToWorld(forward, lateral float64) orb.Point {
	c, s := math.Cos(d.angle), math.Sin(d.angle)
	return orb.Point{
		(forward*c - lateral*s) * LinearSpeed,
		(forward*s + lateral*c) * LinearSpeed,
	}
}

// WoundedPerson 是等待救援的伤员。
type WoundedPerson struct {
	ID        int
	Position  orb.Point
	GraspedBy []int // 正在抓取的无人机下标，多于一个即为冲突
	Rescued   bool
}

func (p *WoundedPerson) isGraspedBy(drone int) bool {
	for _, d := range p.GraspedBy {
		if d == drone {
			return true
		}
	}
	return false
}

func (p *WoundedPerson) dropGrasper(drone int) {
	for i, d := range p.GraspedBy {
		if d == drone {
			p.GraspedBy = append(p.GraspedBy[:i], p.GraspedBy[i+1:]...)
			return
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
