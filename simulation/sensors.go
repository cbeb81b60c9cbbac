package simulation

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// SemanticTriple 是语义传感器对一个实体的描述: (距离, 相对角度, 是否被抓取)。
// 距离已按 SemanticMaxRange 归一化。
type SemanticTriple [3]float64

// LidarValues 返回 LidarRays 条射线的测距结果，覆盖以机头为中心的 360°。
// 只有墙体和地图边界会遮挡射线。
func (p *Playground) LidarValues(d *Drone) []float64 {
	out := make([]float64, LidarRays)
	step := 2 * math.Pi / float64(LidarRays-1)
	for k := range out {
		theta := d.angle - math.Pi + float64(k)*step
		dir := orb.Point{math.Cos(theta), math.Sin(theta)}
		out[k] = p.castRay(d.position, dir)
	}
	return out
}

func (p *Playground) castRay(origin, dir orb.Point) float64 {
	best := LidarMaxRange
	// 从内部射向边界，取出射距离
	if _, exit, ok := raySlab(origin, dir, p.bounds); ok && exit < best {
		best = exit
	}
	for _, w := range p.Map.Walls {
		if enter, _, ok := raySlab(origin, dir, w); ok && enter >= 0 && enter < best {
			best = enter
		}
	}
	return best
}

// raySlab 用 slab 方法求射线与轴对齐矩形的进入/离开参数。
func raySlab(origin, dir orb.Point, b orb.Bound) (float64, float64, bool) {
	tMin, tMax := math.Inf(-1), math.Inf(1)
	for axis := 0; axis < 2; axis++ {
		if math.Abs(dir[axis]) < 1e-12 {
			if origin[axis] < b.Min[axis] || origin[axis] > b.Max[axis] {
				return 0, 0, false
			}
			continue
		}
		t1 := (b.Min[axis] - origin[axis]) / dir[axis]
		t2 := (b.Max[axis] - origin[axis]) / dir[axis]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
	}
	if tMax < tMin || tMax < 0 {
		return 0, 0, false
	}
	return tMin, tMax, true
}

// ProcessSpecialSemantic 返回救援中心、可见伤员 (按距离排序) 和其他无人机的语义描述。
// 超出 SemanticMaxRange 的实体不可见，对应位置由调用方补零。
func (p *Playground) ProcessSpecialSemantic(d *Drone) (center SemanticTriple, humans, drones []SemanticTriple) {
	if dist := planar.Distance(d.position, p.Map.RescueCenter); dist <= SemanticMaxRange {
		center = SemanticTriple{dist / SemanticMaxRange, angleTo(d, p.Map.RescueCenter), 0}
	}

	type seen struct {
		dist   float64
		triple SemanticTriple
	}
	var people []seen
	for _, person := range p.persons {
		if person.Rescued {
			continue
		}
		dist := planar.Distance(d.position, person.Position)
		if dist > SemanticMaxRange {
			continue
		}
		grasped := 0.0
		if len(person.GraspedBy) > 0 {
			grasped = 1
		}
		people = append(people, seen{dist, SemanticTriple{dist / SemanticMaxRange, angleTo(d, person.Position), grasped}})
	}
	sort.SliceStable(people, func(i, j int) bool { return people[i].dist < people[j].dist })
	for _, s := range people {
		humans = append(humans, s.triple)
	}

	for _, other := range p.drones {
		if other.ID == d.ID {
			continue
		}
		dist := planar.Distance(d.position, other.position)
		if dist > SemanticMaxRange {
			continue
		}
		grasping := 0.0
		if len(other.grasped) > 0 {
			grasping = 1
		}
		drones = append(drones, SemanticTriple{dist / SemanticMaxRange, angleTo(d, other.position), grasping})
	}
	return center, humans, drones
}
