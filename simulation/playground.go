package simulation

import (
	"log"
	"math"
	"math/rand/v2"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Playground 是一次 episode 的完整仿真上下文。
// 每次 Reset 环境都会重新创建一个 Playground，不存在全局共享状态。
type Playground struct {
	Map      *Map
	drones   []*Drone
	persons  []*WoundedPerson
	explored *ExploredMap
	comms    *CommunicationSystem
	rng      *rand.Rand
	bounds   orb.Bound

	subSteps int
}

// NewPlayground 根据地图创建仿真上下文，并放置无人机和伤员。
func NewPlayground(m *Map, nTargets int, seed uint64) *Playground {
	p := &Playground{
		Map:      m,
		explored: NewExploredMap(m.Bounds(), ExploreCellSize),
		comms:    NewCommunicationSystem(len(m.DroneSpawns), nTargets),
		rng:      rand.New(rand.NewPCG(seed, seed^0x5eed)),
		bounds:   m.Bounds(),
	}
	p.Reset()
	return p
}

// Reset 将无人机放回出生点，重新放置伤员，清空探索地图和广播消息。
func (p *Playground) Reset() {
	p.subSteps = 0
	p.drones = make([]*Drone, len(p.Map.DroneSpawns))
	for i, pos := range p.Map.DroneSpawns {
		p.drones[i] = newDrone(i, pos)
	}
	p.persons = make([]*WoundedPerson, len(p.Map.PersonSpawns))
	inner := p.bounds.Pad(-DroneRadius)
	for i, pos := range p.Map.PersonSpawns {
		jittered := orb.Point{
			clamp(pos[0]+(p.rng.Float64()*2-1)*PersonJitter, inner.Min[0], inner.Max[0]),
			clamp(pos[1]+(p.rng.Float64()*2-1)*PersonJitter, inner.Min[1], inner.Max[1]),
		}
		p.persons[i] = &WoundedPerson{ID: i, Position: jittered}
	}
	p.comms.Reset(len(p.drones))
	p.explored.Reset()
	p.explored.Update(p.dronePositions(), ExploreRadius)
}

// Drones 返回所有无人机，下标即无人机编号。
func (p *Playground) Drones() []*Drone { return p.drones }

// WoundedPersons 返回所有伤员，包括已获救的。
func (p *Playground) WoundedPersons() []*WoundedPerson { return p.persons }

// ExploredMap 返回本 episode 的探索地图。
func (p *Playground) ExploredMap() *ExploredMap { return p.explored }

// Comms 返回无人机之间的广播信道。
func (p *Playground) Comms() *CommunicationSystem { return p.comms }

// SubSteps 返回自 Reset 以来执行的物理子步数量。
func (p *Playground) SubSteps() int { return p.subSteps }

// DistanceToRescue 返回伤员到救援区中心的距离。
func (p *Playground) DistanceToRescue(person int) float64 {
	return planar.Distance(p.persons[person].Position, p.Map.RescueCenter)
}

// Step 推进一个物理子步。commands 按无人机下标对应，缺失的无人机保持静止。
// 所有伤员都获救后返回 true。
func (p *Playground) Step(commands []Command) bool {
	p.subSteps++
	for i, d := range p.drones {
		var cmd Command
		if i < len(commands) {
			cmd = commands[i]
		}
		d.collided = false
		d.reward = 0
		p.move(d, cmd)
		p.grasp(d, cmd.Grasper)
	}

	p.carry()

	for _, d := range p.drones {
		d.touching = p.touchesPerson(d)
	}

	p.deliver()
	p.explored.Update(p.dronePositions(), ExploreRadius)
	return p.allRescued()
}

func (p *Playground) move(d *Drone, cmd Command) {
	d.angle = wrapAngle(d.angle + clamp(cmd.Rotation, -1, 1)*AngularSpeed)
	vel := d.bodyToWorld(clamp(cmd.Forward, -1, 1), clamp(cmd.Lateral, -1, 1))
	next := orb.Point{d.position[0] + vel[0], d.position[1] + vel[1]}
	if p.blocked(next) {
		d.collided = true
		d.velocity = orb.Point{}
		return
	}
	d.velocity = vel
	d.position = next
}

// blocked 检查无人机以 next 为圆心时是否越界或与墙体重叠。
func (p *Playground) blocked(next orb.Point) bool { return !p.Map.Free(next) }

func (p *Playground) grasp(d *Drone, closed bool) {
	if !closed {
		for _, idx := range d.grasped {
			p.persons[idx].dropGrasper(d.ID)
		}
		d.release()
		d.grasping = false
		return
	}
	d.grasping = true
	if len(d.grasped) > 0 {
		return
	}
	nearest, best := -1, GraspRadius
	for i, person := range p.persons {
		if person.Rescued {
			continue
		}
		if dist := planar.Distance(d.position, person.Position); dist <= best {
			nearest, best = i, dist
		}
	}
	if nearest < 0 {
		return
	}
	person := p.persons[nearest]
	if !person.isGraspedBy(d.ID) {
		person.GraspedBy = append(person.GraspedBy, d.ID)
	}
	d.grasped = append(d.grasped, nearest)
}

// carry 让被抓住的伤员跟随第一个抓住它的无人机。
func (p *Playground) carry() {
	for _, person := range p.persons {
		if person.Rescued || len(person.GraspedBy) == 0 {
			continue
		}
		person.Position = p.drones[person.GraspedBy[0]].position
	}
}

func (p *Playground) touchesPerson(d *Drone) bool {
	for _, person := range p.persons {
		if person.Rescued {
			continue
		}
		if planar.Distance(d.position, person.Position) <= TouchRadius {
			return true
		}
	}
	return false
}

// deliver 处理被送进救援区的伤员：第一个抓取者获得救援信号，所有抓取者松开。
func (p *Playground) deliver() {
	for _, person := range p.persons {
		if person.Rescued || len(person.GraspedBy) == 0 {
			continue
		}
		if planar.Distance(person.Position, p.Map.RescueCenter) > p.Map.RescueRadius {
			continue
		}
		carrier := p.drones[person.GraspedBy[0]]
		carrier.reward++
		for _, id := range person.GraspedBy {
			d := p.drones[id]
			for i, idx := range d.grasped {
				if idx == person.ID {
					d.grasped = append(d.grasped[:i], d.grasped[i+1:]...)
					break
				}
			}
		}
		person.GraspedBy = nil
		person.Rescued = true
		log.Printf("🚑 [无人机 %d] 已将伤员 %d 送达救援区 (子步 %d)", carrier.ID, person.ID, p.subSteps)
	}
}

func (p *Playground) allRescued() bool {
	for _, person := range p.persons {
		if !person.Rescued {
			return false
		}
	}
	return true
}

func (p *Playground) dronePositions() []orb.Point {
	out := make([]orb.Point, len(p.drones))
	for i, d := range p.drones {
		out[i] = d.position
	}
	return out
}

// angleTo 返回从无人机朝向看向 target 的相对角度。
func angleTo(d *Drone, target orb.Point) float64 {
	dx, dy := target[0]-d.position[0], target[1]-d.position[1]
	return wrapAngle(math.Atan2(dy, dx) - d.angle)
}
