package simulation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
)

// ErrInvalidMap 表示请求了一个未注册的地图名称。
var ErrInvalidMap = errors.New("invalid map name")

// Map 描述一张搜救地图的静态布局。坐标以地图中心为原点。
type Map struct {
	Name         string
	SizeArea     [2]float64 // 宽, 高
	RescueCenter orb.Point
	RescueRadius float64
	Walls        []orb.Bound
	PersonSpawns []orb.Point
	DroneSpawns  []orb.Point
}

// Bounds 返回地图的外边界。
func (m *Map) Bounds() orb.Bound {
	hw, hh := m.SizeArea[0]/2, m.SizeArea[1]/2
	return orb.Bound{Min: orb.Point{-hw, -hh}, Max: orb.Point{hw, hh}}
}

// Free 报告半径为 DroneRadius 的无人机以 p 为圆心时是否既在地图内又不与墙体重叠。
func (m *Map) Free(p orb.Point) bool {
	if !m.Bounds().Pad(-DroneRadius).Contains(p) {
		return false
	}
	for _, w := range m.Walls {
		if w.Pad(DroneRadius).Contains(p) {
			return false
		}
	}
	return true
}

// NumberWoundedPersons 返回地图上伤员的数量。
func (m *Map) NumberWoundedPersons() int { return len(m.PersonSpawns) }

type mapBuilder func(numDrones, numPersons int, size float64) *Map

// mapRegistry 保存所有可用的地图
var mapRegistry = map[string]mapBuilder{
	"Easy":                newEasyMap,
	"MyMapIntermediate01": newIntermediate01Map,
}

// MapNames 返回按字母排序的已注册地图名。
func MapNames() []string {
	names := make([]string, 0, len(mapRegistry))
	for name := range mapRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewMap 按名称构建地图，未知名称返回 ErrInvalidMap。
func NewMap(name string, numDrones, numPersons int, size float64) (*Map, error) {
	build, ok := mapRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrInvalidMap, name, MapNames())
	}
	if numDrones <= 0 || numPersons <= 0 {
		return nil, fmt.Errorf("map %s: need at least one drone and one person, got %d/%d", name, numDrones, numPersons)
	}
	if size <= 0 {
		return nil, fmt.Errorf("map %s: size must be positive, got %v", name, size)
	}
	m := build(numDrones, numPersons, size)
	if len(m.DroneSpawns) < numDrones {
		return nil, fmt.Errorf("map %s: room for only %d drones near the spawn, got %d", name, len(m.DroneSpawns), numDrones)
	}
	return m, nil
}

// newEasyMap 是一个没有内部障碍的开阔场地。
func newEasyMap(numDrones, numPersons int, size float64) *Map {
	m := &Map{
		Name:         "Easy",
		SizeArea:     [2]float64{size, size},
		RescueCenter: orb.Point{-0.35 * size, 0.35 * size},
		RescueRadius: 0.08 * size,
	}
	personSlots := []orb.Point{
		{0.30, -0.30}, {0.25, 0.20}, {-0.10, -0.35}, {0.38, 0.05}, {0.05, 0.30}, {-0.30, -0.10},
	}
	m.PersonSpawns = spread(personSlots, numPersons, size)
	m.DroneSpawns = droneGrid(m, orb.Point{-0.30 * size, 0.20 * size}, numDrones, 2.5*DroneRadius)
	return m
}

// newIntermediate01Map 在场地中间放置两堵墙，伤员分布在墙后。
func newIntermediate01Map(numDrones, numPersons int, size float64) *Map {
	w, h := 1.5*size, size
	m := &Map{
		Name:         "MyMapIntermediate01",
		SizeArea:     [2]float64{w, h},
		RescueCenter: orb.Point{-0.40 * w, -0.35 * h},
		RescueRadius: 0.08 * h,
		Walls: []orb.Bound{
			{Min: orb.Point{-0.10 * w, -0.50 * h}, Max: orb.Point{-0.07 * w, 0.15 * h}},
			{Min: orb.Point{0.15 * w, -0.15 * h}, Max: orb.Point{0.18 * w, 0.50 * h}},
		},
	}
	personSlots := []orb.Point{
		{0.35, 0.30}, {0.05, -0.30}, {0.40, -0.35}, {0.05, 0.35}, {0.30, 0.00}, {-0.30, 0.35},
	}
	m.PersonSpawns = spreadRect(personSlots, numPersons, w, h)
	m.DroneSpawns = droneGrid(m, orb.Point{-0.40 * w, -0.15 * h}, numDrones, 2.5*DroneRadius)
	return m
}

// spread 把单位坐标槽位按 size 缩放，数量超过槽位时在原槽位旁错开。
func spread(slots []orb.Point, n int, size float64) []orb.Point {
	return spreadRect(slots, n, size, size)
}

func spreadRect(slots []orb.Point, n int, w, h float64) []orb.Point {
	out := make([]orb.Point, n)
	for i := 0; i < n; i++ {
		s := slots[i%len(slots)]
		shift := float64(i/len(slots)) * 3 * GraspRadius
		out[i] = orb.Point{s[0]*w + shift, s[1]*h - shift}
	}
	return out
}

// droneGrid 从 start 开始沿 +x 逐个放置无人机，遇到墙体或边界就换行。
// 行按 start 所在行、上一行、下一行、再上一行……的顺序展开，
// 所以无人机都留在出生点所在的区域。放不下时返回的点数少于 n。
func droneGrid(m *Map, start orb.Point, n int, gap float64) []orb.Point {
	out := make([]orb.Point, 0, n)
	inner := m.Bounds().Pad(-DroneRadius)
	for r := 0; len(out) < n; r++ {
		// r = 0, 1, 2, 3, 4 ... 对应行偏移 0, +1, -1, +2, -2 ...
		k := float64((r+1)/2) * gap
		if start[1]+k > inner.Max[1] && start[1]-k < inner.Min[1] {
			break // 上下两侧都已越界
		}
		y := start[1] + k
		if r%2 == 0 {
			y = start[1] - k
		}
		for c := 0; len(out) < n; c++ {
			p := orb.Point{start[0] + float64(c)*gap, y}
			if !m.Free(p) {
				break
			}
			out = append(out, p)
		}
	}
	return out
}
