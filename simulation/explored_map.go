package simulation

import (
	"math"

	"github.com/paulmach/orb"
)

// ExploredMap 把地图划分为网格，记录被无人机探索过的格子。
type ExploredMap struct {
	bounds   orb.Bound
	cellSize float64
	cols     int
	rows     int
	seen     []bool
	count    int
}

// NewExploredMap 是 ExploredMap 的构造函数。
func NewExploredMap(bounds orb.Bound, cellSize float64) *ExploredMap {
	cols := int(math.Ceil((bounds.Max[0] - bounds.Min[0]) / cellSize))
	rows := int(math.Ceil((bounds.Max[1] - bounds.Min[1]) / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &ExploredMap{
		bounds:   bounds,
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		seen:     make([]bool, cols*rows),
	}
}

// Reset 清空所有探索记录。
func (e *ExploredMap) Reset() {
	for i := range e.seen {
		e.seen[i] = false
	}
	e.count = 0
}

// Update 将每个位置周围 radius 范围内的格子标记为已探索。
func (e *ExploredMap) Update(positions []orb.Point, radius float64) {
	span := int(math.Ceil(radius / e.cellSize))
	for _, pos := range positions {
		cx := int((pos[0] - e.bounds.Min[0]) / e.cellSize)
		cy := int((pos[1] - e.bounds.Min[1]) / e.cellSize)
		for y := cy - span; y <= cy+span; y++ {
			if y < 0 || y >= e.rows {
				continue
			}
			for x := cx - span; x <= cx+span; x++ {
				if x < 0 || x >= e.cols {
					continue
				}
				if !e.withinRadius(pos, x, y, radius) {
					continue
				}
				idx := y*e.cols + x
				if !e.seen[idx] {
					e.seen[idx] = true
					e.count++
				}
			}
		}
	}
}

func (e *ExploredMap) withinRadius(pos orb.Point, x, y int, radius float64) bool {
	cx := e.bounds.Min[0] + (float64(x)+0.5)*e.cellSize
	cy := e.bounds.Min[1] + (float64(y)+0.5)*e.cellSize
	dx, dy := cx-pos[0], cy-pos[1]
	return dx*dx+dy*dy <= radius*radius
}

// Score 返回已探索格子的比例，范围 [0, 1]。
func (e *ExploredMap) Score() float64 {
	return float64(e.count) / float64(len(e.seen))
}
