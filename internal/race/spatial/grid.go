// Package spatial holds the broad-phase structures used by the race core
// and the queue that hands commands to the simulation goroutine.
//
// Structures store integer indices into caller-owned slices and reuse
// their buffers between ticks.
package spatial

import (
	"math"
)

// Grid buckets static or slow-moving objects into square cells on the
// ground plane. The covered area starts at (minX, minZ); positions outside
// it clamp into the border cells.
type Grid struct {
	minX, minZ  float64
	cellSize    float64
	invCellSize float64
	cols, rows  int
	cells       [][]uint32 // row-major: cells[row*cols+col]
	scratch     []uint32
	seen        []uint32 // dedup marks for multi-cell inserts
	stamp       uint32
}

// NewGrid covers [minX, maxX] x [minZ, maxZ]. cellSize should be near the
// largest query radius.
func NewGrid(minX, minZ, maxX, maxZ, cellSize float64, maxEntities int) *Grid {
	if cellSize <= 0 {
		cellSize = 1
	}
	cols := int(math.Ceil((maxX - minX) / cellSize))
	rows := int(math.Ceil((maxZ - minZ) / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]uint32, cols*rows)
	avgPerCell := maxEntities / len(cells)
	if avgPerCell < 4 {
		avgPerCell = 4
	}
	for i := range cells {
		cells[i] = make([]uint32, 0, avgPerCell)
	}

	return &Grid{
		minX:        minX,
		minZ:        minZ,
		cellSize:    cellSize,
		invCellSize: 1 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       cells,
		scratch:     make([]uint32, 0, 64),
		seen:        make([]uint32, maxEntities),
	}
}

// Clear empties every cell, keeping capacity.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

func (g *Grid) col(x float64) int {
	c := int(math.Floor((x - g.minX) * g.invCellSize))
	if c < 0 {
		return 0
	}
	if c >= g.cols {
		return g.cols - 1
	}
	return c
}

func (g *Grid) row(z float64) int {
	r := int(math.Floor((z - g.minZ) * g.invCellSize))
	if r < 0 {
		return 0
	}
	if r >= g.rows {
		return g.rows - 1
	}
	return r
}

// Insert adds id at a point.
func (g *Grid) Insert(id uint32, x, z float64) {
	idx := g.row(z)*g.cols + g.col(x)
	g.cells[idx] = append(g.cells[idx], id)
}

// InsertCircle adds id to every cell a circle touches, so large objects
// are found by queries centred in neighbouring cells.
func (g *Grid) InsertCircle(id uint32, x, z, radius float64) {
	for row := g.row(z - radius); row <= g.row(z+radius); row++ {
		for col := g.col(x - radius); col <= g.col(x+radius); col++ {
			idx := row*g.cols + col
			g.cells[idx] = append(g.cells[idx], id)
		}
	}
}

// QueryRadius returns candidate ids near (x, z), each at most once.
// Candidates may lie outside the radius; callers do the exact test.
// The slice is reused by the next call.
func (g *Grid) QueryRadius(x, z, radius float64) []uint32 {
	g.scratch = g.scratch[:0]
	g.stamp++
	if g.stamp == 0 {
		for i := range g.seen {
			g.seen[i] = 0
		}
		g.stamp = 1
	}

	for row := g.row(z - radius); row <= g.row(z+radius); row++ {
		for col := g.col(x - radius); col <= g.col(x+radius); col++ {
			for _, id := range g.cells[row*g.cols+col] {
				if int(id) < len(g.seen) {
					if g.seen[id] == g.stamp {
						continue
					}
					g.seen[id] = g.stamp
				}
				g.scratch = append(g.scratch, id)
			}
		}
	}
	return g.scratch
}

// GridStats summarises occupancy for debugging.
type GridStats struct {
	TotalCells     int     `json:"totalCells"`
	NonEmptyCells  int     `json:"nonEmptyCells"`
	TotalEntries   int     `json:"totalEntries"`
	MaxInCell      int     `json:"maxInCell"`
	AvgPerNonEmpty float64 `json:"avgPerNonEmpty"`
}

func (g *Grid) Stats() GridStats {
	var total, maxIn, nonEmpty int
	for _, cell := range g.cells {
		n := len(cell)
		total += n
		if n > maxIn {
			maxIn = n
		}
		if n > 0 {
			nonEmpty++
		}
	}
	avg := 0.0
	if nonEmpty > 0 {
		avg = float64(total) / float64(nonEmpty)
	}
	return GridStats{
		TotalCells:     len(g.cells),
		NonEmptyCells:  nonEmpty,
		TotalEntries:   total,
		MaxInCell:      maxIn,
		AvgPerNonEmpty: avg,
	}
}

// Dimensions returns the grid layout.
func (g *Grid) Dimensions() (cols, rows int, cellSize float64) {
	return g.cols, g.rows, g.cellSize
}
