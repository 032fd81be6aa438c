package track

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/peterstace/simplefeatures/geom"
)

// File is the on-disk track description.
//
// The centerline is a WKT LINESTRING. WKT X/Y map to world X/Z; a WKT Z
// ordinate, when present, is the point height, otherwise the ground
// height is used.
type File struct {
	Name        string       `json:"name"`
	Loop        bool         `json:"loop"`
	HalfWidth   float64      `json:"halfWidth"`
	Path        string       `json:"path"`
	Checkpoints []int        `json:"checkpoints"`
	Ramps       []Ramp       `json:"ramps"`
	BoostPads   []BoostPad   `json:"boostPads"`
	ItemAnchors []ItemAnchor `json:"itemAnchors"`
	Ground      Ground       `json:"ground"`
	Obstacles   []Obstacle   `json:"obstacles"`
}

// Ground describes terrain as a base height plus cosine bumps.
type Ground struct {
	Base  float64 `json:"base"`
	Bumps []Bump  `json:"bumps"`
}

// Bump is a smooth hill (positive height) or dip (negative height).
type Bump struct {
	X      float64 `json:"x"`
	Z      float64 `json:"z"`
	Radius float64 `json:"radius"`
	Height float64 `json:"height"`
}

// HeightFunc builds the terrain function.
func (g Ground) HeightFunc() HeightFunc {
	bumps := append([]Bump(nil), g.Bumps...)
	base := g.Base
	return func(x, z float64) float64 {
		h := base
		for _, b := range bumps {
			if b.Radius <= 0 {
				continue
			}
			d := math.Hypot(x-b.X, z-b.Z)
			if d < b.Radius {
				h += b.Height * 0.5 * (1 + math.Cos(math.Pi*d/b.Radius))
			}
		}
		return h
	}
}

// LoadFile reads and builds a track from a JSON file.
func LoadFile(path string) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode track file %s: %w", path, err)
	}
	return f.Build()
}

// Build converts the file description into a Track.
func (f File) Build() (*Track, error) {
	height := f.Ground.HeightFunc()
	points, err := ParsePath(f.Path, height)
	if err != nil {
		return nil, err
	}
	return Build(Definition{
		Name:              f.Name,
		Points:            points,
		Height:            height,
		Loop:              f.Loop,
		HalfWidth:         f.HalfWidth,
		CheckpointIndices: f.Checkpoints,
		Ramps:             f.Ramps,
		BoostPads:         f.BoostPads,
		ItemAnchors:       f.ItemAnchors,
		Obstacles:         f.Obstacles,
	})
}

// ParsePath decodes a WKT LINESTRING into world points.
func ParsePath(wkt string, height HeightFunc) ([]Vec3, error) {
	g, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("parse track path: %w", err)
	}
	if !g.IsLineString() {
		return nil, fmt.Errorf("parse track path: expected LINESTRING, got %s", g.Type())
	}

	seq := g.MustAsLineString().Coordinates()
	has3D := seq.CoordinatesType().Is3D()
	points := make([]Vec3, 0, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		c := seq.Get(i)
		x, z := c.XY.X, c.XY.Y
		y := 0.0
		if has3D {
			y = c.Z
		} else if height != nil {
			y = height(x, z)
		}
		points = append(points, Vec3{x, y, z})
	}
	if len(points) < 2 {
		return nil, ErrEmptyPath
	}
	return points, nil
}
