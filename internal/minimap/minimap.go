// Package minimap draws a top-down view of a race as a PNG.
package minimap

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"kart-race/internal/race"
	"kart-race/internal/track"
)

const (
	DefaultSize = 512
	margin      = 24.0
	dotRadius   = 5.0
)

var (
	bgColor         = color.RGBA{12, 12, 28, 255}
	roadColor       = color.RGBA{60, 60, 78, 255}
	centerColor     = color.RGBA{90, 90, 110, 255}
	checkpointColor = color.RGBA{255, 255, 255, 160}
	startColor      = color.RGBA{83, 255, 69, 255}
	boostColor      = color.RGBA{0, 187, 249, 200}
	rampColor       = color.RGBA{255, 149, 0, 200}
	crateColor      = color.RGBA{254, 228, 64, 255}
	hazardColor     = color.RGBA{255, 62, 62, 220}
	projectileColor = color.RGBA{255, 255, 255, 255}
)

// Recorder is a race.PresentationSink that keeps the latest pose of each
// vehicle and renders them over the track on demand. UpdateVehicle runs on
// the simulation goroutine; WritePNG may be called from any goroutine.
type Recorder struct {
	track *track.Track
	size  int

	// world -> image transform
	minX, minZ, scale float64

	mu    sync.RWMutex
	poses map[string]race.Pose
}

// NewRecorder creates a recorder for a track. size <= 0 uses DefaultSize.
func NewRecorder(t *track.Track, size int) *Recorder {
	if size <= 0 {
		size = DefaultSize
	}
	r := &Recorder{track: t, size: size, poses: make(map[string]race.Pose)}
	r.fit()
	return r
}

// fit computes a uniform scale that keeps the whole road in the frame.
func (r *Recorder) fit() {
	minX, minZ := math.Inf(1), math.Inf(1)
	maxX, maxZ := math.Inf(-1), math.Inf(-1)
	for _, p := range r.track.Points {
		minX, maxX = math.Min(minX, p.X()), math.Max(maxX, p.X())
		minZ, maxZ = math.Min(minZ, p.Z()), math.Max(maxZ, p.Z())
	}
	hw := r.track.HalfWidth
	minX, minZ, maxX, maxZ = minX-hw, minZ-hw, maxX+hw, maxZ+hw

	span := math.Max(maxX-minX, maxZ-minZ)
	if span <= 0 {
		span = 1
	}
	r.minX, r.minZ = minX, minZ
	r.scale = (float64(r.size) - 2*margin) / span
}

// project maps world X/Z to image coordinates with +Z pointing up.
func (r *Recorder) project(x, z float64) (float64, float64) {
	px := margin + (x-r.minX)*r.scale
	py := float64(r.size) - margin - (z-r.minZ)*r.scale
	return px, py
}

// UpdateVehicle implements race.PresentationSink.
func (r *Recorder) UpdateVehicle(p race.Pose) {
	r.mu.Lock()
	r.poses[p.ID] = p
	r.mu.Unlock()
}

// Poses returns a copy of the recorded poses.
func (r *Recorder) Poses() map[string]race.Pose {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]race.Pose, len(r.poses))
	for id, p := range r.poses {
		out[id] = p
	}
	return out
}

// WritePNG renders the minimap and encodes it to w. snap is optional and
// adds vehicle colors, crates, hazards and projectiles.
func (r *Recorder) WritePNG(w io.Writer, snap *race.RaceSnapshot) error {
	dc := r.render(snap)
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode minimap: %w", err)
	}
	return nil
}

func (r *Recorder) render(snap *race.RaceSnapshot) *gg.Context {
	dc := gg.NewContext(r.size, r.size)

	dc.SetColor(bgColor)
	dc.DrawRectangle(0, 0, float64(r.size), float64(r.size))
	dc.Fill()

	r.drawRoad(dc)
	r.drawFeatures(dc)
	if snap != nil {
		r.drawItems(dc, snap)
	}
	r.drawVehicles(dc, snap)
	return dc
}

func (r *Recorder) tracePath(dc *gg.Context) {
	for i, p := range r.track.Points {
		x, y := r.project(p.X(), p.Z())
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	if r.track.Loop {
		dc.ClosePath()
	}
}

func (r *Recorder) drawRoad(dc *gg.Context) {
	dc.SetLineCapRound()
	dc.SetLineJoinRound()

	dc.SetColor(roadColor)
	dc.SetLineWidth(2 * r.track.HalfWidth * r.scale)
	r.tracePath(dc)
	dc.Stroke()

	dc.SetColor(centerColor)
	dc.SetLineWidth(1)
	r.tracePath(dc)
	dc.Stroke()

	dc.SetLineWidth(2)
	for i, cp := range r.track.Checkpoints {
		a := cp.Point.Add(cp.Right.Mul(cp.GateHalfWidth))
		b := cp.Point.Sub(cp.Right.Mul(cp.GateHalfWidth))
		ax, ay := r.project(a.X(), a.Z())
		bx, by := r.project(b.X(), b.Z())
		if i == 0 {
			dc.SetColor(startColor)
		} else {
			dc.SetColor(checkpointColor)
		}
		dc.DrawLine(ax, ay, bx, by)
		dc.Stroke()
	}
}

func (r *Recorder) drawFeatures(dc *gg.Context) {
	dc.SetColor(boostColor)
	for _, b := range r.track.BoostPads {
		x, y := r.project(b.Position.X(), b.Position.Z())
		dc.DrawCircle(x, y, math.Max(2, b.Radius*r.scale))
		dc.Fill()
	}

	dc.SetColor(rampColor)
	for _, ramp := range r.track.Ramps {
		x, y := r.project(ramp.Position.X(), ramp.Position.Z())
		w := math.Max(3, ramp.Width*r.scale)
		h := math.Max(3, ramp.Length*r.scale)
		dc.Push()
		dc.RotateAbout(track.HeadingOf(ramp.Forward), x, y)
		dc.DrawRectangle(x-w/2, y-h/2, w, h)
		dc.Fill()
		dc.Pop()
	}
}

func (r *Recorder) drawItems(dc *gg.Context, snap *race.RaceSnapshot) {
	dc.SetColor(crateColor)
	for _, c := range snap.Crates {
		x, y := r.project(c.X, c.Z)
		dc.DrawRectangle(x-3, y-3, 6, 6)
		dc.Fill()
	}

	dc.SetColor(hazardColor)
	for _, h := range snap.Hazards {
		x, y := r.project(h.X, h.Z)
		dc.DrawCircle(x, y, 4)
		dc.Fill()
	}

	dc.SetColor(projectileColor)
	for _, p := range snap.Projectiles {
		x, y := r.project(p.X, p.Z)
		dc.DrawCircle(x, y, 2)
		dc.Fill()
	}
}

func (r *Recorder) drawVehicles(dc *gg.Context, snap *race.RaceSnapshot) {
	colors := make(map[string]string)
	ranks := make(map[string]int)
	if snap != nil {
		for _, v := range snap.Vehicles {
			colors[v.ID] = v.Color
			ranks[v.ID] = v.Rank
		}
	}
	dc.SetFontFace(basicfont.Face7x13)

	for _, p := range r.Poses() {
		if !p.Visible {
			continue
		}
		x, y := r.project(p.Position.X(), p.Position.Z())

		// Shadow
		dc.SetColor(color.RGBA{0, 0, 0, 128})
		dc.DrawCircle(x+1, y+2, dotRadius)
		dc.Fill()

		dc.SetColor(parseHexColor(colors[p.ID]))
		dc.DrawCircle(x, y, dotRadius)
		dc.Fill()

		// Heading tick. Image Y grows downward.
		hx := x + math.Sin(p.Heading)*dotRadius*2
		hy := y - math.Cos(p.Heading)*dotRadius*2
		dc.SetColor(color.White)
		dc.SetLineWidth(2)
		dc.DrawLine(x, y, hx, hy)
		dc.Stroke()

		if p.Shielded {
			dc.SetColor(color.RGBA{255, 255, 255, 120})
			dc.DrawCircle(x, y, dotRadius+3)
			dc.Stroke()
		}

		if rank := ranks[p.ID]; rank > 0 {
			dc.SetColor(color.White)
			dc.DrawStringAnchored(fmt.Sprint(rank), x+dotRadius+2, y-dotRadius-2, 0, 0)
		}
	}
}

func parseHexColor(hex string) color.RGBA {
	if len(hex) != 7 || hex[0] != '#' {
		return color.RGBA{255, 255, 255, 255}
	}

	var r, g, b uint8
	fmt.Sscanf(hex[1:], "%02x%02x%02x", &r, &g, &b)
	return color.RGBA{r, g, b, 255}
}
