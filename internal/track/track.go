// Package track holds the immutable per-level Track Model and the path
// projection utilities the race core uses every tick.
//
// Coordinates are Y-up: the ground plane is X/Z and heights are Y.
// Path-distance (s) is arc length along the centerline measured in the
// XZ plane.
package track

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog/log"
)

// Vec3 is the vector type shared by the track and race packages.
type Vec3 = mgl64.Vec3

// HeightFunc returns terrain height (Y) at a ground position.
type HeightFunc func(x, z float64) float64

var (
	ErrEmptyPath      = errors.New("track: path needs at least two points")
	ErrDegeneratePath = errors.New("track: path has zero length")
	ErrNoCheckpoints  = errors.New("track: no usable checkpoints")
)

// Gate sizing relative to the route half-width.
const (
	GateWidthFactor     = 1.35
	CaptureRadiusFactor = 0.9
	CaptureDepth        = 4.0
	DefaultHalfWidth    = 8.0
	autoCheckpoints     = 8
)

// Ramp launches vehicles into the air.
type Ramp struct {
	PathIndex   int     `json:"pathIndex"`
	Lateral     float64 `json:"lateral"`
	Length      float64 `json:"length"`
	Width       float64 `json:"width"`
	LaunchSpeed float64 `json:"launchSpeed"` // minimum vertical velocity after launch
	MinApproach float64 `json:"minApproach"` // minimum approach speed
	Cooldown    float64 `json:"cooldown"`

	Position Vec3 `json:"-"`
	Forward  Vec3 `json:"-"`
	Right    Vec3 `json:"-"`
}

// BoostPad grants a timed speed boost.
type BoostPad struct {
	PathIndex int     `json:"pathIndex"`
	Lateral   float64 `json:"lateral"`
	Radius    float64 `json:"radius"`
	Duration  float64 `json:"duration"`

	Position Vec3 `json:"-"`
	Forward  Vec3 `json:"-"`
}

// ItemAnchor is where an item wave spawns its crates.
type ItemAnchor struct {
	PathIndex int `json:"pathIndex"`

	S        float64 `json:"-"`
	Position Vec3    `json:"-"`
	Forward  Vec3    `json:"-"`
	Right    Vec3    `json:"-"`
}

// Checkpoint is a gate across the route at path-distance S.
type Checkpoint struct {
	Index         int
	PathIndex     int
	S             float64
	Point         Vec3
	Forward       Vec3
	Right         Vec3
	GateHalfWidth float64
	CaptureRadius float64
	CaptureDepth  float64
}

// AuditRecord describes one value clamped while building a track.
type AuditRecord struct {
	Kind    string  `json:"kind"`
	Index   int     `json:"index"`
	Field   string  `json:"field"`
	Value   float64 `json:"value"`
	Clamped float64 `json:"clamped"`
}

// Definition is the raw level description handed over by the world builder.
type Definition struct {
	Name              string
	Points            []Vec3
	Height            HeightFunc
	Loop              bool
	HalfWidth         float64
	CheckpointIndices []int
	Ramps             []Ramp
	BoostPads         []BoostPad
	ItemAnchors       []ItemAnchor
	Obstacles         []Obstacle
}

// Track is the built, immutable Track Model.
type Track struct {
	Name              string
	Points            []Vec3
	Loop              bool
	TotalLength       float64
	HalfWidth         float64
	CheckpointIndices []int
	Checkpoints       []Checkpoint
	Ramps             []Ramp
	BoostPads         []BoostPad
	ItemAnchors       []ItemAnchor
	Obstacles         []Obstacle
	Audit             []AuditRecord

	height     HeightFunc
	cum        []float64 // arc length at the start of each segment, plus the total
	segLen     []float64
	segForward []Vec3
}

// Build validates a definition and produces a Track. Out-of-range
// placement values are clamped and recorded in Track.Audit.
func Build(def Definition) (*Track, error) {
	points := append([]Vec3(nil), def.Points...)
	if def.Loop && len(points) > 2 && points[0].ApproxEqual(points[len(points)-1]) {
		points = points[:len(points)-1]
	}
	if len(points) < 2 {
		return nil, ErrEmptyPath
	}

	t := &Track{
		Name:      def.Name,
		Points:    points,
		Loop:      def.Loop,
		HalfWidth: def.HalfWidth,
		height:    def.Height,
	}
	if t.height == nil {
		t.height = func(x, z float64) float64 { return 0 }
	}
	if t.HalfWidth <= 0 || math.IsNaN(t.HalfWidth) {
		t.audit("track", 0, "halfWidth", def.HalfWidth, DefaultHalfWidth)
		t.HalfWidth = DefaultHalfWidth
	}

	t.buildSegments()
	if t.TotalLength <= 1e-9 {
		return nil, ErrDegeneratePath
	}

	if err := t.buildCheckpoints(def.CheckpointIndices); err != nil {
		return nil, err
	}
	t.buildRamps(def.Ramps)
	t.buildBoostPads(def.BoostPads)
	t.buildItemAnchors(def.ItemAnchors)
	t.buildObstacles(def.Obstacles)

	for _, a := range t.Audit {
		log.Warn().
			Str("track", t.Name).
			Str("kind", a.Kind).
			Int("index", a.Index).
			Str("field", a.Field).
			Float64("value", a.Value).
			Float64("clamped", a.Clamped).
			Msg("⚠️ Track value clamped")
	}
	log.Info().
		Str("track", t.Name).
		Float64("length", t.TotalLength).
		Int("checkpoints", len(t.Checkpoints)).
		Bool("loop", t.Loop).
		Msg("🏁 Track built")

	return t, nil
}

// SegmentCount is the number of path segments, including the closing
// segment on loop tracks.
func (t *Track) SegmentCount() int {
	if t.Loop {
		return len(t.Points)
	}
	return len(t.Points) - 1
}

func (t *Track) buildSegments() {
	n := t.SegmentCount()
	t.cum = make([]float64, n+1)
	t.segLen = make([]float64, n)
	t.segForward = make([]Vec3, n)

	for i := 0; i < n; i++ {
		a, b := t.segmentEnds(i)
		d := Vec3{b.X() - a.X(), 0, b.Z() - a.Z()}
		l := d.Len()
		t.segLen[i] = l
		t.cum[i+1] = t.cum[i] + l
		if l > 1e-9 {
			t.segForward[i] = d.Mul(1 / l)
		}
	}
	t.TotalLength = t.cum[n]

	// Degenerate segments inherit the previous valid forward vector.
	first := -1
	for i := 0; i < n; i++ {
		if t.segLen[i] > 1e-9 {
			first = i
			break
		}
	}
	if first < 0 {
		return
	}
	prev := t.segForward[first]
	for i := 0; i < n; i++ {
		if t.segLen[i] > 1e-9 {
			prev = t.segForward[i]
		} else {
			t.segForward[i] = prev
		}
	}
}

func (t *Track) segmentEnds(i int) (Vec3, Vec3) {
	j := i + 1
	if j >= len(t.Points) {
		j = 0
	}
	return t.Points[i], t.Points[j]
}

func (t *Track) buildCheckpoints(indices []int) error {
	last := len(t.Points) - 1
	var picked []int

	if len(indices) == 0 {
		count := autoCheckpoints
		if count > len(t.Points) {
			count = len(t.Points)
		}
		for k := 0; k < count; k++ {
			idx := k * last / count
			if len(picked) == 0 || idx > picked[len(picked)-1] {
				picked = append(picked, idx)
			}
		}
		t.audit("checkpoint", 0, "count", 0, float64(len(picked)))
	} else {
		prev := -1
		for k, idx := range indices {
			c := idx
			if c < 0 {
				c = 0
			}
			if c > last {
				c = last
			}
			if c != idx {
				t.audit("checkpoint", k, "pathIndex", float64(idx), float64(c))
			}
			if c <= prev {
				t.audit("checkpoint", k, "order", float64(idx), -1)
				continue
			}
			picked = append(picked, c)
			prev = c
		}
	}

	if len(picked) == 0 {
		return ErrNoCheckpoints
	}
	if picked[0] != 0 {
		t.audit("checkpoint", 0, "start", float64(picked[0]), 0)
		picked = append([]int{0}, picked...)
	}
	if !t.Loop && picked[len(picked)-1] != last {
		t.audit("checkpoint", len(picked), "finish", float64(picked[len(picked)-1]), float64(last))
		picked = append(picked, last)
	}
	if len(picked) < 2 {
		return fmt.Errorf("%w: need a start and at least one more gate", ErrNoCheckpoints)
	}
	if t.Loop {
		picked = t.splitWideGaps(picked)
	}

	t.CheckpointIndices = picked
	t.Checkpoints = make([]Checkpoint, len(picked))
	for i, idx := range picked {
		s := t.cum[idx]
		if t.Loop && s >= t.TotalLength {
			s = 0
		}
		sample := t.SampleAt(s)
		t.Checkpoints[i] = Checkpoint{
			Index:         i,
			PathIndex:     idx,
			S:             s,
			Point:         sample.Point,
			Forward:       sample.Forward,
			Right:         RightOf(sample.Forward),
			GateHalfWidth: t.HalfWidth * GateWidthFactor,
			CaptureRadius: t.HalfWidth * CaptureRadiusFactor,
			CaptureDepth:  CaptureDepth,
		}
	}
	return nil
}

// splitWideGaps inserts midpoint gates until no two consecutive gates on a
// loop are more than half a lap apart; SignedDelta wraps at half a lap.
func (t *Track) splitWideGaps(picked []int) []int {
	n := len(t.Points)
	for {
		split := false
		for i := 0; i < len(picked); i++ {
			a := picked[i]
			end, endS := n, t.TotalLength
			if i+1 < len(picked) {
				end, endS = picked[i+1], t.cum[picked[i+1]]
			}
			gap := endS - t.cum[a]
			if gap <= t.TotalLength/2 {
				continue
			}

			mid := t.cum[a] + gap/2
			best := -1
			for k := a + 1; k < end; k++ {
				if best < 0 || math.Abs(t.cum[k]-mid) < math.Abs(t.cum[best]-mid) {
					best = k
				}
			}
			if best < 0 {
				continue // a single segment, nothing to split at
			}
			t.audit("checkpoint", i+1, "gap", gap, float64(best))
			picked = append(picked[:i+1], append([]int{best}, picked[i+1:]...)...)
			split = true
			break
		}
		if !split {
			return picked
		}
	}
}

func (t *Track) buildRamps(ramps []Ramp) {
	for i, r := range ramps {
		r.PathIndex = t.clampIndex("ramp", i, r.PathIndex)
		r.Lateral = t.clamp("ramp", i, "lateral", r.Lateral, -t.HalfWidth, t.HalfWidth)
		r.Length = t.clamp("ramp", i, "length", r.Length, 2, 20)
		r.Width = t.clamp("ramp", i, "width", r.Width, 2, 2*t.HalfWidth)
		r.LaunchSpeed = t.clamp("ramp", i, "launchSpeed", r.LaunchSpeed, 4, 30)
		r.MinApproach = t.clamp("ramp", i, "minApproach", r.MinApproach, 0, 40)
		r.Cooldown = t.clamp("ramp", i, "cooldown", r.Cooldown, 0.2, 5)

		sample := t.SampleAt(t.cum[r.PathIndex])
		r.Forward = sample.Forward
		r.Right = RightOf(sample.Forward)
		r.Position = t.groundPoint(sample.Point.Add(r.Right.Mul(r.Lateral)))
		t.Ramps = append(t.Ramps, r)
	}
}

func (t *Track) buildBoostPads(pads []BoostPad) {
	for i, p := range pads {
		p.PathIndex = t.clampIndex("boostPad", i, p.PathIndex)
		p.Lateral = t.clamp("boostPad", i, "lateral", p.Lateral, -t.HalfWidth, t.HalfWidth)
		p.Radius = t.clamp("boostPad", i, "radius", p.Radius, 1, t.HalfWidth)
		p.Duration = t.clamp("boostPad", i, "duration", p.Duration, 0.2, 4)

		sample := t.SampleAt(t.cum[p.PathIndex])
		p.Forward = sample.Forward
		p.Position = t.groundPoint(sample.Point.Add(RightOf(sample.Forward).Mul(p.Lateral)))
		t.BoostPads = append(t.BoostPads, p)
	}
}

func (t *Track) buildItemAnchors(anchors []ItemAnchor) {
	for i, a := range anchors {
		a.PathIndex = t.clampIndex("itemAnchor", i, a.PathIndex)
		a.S = t.cum[a.PathIndex]
		if t.Loop && a.S >= t.TotalLength {
			a.S = 0
		}
		sample := t.SampleAt(a.S)
		a.Forward = sample.Forward
		a.Right = RightOf(sample.Forward)
		a.Position = t.groundPoint(sample.Point)
		t.ItemAnchors = append(t.ItemAnchors, a)
	}
}

func (t *Track) clampIndex(kind string, i, idx int) int {
	last := len(t.Points) - 1
	c := idx
	if c < 0 {
		c = 0
	}
	if c > last {
		c = last
	}
	if c != idx {
		t.audit(kind, i, "pathIndex", float64(idx), float64(c))
	}
	return c
}

func (t *Track) clamp(kind string, i int, field string, v, lo, hi float64) float64 {
	c := v
	if math.IsNaN(c) || c < lo {
		c = lo
	}
	if c > hi {
		c = hi
	}
	if c != v {
		t.audit(kind, i, field, v, c)
	}
	return c
}

func (t *Track) audit(kind string, index int, field string, value, clamped float64) {
	t.Audit = append(t.Audit, AuditRecord{Kind: kind, Index: index, Field: field, Value: value, Clamped: clamped})
}

func (t *Track) groundPoint(p Vec3) Vec3 {
	return Vec3{p.X(), t.height(p.X(), p.Z()), p.Z()}
}

// RightOf returns the horizontal right vector for a forward direction.
// Positive yaw turns toward it.
func RightOf(forward Vec3) Vec3 {
	r := Vec3{forward.Z(), 0, -forward.X()}
	l := r.Len()
	if l < 1e-9 {
		return Vec3{1, 0, 0}
	}
	return r.Mul(1 / l)
}

// HeadingOf returns the yaw for a horizontal direction. Yaw 0 faces +Z.
func HeadingOf(dir Vec3) float64 {
	return math.Atan2(dir.X(), dir.Z())
}

// ForwardFromHeading is the inverse of HeadingOf.
func ForwardFromHeading(yaw float64) Vec3 {
	return Vec3{math.Sin(yaw), 0, math.Cos(yaw)}
}
