package track

import (
	"math"
	"sort"
)

// Sample is a point on the centerline and the path direction there.
type Sample struct {
	Point   Vec3
	Forward Vec3
}

// Projection is the nearest centerline location to a ground position.
type Projection struct {
	S       float64 // path-distance
	DistSq  float64 // squared lateral distance in the ground plane
	Segment int
}

// Wrap maps a path-distance into [0, TotalLength) on loop tracks and
// clamps it to [0, TotalLength] on open tracks.
func (t *Track) Wrap(d float64) float64 {
	if math.IsNaN(d) {
		return 0
	}
	if t.Loop {
		d = math.Mod(d, t.TotalLength)
		if d < 0 {
			d += t.TotalLength
		}
		if d >= t.TotalLength {
			d = 0
		}
		return d
	}
	if d < 0 {
		return 0
	}
	if d > t.TotalLength {
		return t.TotalLength
	}
	return d
}

// segmentAt finds the segment containing an already wrapped distance.
func (t *Track) segmentAt(d float64) int {
	n := t.SegmentCount()
	i := sort.Search(n, func(k int) bool { return t.cum[k+1] > d }) // first segment ending past d
	if i >= n {
		i = n - 1
	}
	return i
}

// SampleAt interpolates the centerline at path-distance d.
func (t *Track) SampleAt(d float64) Sample {
	d = t.Wrap(d)
	i := t.segmentAt(d)
	a, b := t.segmentEnds(i)

	f := 0.0
	if t.segLen[i] > 1e-9 {
		f = (d - t.cum[i]) / t.segLen[i]
	}
	point := a.Add(b.Sub(a).Mul(f))
	return Sample{Point: point, Forward: t.forward(i)}
}

func (t *Track) forward(i int) Vec3 {
	fw := t.segForward[i]
	if fw.LenSqr() < 1e-12 {
		return Vec3{0, 0, 1}
	}
	return fw
}

// ProjectNear searches window segments either side of the segment holding
// hint and returns the closest centerline location. Cost is O(window).
func (t *Track) ProjectNear(x, z, hint float64, window int) Projection {
	n := t.SegmentCount()
	if window < 0 {
		window = 0
	}
	if 2*window+1 >= n {
		return t.ProjectGlobal(x, z)
	}

	center := t.segmentAt(t.Wrap(hint))
	best := Projection{DistSq: math.Inf(1)}
	for k := -window; k <= window; k++ {
		i := center + k
		if t.Loop {
			i = ((i % n) + n) % n
		} else if i < 0 || i >= n {
			continue
		}
		t.projectSegment(i, x, z, &best)
	}
	return best
}

// ProjectGlobal searches every segment. Use it for spawn, respawn and teleports.
func (t *Track) ProjectGlobal(x, z float64) Projection {
	best := Projection{DistSq: math.Inf(1)}
	for i := 0; i < t.SegmentCount(); i++ {
		t.projectSegment(i, x, z, &best)
	}
	return best
}

func (t *Track) projectSegment(i int, x, z float64, best *Projection) {
	a, b := t.segmentEnds(i)
	abx, abz := b.X()-a.X(), b.Z()-a.Z()
	apx, apz := x-a.X(), z-a.Z()

	u := 0.0
	if lenSq := abx*abx + abz*abz; lenSq > 1e-12 {
		u = (apx*abx + apz*abz) / lenSq
		if u < 0 {
			u = 0
		} else if u > 1 {
			u = 1
		}
	}
	dx := apx - abx*u
	dz := apz - abz*u
	distSq := dx*dx + dz*dz
	if distSq < best.DistSq {
		best.DistSq = distSq
		best.S = t.Wrap(t.cum[i] + u*t.segLen[i])
		best.Segment = i
	}
}

// SignedDelta returns to-from. On loop tracks the result is wrapped into
// (-TotalLength/2, TotalLength/2].
func (t *Track) SignedDelta(from, to float64) float64 {
	d := to - from
	if !t.Loop {
		return d
	}
	half := t.TotalLength / 2
	d = math.Mod(d, t.TotalLength)
	if d > half {
		d -= t.TotalLength
	} else if d <= -half {
		d += t.TotalLength
	}
	return d
}

// DistanceToTrack is the lateral distance from the centerline.
func (t *Track) DistanceToTrack(x, z float64) float64 {
	return math.Sqrt(t.ProjectGlobal(x, z).DistSq)
}

// Lateral returns the signed offset of (x, z) from the centerline point at
// path-distance s. Positive is to the right of the path direction.
func (t *Track) Lateral(x, z, s float64) float64 {
	sample := t.SampleAt(s)
	right := RightOf(sample.Forward)
	return (x-sample.Point.X())*right.X() + (z-sample.Point.Z())*right.Z()
}

// HeightAt returns terrain height.
func (t *Track) HeightAt(x, z float64) float64 {
	return t.height(x, z)
}

// NormalAt estimates the terrain normal by central differences.
func (t *Track) NormalAt(x, z float64) Vec3 {
	const e = 0.5
	hl := t.height(x-e, z)
	hr := t.height(x+e, z)
	hd := t.height(x, z-e)
	hu := t.height(x, z+e)
	n := Vec3{hl - hr, 2 * e, hd - hu}
	l := n.Len()
	if l < 1e-9 || math.IsNaN(l) {
		return Vec3{0, 1, 0}
	}
	return n.Mul(1 / l)
}

// GlobalProgress combines laps and path-distance for ranking.
func (t *Track) GlobalProgress(lap int, s float64) float64 {
	if t.Loop {
		return float64(lap)*t.TotalLength + s
	}
	return s
}
