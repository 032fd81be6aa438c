package race

import (
	"math"

	"kart-race/internal/track"
)

const (
	RemoteExtrapolateMax = 0.25 // seconds of dead reckoning past the last snapshot
	RemoteBlendRate      = 12.0
	RemoteSnapDistance   = 15.0 // teleport instead of blending beyond this
)

// RemoteSnapshot is a pose update for an externally driven vehicle.
type RemoteSnapshot struct {
	Seq      uint64  `json:"seq"`
	Position Vec3    `json:"position"`
	Velocity Vec3    `json:"velocity"`
	Heading  float64 `json:"heading"`
	Steer    float64 `json:"steer"`
}

// RemoteState is the interpolation state of a remote vehicle.
type RemoteState struct {
	Have     bool
	LastSeq  uint64
	Target   Vec3
	Velocity Vec3
	Heading  float64
	Steer    float64
	Age      float64
}

// applyRemoteSnapshot stores a newer snapshot. Stale or duplicate
// sequence numbers are ignored.
func applyRemoteSnapshot(v *Vehicle, s RemoteSnapshot) bool {
	r := &v.Remote
	if r.Have && s.Seq <= r.LastSeq {
		return false
	}
	if !finite(s.Position) || !finite(s.Velocity) || math.IsNaN(s.Heading) {
		return false
	}
	r.Have = true
	r.LastSeq = s.Seq
	r.Target = s.Position
	r.Velocity = s.Velocity
	r.Heading = s.Heading
	r.Steer = s.Steer
	r.Age = 0
	return true
}

// stepRemote dead-reckons for a short window and eases the visible pose
// toward the target.
func stepRemote(t *track.Track, v *Vehicle, dt float64) {
	r := &v.Remote
	if !r.Have {
		return
	}
	r.Age += dt
	if r.Age <= RemoteExtrapolateMax {
		r.Target = r.Target.Add(r.Velocity.Mul(dt))
	}

	if v.Position.Sub(r.Target).Len() > RemoteSnapDistance {
		v.Position = r.Target
		v.Heading = r.Heading
	} else {
		k := 1 - math.Exp(-RemoteBlendRate*dt)
		v.Position = v.Position.Add(r.Target.Sub(v.Position).Mul(k))
		v.Heading = wrapAngle(v.Heading + wrapAngle(r.Heading-v.Heading)*k)
	}
	if r.Age > RemoteExtrapolateMax {
		v.Velocity = Vec3{}
	} else {
		v.Velocity = r.Velocity
	}
	v.Steer = r.Steer
	v.Grounded = v.Position.Y() <= t.HeightAt(v.Position.X(), v.Position.Z())+GroundClearance+SnapToleranceDown

	proj := t.ProjectNear(v.Position.X(), v.Position.Z(), v.Progress, ProjectWindow)
	v.Progress = proj.S
	v.TrackDist = math.Sqrt(proj.DistSq)
}
