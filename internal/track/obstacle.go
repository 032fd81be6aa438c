package track

import "math"

// ObstacleShape selects the collision test used for an obstacle.
type ObstacleShape uint8

const (
	ShapeBox ObstacleShape = iota
	ShapeSphere
)

// ObstacleKind tags what an obstacle is. Edge obstacles only push.
type ObstacleKind string

const (
	KindTree    ObstacleKind = "tree"
	KindRock    ObstacleKind = "rock"
	KindProp    ObstacleKind = "prop"
	KindBarrier ObstacleKind = "barrier"
	KindHazard  ObstacleKind = "hazard"
	KindEdge    ObstacleKind = "edge"
)

// Obstacle is a static collidable. Boxes are oriented by Yaw and use
// HalfX/HalfZ along their local right/forward axes; spheres use Radius.
type Obstacle struct {
	Kind        ObstacleKind  `json:"kind"`
	Shape       ObstacleShape `json:"shape"`
	Position    Vec3          `json:"position"`
	Yaw         float64       `json:"yaw"`
	HalfX       float64       `json:"halfX"`
	HalfZ       float64       `json:"halfZ"`
	Height      float64       `json:"height"`
	Radius      float64       `json:"radius"`
	CrashWeight float64       `json:"crashWeight"` // 0 soft .. 1 rigid
}

// Axes returns the obstacle's local right and forward unit vectors.
func (o Obstacle) Axes() (right, forward Vec3) {
	forward = ForwardFromHeading(o.Yaw)
	return RightOf(forward), forward
}

// BoundingRadius is a conservative horizontal radius for broad-phase queries.
func (o Obstacle) BoundingRadius() float64 {
	if o.Shape == ShapeSphere {
		return o.Radius
	}
	return math.Hypot(o.HalfX, o.HalfZ)
}

func (t *Track) buildObstacles(obstacles []Obstacle) {
	for i, o := range obstacles {
		o.CrashWeight = t.clamp("obstacle", i, "crashWeight", o.CrashWeight, 0, 1)
		if o.Shape == ShapeSphere {
			o.Radius = t.clamp("obstacle", i, "radius", o.Radius, 0.1, 50)
		} else {
			o.HalfX = t.clamp("obstacle", i, "halfX", o.HalfX, 0.1, 100)
			o.HalfZ = t.clamp("obstacle", i, "halfZ", o.HalfZ, 0.1, 100)
		}
		if o.Kind == "" {
			o.Kind = KindProp
		}
		t.Obstacles = append(t.Obstacles, o)
	}
}
