package race

import (
	"math"

	"kart-race/internal/race/spatial"
	"kart-race/internal/track"
)

const (
	obstacleCell           = 16.0
	SoftBounce             = 0.15
	HardBounce             = 0.45
	ObstacleKnockdownForce = 18.0
)

// obstacleGrid indexes obstacles by their bounding circle.
func obstacleGrid(t *track.Track) *spatial.Grid {
	minX, minZ := math.Inf(1), math.Inf(1)
	maxX, maxZ := math.Inf(-1), math.Inf(-1)
	grow := func(x, z, r float64) {
		minX = math.Min(minX, x-r)
		minZ = math.Min(minZ, z-r)
		maxX = math.Max(maxX, x+r)
		maxZ = math.Max(maxZ, z+r)
	}
	for _, p := range t.Points {
		grow(p.X(), p.Z(), t.HalfWidth*4)
	}
	for _, o := range t.Obstacles {
		grow(o.Position.X(), o.Position.Z(), o.BoundingRadius())
	}

	g := spatial.NewGrid(minX, minZ, maxX, maxZ, obstacleCell, len(t.Obstacles))
	for i, o := range t.Obstacles {
		g.InsertCircle(uint32(i), o.Position.X(), o.Position.Z(), o.BoundingRadius())
	}
	return g
}

// NearbyObstacles returns candidate obstacle indices around a point. The
// slice is reused.
func (in *Integrator) NearbyObstacles(x, z, radius float64) []uint32 {
	return in.obstacles.QueryRadius(x, z, radius)
}

// collideObstacles separates the vehicle from overlapping obstacles and
// reflects its velocity. Hard impacts knock the vehicle down.
func (in *Integrator) collideObstacles(v *Vehicle) {
	obstacles := in.track.Obstacles
	for _, id := range in.obstacles.QueryRadius(v.Position.X(), v.Position.Z(), VehicleRadius+0.5) {
		o := &obstacles[id]
		height := o.Height
		if height <= 0 {
			height = 1.5
		}
		if v.Position.Y() > o.Position.Y()+height+GroundClearance {
			continue // airborne over it
		}

		normal, depth, ok := penetration(v, o)
		if !ok {
			continue
		}
		v.Position = v.Position.Add(normal.Mul(depth))

		vn := v.Velocity.Dot(normal)
		if vn >= 0 {
			continue
		}
		w := o.CrashWeight
		bounce := SoftBounce + (HardBounce-SoftBounce)*w
		v.Velocity = v.Velocity.Sub(normal.Mul(vn * (1 + bounce)))
		keep := 0.9 - 0.2*w
		v.Velocity = Vec3{v.Velocity.X() * keep, v.Velocity.Y(), v.Velocity.Z() * keep}

		force := -vn * (0.5 + w)
		if force > 4 {
			in.fx.Sound("crash", 60+40*w)
			in.fx.Particles(v.Position, "#d0d0d0", int(math.Min(force, 12)))
		}
		if force > ObstacleKnockdownForce && o.Kind != track.KindEdge && in.caps.Knockdown != nil {
			in.caps.Knockdown(v, force*0.5, "obstacle")
		}
	}
}

// penetration returns the push-out direction and depth for a vehicle
// circle against an obstacle.
func penetration(v *Vehicle, o *track.Obstacle) (Vec3, float64, bool) {
	rel := planar(v.Position.Sub(o.Position))

	if o.Shape == track.ShapeSphere {
		d := rel.Len()
		depth := VehicleRadius + o.Radius - d
		if depth <= 0 {
			return Vec3{}, 0, false
		}
		n := normalizeOr(rel, v.Forward().Mul(-1))
		return n, depth, true
	}

	right, fwd := o.Axes()
	lx := rel.Dot(right)
	lz := rel.Dot(fwd)
	px := o.HalfX + VehicleRadius - math.Abs(lx)
	pz := o.HalfZ + VehicleRadius - math.Abs(lz)
	if px <= 0 || pz <= 0 {
		return Vec3{}, 0, false
	}
	if px < pz {
		return right.Mul(sign(lx)), px, true
	}
	return fwd.Mul(sign(lz)), pz, true
}
