package track

import "math"

// DemoCircuit builds a rolling closed circuit used when no track file is
// configured. It has eight checkpoints, two ramps, two boost pads and
// three item anchors.
func DemoCircuit() *Track {
	const (
		points = 96
		rx     = 140.0
		rz     = 90.0
	)

	height := func(x, z float64) float64 {
		return 2.5*math.Sin(x/28)*math.Cos(z/33) + 1.5*math.Sin((x+z)/47)
	}

	path := make([]Vec3, points)
	for i := 0; i < points; i++ {
		a := 2 * math.Pi * float64(i) / points
		// chicane wobble on the back straight
		wobble := 9 * math.Sin(3*a) * math.Max(0, -math.Sin(a))
		x := (rx + wobble) * math.Cos(a)
		z := (rz + wobble) * math.Sin(a)
		path[i] = Vec3{x, height(x, z), z}
	}

	var obstacles []Obstacle
	for i := 0; i < points; i += 8 {
		a := 2 * math.Pi * float64(i) / points
		x := (rx + 26) * math.Cos(a)
		z := (rz + 26) * math.Sin(a)
		obstacles = append(obstacles, Obstacle{
			Kind: KindTree, Shape: ShapeSphere, Position: Vec3{x, height(x, z), z},
			Radius: 1.6, Height: 9, CrashWeight: 0.9,
		})
	}
	obstacles = append(obstacles,
		Obstacle{Kind: KindRock, Shape: ShapeSphere, Position: Vec3{0, height(0, -rz+4), -rz + 4}, Radius: 1.2, CrashWeight: 1},
		Obstacle{Kind: KindBarrier, Shape: ShapeBox, Position: Vec3{rx + 15, height(rx+15, 0), 0}, HalfX: 1, HalfZ: 12, Height: 1.2, CrashWeight: 0.6},
		Obstacle{Kind: KindEdge, Shape: ShapeBox, Position: Vec3{-rx - 15, height(-rx-15, 0), 0}, HalfX: 1, HalfZ: 14, Height: 1, CrashWeight: 0.3},
	)

	t, err := Build(Definition{
		Name:              "demo-circuit",
		Points:            path,
		Height:            height,
		Loop:              true,
		HalfWidth:         9,
		CheckpointIndices: []int{0, 12, 24, 36, 48, 60, 72, 84},
		Ramps: []Ramp{
			{PathIndex: 30, Length: 6, Width: 8, LaunchSpeed: 9, MinApproach: 14, Cooldown: 1},
			{PathIndex: 70, Lateral: -2, Length: 5, Width: 6, LaunchSpeed: 8, MinApproach: 12, Cooldown: 1},
		},
		BoostPads: []BoostPad{
			{PathIndex: 20, Lateral: 2, Radius: 2.5, Duration: 1.2},
			{PathIndex: 55, Lateral: -2, Radius: 2.5, Duration: 1.2},
		},
		ItemAnchors: []ItemAnchor{{PathIndex: 15}, {PathIndex: 45}, {PathIndex: 80}},
		Obstacles:   obstacles,
	})
	if err != nil {
		// static data; cannot fail
		panic(err)
	}
	return t
}
