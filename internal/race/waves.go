package race

import "math"

const (
	CratePickupRadius = 1.8
	maxCratesPerWave  = 3
)

// Crate is one pickup slot of a wave.
type Crate struct {
	Position Vec3
	Item     ItemType
	Active   bool
}

// ItemWave is the group of crates at one anchor. When its last crate is
// taken the wave goes inert for the level's advance delay, then respawns
// with freshly dealt items.
type ItemWave struct {
	Anchor    int
	Crates    []Crate
	Active    bool
	Remaining int
	Timer     float64
}

func newItemWave(anchor int) *ItemWave {
	return &ItemWave{Anchor: anchor}
}

// laneOffsets spread crates across the route, as fractions of half-width.
var laneOffsets = [][]float64{
	{0},
	{-0.3, 0.3},
	{-0.45, 0, 0.45},
}

// activate places count crates across the anchor and deals each a type
// that does not repeat within the wave.
func (c *Combat) activate(w *ItemWave, count int) {
	if count < 1 {
		count = 1
	}
	if count > maxCratesPerWave {
		count = maxCratesPerWave
	}
	a := c.track.ItemAnchors[w.Anchor]

	w.Crates = w.Crates[:0]
	dealt := make([]ItemType, 0, count)
	for _, off := range laneOffsets[count-1] {
		p := a.Position.Add(a.Right.Mul(off * c.track.HalfWidth))
		p = Vec3{p.X(), c.track.HeightAt(p.X(), p.Z()), p.Z()}
		it := c.bag.Draw(dealt)
		dealt = append(dealt, it)
		w.Crates = append(w.Crates, Crate{Position: p, Item: it, Active: true})
	}
	w.Active = true
	w.Remaining = count
	w.Timer = 0
}

// updateWaves counts down inert waves and reactivates them.
func (c *Combat) updateWaves(dt float64) {
	for _, w := range c.waves {
		if w.Active {
			continue
		}
		w.Timer -= dt
		if w.Timer <= 0 {
			c.activate(w, 1+c.rng.Intn(maxCratesPerWave))
		}
	}
}

// Pickup gives v the first crate it touches, if its hands are empty.
func (c *Combat) Pickup(v *Vehicle) {
	if v.Item != ItemNone || !v.Active() {
		return
	}
	reach := CratePickupRadius + VehicleRadius
	for _, w := range c.waves {
		if !w.Active {
			continue
		}
		for i := range w.Crates {
			cr := &w.Crates[i]
			if !cr.Active || planarDistSq(v.Position, cr.Position) > reach*reach {
				continue
			}
			if math.Abs(v.Position.Y()-cr.Position.Y()) > 3 {
				continue // flying over
			}
			cr.Active = false
			v.Item = cr.Item
			c.collect(w)
			c.emit(EventTypeItemPickup, v, ItemPayload{Item: cr.Item.String()})
			c.fx.Sound("pickup", 880)
			return
		}
	}
}

func (c *Combat) collect(w *ItemWave) {
	w.Remaining--
	if w.Remaining <= 0 {
		w.Remaining = 0
		w.Active = false
		w.Timer = c.tun.ItemWaveAdvanceDelay
	}
}

// Waves exposes item waves for snapshots.
func (c *Combat) Waves() []*ItemWave {
	return c.waves
}
