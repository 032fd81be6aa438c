package race

import (
	"math"
	"math/rand"
	"strings"
)

// ItemType is a held pickup.
type ItemType uint8

const (
	ItemNone ItemType = iota
	ItemTurbo
	ItemBash
	ItemShock
	ItemShield
	ItemTrap
	ItemBanana
	ItemBomb
)

// AllItems lists every collectible type.
var AllItems = []ItemType{ItemTurbo, ItemBash, ItemShock, ItemShield, ItemTrap, ItemBanana, ItemBomb}

func (it ItemType) String() string {
	switch it {
	case ItemTurbo:
		return "turbo"
	case ItemBash:
		return "bash"
	case ItemShock:
		return "shock"
	case ItemShield:
		return "shield"
	case ItemTrap:
		return "trap"
	case ItemBanana:
		return "banana"
	case ItemBomb:
		return "bomb"
	default:
		return "none"
	}
}

// ParseItem maps a name to an ItemType; unknown names are ItemNone.
func ParseItem(s string) ItemType {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, it := range AllItems {
		if it.String() == s {
			return it
		}
	}
	return ItemNone
}

// MarshalText encodes items by name.
func (it ItemType) MarshalText() ([]byte, error) {
	return []byte(it.String()), nil
}

// UnmarshalText accepts item names.
func (it *ItemType) UnmarshalText(b []byte) error {
	*it = ParseItem(string(b))
	return nil
}

// ItemCategory groups items for AI usage decisions.
type ItemCategory uint8

const (
	CategoryNone ItemCategory = iota
	CategoryOffensive
	CategoryDefensive
	CategoryUtility
)

func (it ItemType) Category() ItemCategory {
	switch it {
	case ItemBash, ItemShock, ItemBanana, ItemBomb:
		return CategoryOffensive
	case ItemShield, ItemTrap:
		return CategoryDefensive
	case ItemTurbo:
		return CategoryUtility
	default:
		return CategoryNone
	}
}

// Item constants
const (
	ItemUseCooldown = 0.5
	TurboDuration   = 1.5
	TurboImpulse    = 8.0
	BashRadius      = 6.0
	BashPower       = 14.0
	ShockRadius     = 11.0
	ShockPower      = 9.0
	ShockStun       = 0.9
	TrapDropOffset  = 2.5
)

// ItemBag deals item types in shuffled rounds. A round holds each type
// copies times; a new round is shuffled when the current one runs out.
type ItemBag struct {
	rng    *rand.Rand
	copies int
	pool   []ItemType
	next   int
}

func NewItemBag(rng *rand.Rand, copies int) *ItemBag {
	if copies < 1 {
		copies = 1
	}
	b := &ItemBag{rng: rng, copies: copies}
	b.refill()
	return b
}

func (b *ItemBag) refill() {
	b.pool = b.pool[:0]
	for k := 0; k < b.copies; k++ {
		b.pool = append(b.pool, AllItems...)
	}
	b.rng.Shuffle(len(b.pool), func(i, j int) { b.pool[i], b.pool[j] = b.pool[j], b.pool[i] })
	b.next = 0
}

// Draw returns the next item not in exclude. When the rest of the round
// holds only excluded types the bag is reshuffled.
func (b *ItemBag) Draw(exclude []ItemType) ItemType {
	for attempt := 0; attempt < 2; attempt++ {
		for i := b.next; i < len(b.pool); i++ {
			if containsItem(exclude, b.pool[i]) {
				continue
			}
			b.pool[b.next], b.pool[i] = b.pool[i], b.pool[b.next]
			it := b.pool[b.next]
			b.next++
			return it
		}
		b.refill()
	}
	// every type excluded
	return AllItems[b.rng.Intn(len(AllItems))]
}

// Remaining is the number of undealt items in the round.
func (b *ItemBag) Remaining() int {
	return len(b.pool) - b.next
}

func containsItem(list []ItemType, it ItemType) bool {
	for _, x := range list {
		if x == it {
			return true
		}
	}
	return false
}

// UseItem activates the held item. Returns false if nothing was used.
func (c *Combat) UseItem(v *Vehicle) bool {
	if v.Item == ItemNone || v.Timers.ItemCooldown > 0 || !v.Active() || v.Down == KnockDown {
		return false
	}
	item := v.Item
	fwd := v.Forward()

	switch item {
	case ItemTurbo:
		v.Timers.Boost = math.Max(v.Timers.Boost, TurboDuration)
		v.Velocity = v.Velocity.Add(fwd.Mul(TurboImpulse))
		c.fx.Sound("turbo", 520)

	case ItemBash:
		for _, other := range c.caps.Vehicles() {
			if other == v || !other.Active() {
				continue
			}
			rel := planar(other.Position.Sub(v.Position))
			if rel.Len() > BashRadius || rel.Dot(fwd) <= 0 {
				continue
			}
			c.ApplyItemHit(other, v, rel, BashPower, "bash")
		}
		c.fx.Sound("bash", 200)

	case ItemShock:
		for _, other := range c.caps.Vehicles() {
			if other == v || !other.Active() || other.Timers.ItemHitCooldown > 0 {
				continue
			}
			rel := planar(other.Position.Sub(v.Position))
			d := rel.Len()
			if d > ShockRadius {
				continue
			}
			dir := normalizeOr(rel, other.Forward().Mul(-1))
			falloff := 1 - d/ShockRadius*0.5
			other.Timers.ItemHitCooldown = ItemHitImmunity
			if other.Shielded() {
				c.ApplyHit(other, v, dir, ShockPower*falloff, "shock")
				continue
			}
			other.Timers.Stun = math.Max(other.Timers.Stun, ShockStun*falloff)
			other.Velocity = other.Velocity.Add(dir.Mul(ShockPower * falloff))
		}
		c.fx.Particles(v.Position, "#b388ff", 20)
		c.fx.Sound("shock", 880)

	case ItemShield:
		v.Timers.Shield = ShieldDuration
		v.ShieldHits = MaxShieldHits
		c.fx.Sound("shield_up", 740)

	case ItemTrap:
		pos := v.Position.Sub(fwd.Mul(TrapDropOffset))
		c.dropHazard(HazardTrap, pos, v)

	case ItemBanana:
		c.launchProjectile(ProjectileBanana, v)

	case ItemBomb:
		c.launchProjectile(ProjectileBomb, v)
	}

	v.Item = ItemNone
	v.Timers.ItemCooldown = ItemUseCooldown
	c.emit(EventTypeItemUse, v, ItemPayload{Item: item.String()})
	return true
}
