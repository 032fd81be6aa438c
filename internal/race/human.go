package race

import (
	"kart-race/internal/track"
)

// Human control tuning
const (
	ReverseEntrySpeed  = 1.5  // forward speed below which brake starts counting toward reverse
	ReverseEngageDelay = 0.35 // seconds of brake at low speed before reverse engages
	ReverseExitSpeed   = 2.0
	AssistLookahead    = 8.0
	AssistGain         = 1.2
	AssistWithInput    = 0.15
	AssistWithoutInput = 0.35
)

// DriveHuman maps held input to control intent. Holding brake near
// standstill engages reverse; forward input or rolling forward cancels it.
func (d *Driver) DriveHuman(v *Vehicle, in Input, dt float64) {
	vf := v.ForwardSpeed()

	v.Throttle, v.Brake, v.ReverseThrottle = 0, 0, 0
	switch {
	case in.Forward:
		v.Throttle = 1
		v.Mode = DriveForward
		v.ReverseHold = 0
	case in.Brake && v.Mode == DriveReverse:
		v.ReverseThrottle = 1
	case in.Brake:
		if vf > ReverseEntrySpeed {
			v.Brake = 1
			v.ReverseHold = 0
		} else {
			v.Brake = 1
			v.ReverseHold += dt
			if v.ReverseHold >= ReverseEngageDelay {
				v.Mode = DriveReverse
				v.Brake = 0
				v.ReverseThrottle = 1
			}
		}
	default:
		v.ReverseHold = 0
	}
	if v.Mode == DriveReverse && vf > ReverseExitSpeed {
		v.Mode = DriveForward
		v.ReverseThrottle = 0
	}

	steer := 0.0
	if in.Right {
		steer += 1
	}
	if in.Left {
		steer -= 1
	}
	assist := d.steerAssist(v)
	if steer != 0 {
		steer += assist * AssistWithInput
	} else if v.Mode == DriveForward && vf > 2 {
		steer = assist * AssistWithoutInput
	}
	v.TargetSteer = clamp(steer, -1, 1)

	if in.Punch && d.caps.Punch != nil {
		d.caps.Punch(v)
	}
	if in.UseItem && d.caps.UseItem != nil {
		d.caps.UseItem(v)
	}
	if in.Respawn && d.caps.Respawn != nil {
		d.caps.Respawn(v, RespawnManual, -1)
	}
}

// steerAssist is a path-following correction in [-1, 1].
func (d *Driver) steerAssist(v *Vehicle) float64 {
	ahead := d.track.SampleAt(v.Progress + AssistLookahead + v.PlanarSpeed()*0.3)
	want := track.HeadingOf(planar(ahead.Point.Sub(v.Position)))
	return clamp(wrapAngle(want-v.Heading)*AssistGain, -1, 1)
}

// applyDebug handles debug triggers.
func (d *Driver) applyDebug(v *Vehicle, in Input, knockdown func(v *Vehicle, power float64, source string)) {
	if in.DebugGiveItem != ItemNone {
		v.Item = in.DebugGiveItem
	}
	if in.DebugKnockdown && knockdown != nil {
		knockdown(v, 10, "debug")
	}
	if in.DebugForceRespawn && d.caps.Respawn != nil {
		d.caps.Respawn(v, RespawnManual, v.Checkpoint)
	}
}
