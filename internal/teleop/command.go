package teleop

import (
	"teleop-bridge/internal/codec"
	"teleop-bridge/internal/input"
)

// Twist maps a movement key to a velocity command. Up and Down drive along
// linear.x, Left and Right turn about angular.z, Space stops. Any other key
// yields false.
func Twist(k input.Key, linearScale, angularScale float64) (codec.Twist, bool) {
	var t codec.Twist
	switch k {
	case input.KeyUp:
		t.Linear.X = linearScale
	case input.KeyDown:
		t.Linear.X = -linearScale
	case input.KeyLeft:
		t.Angular.Z = angularScale
	case input.KeyRight:
		t.Angular.Z = -angularScale
	case input.KeySpace:
	default:
		return t, false
	}
	return t, true
}

// publishTwist encodes and publishes t. Failures are logged, never returned.
func (b *Bridge) publishTwist(t codec.Twist) {
	if err := b.pub.Publish(b.opts.CmdVelTopic, codec.MarshalTwist(t)); err != nil {
		b.logger.Warn("error writing to bus", "topic", b.opts.CmdVelTopic, "error", err)
		return
	}
	b.logger.Debug("published twist", "linear_x", t.Linear.X, "angular_z", t.Angular.Z)
}
