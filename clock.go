package peernetic

import "time"

// Clock is the sole source of "now" for every time-sensitive component
// (NonceManager, the Transmission subsystem, the Timer gateway, Schedules).
// No component may call time.Now() directly — going through Clock is what
// lets the exact same actor code run unmodified under the real Host and
// under the Simulator's virtual clock.
//
// Grounded on theatre's clock.go coarse-clock idiom (a cached,
// periodically-refreshed time source), generalized from a package-level
// atomic into an interface so the simulator can supply a virtual
// implementation.
type Clock interface {
	Now() time.Time
}

// WallClock is the real-time Clock implementation used by the production
// Host. It delegates straight to time.Now; unlike theatre's coarseNow it
// does not cache, since no component in this fabric calls Now() often
// enough on a hot enough path to justify a 500ms-stale cache at the cost of
// determinism-breaking surprises.
type WallClock struct{}

// Now returns time.Now().
func (WallClock) Now() time.Time {
	return time.Now()
}
