package clock

import "time"

// System reads the wall clock in UTC at millisecond precision, the resolution of every
// timestamp the API emits.
type System struct{}

func NewSystemClock() System { return System{} }

func (System) Now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
