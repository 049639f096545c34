package clock

import "time"

// Clock is the time source for idempotency windows, quota periods, delivery timestamps
// and queue leases.
type Clock interface {
	Now() time.Time
}
