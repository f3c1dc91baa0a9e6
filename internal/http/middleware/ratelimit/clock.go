package ratelimit

import "delivery-dispatch/internal/cache"

// Clock provides current time.
type Clock = cache.Clock

// RealClock is the default clock.
type RealClock = cache.RealClock
