// Package clock defines the time source shared by the caches and the note service.
package clock

import "time"

// Clock reports the current time. Tests swap in a fixed clock.
type Clock interface {
	Now() time.Time
}
