package audiocore

import "github.com/jonboulle/clockwork"

// Clock abstracts time for the watchdog and keep-alive loop. Only Now and
// After are used.
type Clock = clockwork.Clock

// SystemClock returns the wall clock.
func SystemClock() Clock { return clockwork.NewRealClock() }
