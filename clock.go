package jobmanager

import "time"

// Clock produces monotonic epoch-millis timestamps. Jobs and events are
// timed against it instead of calling time.Now directly so tests can supply
// a deterministic source.
type Clock interface {
	NowMillis() int64
}

// SystemClock is the default Clock. It reads the OS wall clock once and
// advances from there on Go's monotonic clock reading, so its values are
// epoch millis that never go backwards.
type SystemClock struct{}

var systemClockBase = time.Now()

func (SystemClock) NowMillis() int64 {
	return systemClockBase.UnixMilli() + time.Since(systemClockBase).Milliseconds()
}
