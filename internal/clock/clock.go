package clock

import "time"

// Clock abstracts "now" so builds are reproducible under test
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}

// Frozen always reports the same instant
type Frozen struct {
	At time.Time
}

func (f Frozen) Now() time.Time {
	return f.At
}
