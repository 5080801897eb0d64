package formats

import "time"

// Observer receives format cache measurements.
type Observer interface {
	RecordResolve(format, outcome string, duration time.Duration)
	RecordConversion(format string, sizeBytes int64, err error)
}

type nopObserver struct{}

func (nopObserver) RecordResolve(string, string, time.Duration) {}
func (nopObserver) RecordConversion(string, int64, error)       {}
