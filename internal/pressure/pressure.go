// Package pressure reports system memory utilization for index mode switching.
// The gauge is injectable so tests can drive mode transitions deterministically
// without depending on the state of the host.
package pressure

// Gauge reports the fraction of system memory currently in use, in [0, 1].
type Gauge interface {
	Utilization() (float64, error)
}

// Fixed is a gauge that returns a settable value; used in tests and as a
// fallback on platforms without a system gauge.
type Fixed struct {
	Value float64
	Err   error
}

// Utilization returns the fixed value.
func (f *Fixed) Utilization() (float64, error) {
	return f.Value, f.Err
}

// Set updates the reported value.
func (f *Fixed) Set(v float64) { f.Value = v }
