//go:build linux

package pressure

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// System is the default gauge on Linux, backed by sysinfo(2).
type System struct{}

// NewSystem returns the sysinfo-backed gauge.
func NewSystem() *System { return &System{} }

// Utilization returns used/total system memory. Buffered pages count as free:
// the kernel reclaims them under pressure, so treating them as used would
// force flat mode on healthy hosts.
func (s *System) Utilization() (float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total := uint64(info.Totalram) * unit
	if total == 0 {
		return 0, fmt.Errorf("sysinfo: zero total memory")
	}
	free := (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
	if free > total {
		free = total
	}
	return float64(total-free) / float64(total), nil
}
