package ffmpeg

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// checkResources verifies that the host has the headroom configured by the
// THROTTLE_* settings before an encoder pass starts. Zero thresholds are
// skipped.
func (d *Driver) checkResources(dir string) error {
	if d.cfg.ThrottleCPU > 0 {
		p, err := cpu.Percent(time.Second, false)
		if err != nil {
			d.log.Warnf("Could not get CPU usage: %v", err)
		} else if len(p) > 0 && p[0] > (100.0-d.cfg.ThrottleCPU) {
			return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, Idle threshold: %.2f%%", p[0], d.cfg.ThrottleCPU)
		}
	}

	if d.cfg.ThrottleFreeMem > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			d.log.Warnf("Could not get memory usage: %v", err)
		} else if vm.Available < uint64(d.cfg.ThrottleFreeMem) {
			return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, d.cfg.ThrottleFreeMem)
		}
	}

	if d.cfg.ThrottleFreeDisk > 0 {
		u, err := disk.Usage(dir)
		if err != nil {
			d.log.Warnf("Could not get disk usage for %s: %v", dir, err)
		} else if u.Free < uint64(d.cfg.ThrottleFreeDisk) {
			return fmt.Errorf("not enough free disk space in %s. Available: %d, Required: %d", dir, u.Free, d.cfg.ThrottleFreeDisk)
		}
	}
	return nil
}

// HostStats is a point-in-time view of the host, reported by the health
// endpoint.
type HostStats struct {
	CPUPercent    float64 `json:"cpuPercent"`
	MemAvailable  uint64  `json:"memAvailable"`
	DiskFree      uint64  `json:"diskFree"`
	DiskFreeError string  `json:"diskFreeError,omitempty"`
}

// ReadHostStats samples CPU, memory and free space under dir without
// blocking for a CPU interval.
func ReadHostStats(dir string) HostStats {
	var s HostStats
	if p, err := cpu.Percent(0, false); err == nil && len(p) > 0 {
		s.CPUPercent = p[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemAvailable = vm.Available
	}
	if u, err := disk.Usage(dir); err == nil {
		s.DiskFree = u.Free
	} else {
		s.DiskFreeError = err.Error()
	}
	return s
}
