package fsutil

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// planeExpansion approximates resident bytes per on-disk FITS byte once a
// panel is decoded to float64 and split into on/off-source planes.
const planeExpansion = 3

// GetSystemMemory returns available memory in MB
func GetSystemMemory() (int64, error) {
	content, err := os.ReadFile("/proc/meminfo")
	if err == nil {
		for _, line := range strings.Split(string(content), "\n") {
			if !strings.HasPrefix(line, "MemAvailable:") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				if kb, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
					return kb / 1024, nil
				}
			}
		}
	}

	// Fallback to syscall if /proc/meminfo parsing fails
	var sysinfo syscall.Sysinfo_t
	if err := syscall.Sysinfo(&sysinfo); err != nil {
		return 0, err
	}
	return int64(sysinfo.Freeram) * int64(sysinfo.Unit) / (1024 * 1024), nil
}

// DatasetSize sums the on-disk size of every image of the runs, in bytes.
// Missing files count as zero.
func DatasetSize(runs []RunFiles) int64 {
	var total int64
	for _, r := range runs {
		for _, p := range []string{r.Flat, r.Residual, r.Fidelity, r.PSF, r.SkyModel} {
			if st, err := os.Stat(p); err == nil {
				total += st.Size()
			}
		}
	}
	return total
}

// EstimateResidentMB is the memory, in MB, a registry holding runs is
// expected to need.
func EstimateResidentMB(runs []RunFiles) int64 {
	return DatasetSize(runs) * planeExpansion / (1024 * 1024)
}

// CheckMemory logs a warning when the runs are unlikely to fit in half of the
// available memory. It reports whether they fit; unknown memory counts as fitting.
func CheckMemory(runs []RunFiles, logger *slog.Logger) bool {
	available, err := GetSystemMemory()
	if err != nil {
		logger.Debug("failed to get system memory info", "error", err)
		return true
	}
	need := EstimateResidentMB(runs)
	logger.Debug("memory feasibility check",
		"available_ram_mb", available,
		"estimated_resident_mb", need,
		"runs", len(runs),
	)
	if need < available/2 {
		return true
	}
	logger.Warn("runs may not fit in memory",
		"available_ram_mb", available,
		"estimated_resident_mb", need,
	)
	return false
}
