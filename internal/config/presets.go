package config

import (
	"sort"

	"github.com/perfgate/perfgate/internal/probe"
)

// bytesPerSec converts kilobits per second to the protocol's bytes per
// second.
func bytesPerSec(kbps float64) float64 {
	return kbps * 1000 / 8
}

// networkPresets are the named network profiles. Values match the
// established emulation profiles for each link class.
var networkPresets = map[string]probe.NetworkConditions{
	"slow-3g": {
		LatencyMs:     400,
		DownloadBytes: bytesPerSec(500),
		UploadBytes:   bytesPerSec(500),
	},
	"fast-3g": {
		LatencyMs:     150,
		DownloadBytes: bytesPerSec(1600),
		UploadBytes:   bytesPerSec(750),
	},
	"slow-4g": {
		LatencyMs:     100,
		DownloadBytes: bytesPerSec(3000),
		UploadBytes:   bytesPerSec(1500),
	},
	"fast-4g": {
		LatencyMs:     20,
		DownloadBytes: bytesPerSec(10000),
		UploadBytes:   bytesPerSec(5000),
	},
	"offline": {
		Offline:       true,
		LatencyMs:     0,
		DownloadBytes: 0,
		UploadBytes:   0,
	},
}

// Preset looks up a named network profile.
func Preset(name string) (probe.NetworkConditions, bool) {
	c, ok := networkPresets[name]
	return c, ok
}

// PresetNames returns the available preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(networkPresets))
	for name := range networkPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
