package fetcher

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ChannelEnergy is the derived interval energy for one MPPT/string channel.
type ChannelEnergy struct {
	Key       string // counter key, e.g. "mppt_1_cap"
	Number    int    // channel number parsed from the key
	EnergyKWh float64
}

// DeviceChannels holds the derived channel energies of one device in a
// history window. A device appears here iff the window contained at least
// one sample for it, even when every channel was dropped as silent.
type DeviceChannels struct {
	DevID    int64
	Channels []ChannelEnergy
}

// mpptChannelNumber extracts the channel number from an MPPT counter key.
// Keys follow the "mppt_<n>_cap" convention; aggregate keys containing
// "total" are not channels.
func mpptChannelNumber(key string) (int, bool) {
	if !strings.HasPrefix(key, "mppt_") || !strings.HasSuffix(key, "_cap") {
		return 0, false
	}
	if strings.Contains(key, "total") {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(key, "mppt_%d_cap", &n); err != nil {
		return 0, false
	}
	return n, true
}

// DeriveDeviceChannels converts a window of cumulative-counter samples into
// per-device, per-channel interval energy: for each MPPT counter key, last
// minus first chronologically, rounded to two decimals. Channels whose first
// and last counters are both exactly zero are dropped — that is "no signal",
// not zero production, and keeping them would invent channels the device
// does not have.
func DeriveDeviceChannels(samples []HistorySample) []DeviceChannels {
	byDevice := make(map[int64][]HistorySample)
	var order []int64
	for _, s := range samples {
		if _, seen := byDevice[s.DevID]; !seen {
			order = append(order, s.DevID)
		}
		byDevice[s.DevID] = append(byDevice[s.DevID], s)
	}

	out := make([]DeviceChannels, 0, len(order))
	for _, devID := range order {
		devSamples := byDevice[devID]
		sort.SliceStable(devSamples, func(i, j int) bool {
			return devSamples[i].CollectTime < devSamples[j].CollectTime
		})
		out = append(out, DeviceChannels{
			DevID:    devID,
			Channels: deriveChannels(devSamples[0], devSamples[len(devSamples)-1]),
		})
	}
	return out
}

func deriveChannels(first, last HistorySample) []ChannelEnergy {
	var keys []string
	for key := range first.Counters {
		if _, ok := mpptChannelNumber(key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var channels []ChannelEnergy
	for _, key := range keys {
		startVal := first.Counters[key]
		endVal, ok := last.Counters[key]
		if !ok {
			continue
		}
		if startVal == 0 && endVal == 0 {
			continue
		}
		n, _ := mpptChannelNumber(key)
		channels = append(channels, ChannelEnergy{
			Key:       key,
			Number:    n,
			EnergyKWh: round2(endVal - startVal),
		})
	}
	return channels
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SerialSuffix returns the last 8 digits of a numeric device id, used to
// match history-KPI device ids against registered serials. Shorter ids are
// returned whole.
func SerialSuffix(devID int64) string {
	s := fmt.Sprintf("%d", devID)
	if len(s) > 8 {
		return s[len(s)-8:]
	}
	return s
}
