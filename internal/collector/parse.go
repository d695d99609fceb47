package collector

import (
	"regexp"
	"strconv"
	"time"

	"github.com/btnalit/routeros-aiops/internal/device"
	"github.com/btnalit/routeros-aiops/internal/models"
)

var uptimeRe = regexp.MustCompile(`(\d+)([wdhms])`)

// parseUptime converts the device's human-readable uptime ("1w2d3h4m5s",
// any subset of units) to seconds. Unknown input yields 0.
func parseUptime(s string) int64 {
	var total int64
	for _, m := range uptimeRe.FindAllStringSubmatch(s, -1) {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		switch m[2] {
		case "w":
			total += n * 7 * 86400
		case "d":
			total += n * 86400
		case "h":
			total += n * 3600
		case "m":
			total += n * 60
		case "s":
			total += n
		}
	}
	return total
}

// parseSystemSample maps a /system/resource record into a sample.
func parseSystemSample(r device.Record, now time.Time) *models.SystemSample {
	memTotal := r.Uint("total-memory")
	memFree := r.Uint("free-memory")
	diskTotal := r.Uint("total-hdd-space")
	diskFree := r.Uint("free-hdd-space")

	sample := &models.SystemSample{
		Timestamp: models.NewMillis(now),
		CPUPct:    clampPct(r.Float("cpu-load")),
		MemTotal:  memTotal,
		MemUsed:   memTotal - min(memFree, memTotal),
		DiskTotal: diskTotal,
		DiskUsed:  diskTotal - min(diskFree, diskTotal),
		UptimeSec: parseUptime(r.Str("uptime")),
	}
	if memTotal > 0 {
		sample.MemFreePct = clampPct(float64(memFree) / float64(memTotal) * 100)
	}
	if diskTotal > 0 {
		sample.DiskFreePct = clampPct(float64(diskFree) / float64(diskTotal) * 100)
	}
	return sample
}

// parseInterfaceSample maps one /interface record into a sample.
func parseInterfaceSample(r device.Record, now time.Time) models.InterfaceSample {
	status := models.InterfaceDown
	if r.Str("running") == "true" {
		status = models.InterfaceUp
	}
	return models.InterfaceSample{
		Timestamp: models.NewMillis(now),
		Name:      r.Str("name"),
		Status:    status,
		RxBytes:   r.Uint("rx-byte"),
		TxBytes:   r.Uint("tx-byte"),
		RxPackets: r.Uint("rx-packet"),
		TxPackets: r.Uint("tx-packet"),
		RxErrors:  r.Uint("rx-error"),
		TxErrors:  r.Uint("tx-error"),
	}
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
