package device

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	gopsnet "github.com/shirou/gopsutil/v4/net"

	"github.com/btnalit/routeros-aiops/internal/models"
)

// LocalClient satisfies the device contract by sampling the local host with
// gopsutil. Used for self-monitoring deployments and development; it answers
// the same paths a managed device would.
type LocalClient struct {
	diskPath string
}

// NewLocalClient creates a local client sampling the given filesystem root
// for disk usage ("/" when empty).
func NewLocalClient(diskPath string) *LocalClient {
	if diskPath == "" {
		diskPath = "/"
	}
	return &LocalClient{diskPath: diskPath}
}

// IsConnected always reports true; the local host is always reachable.
func (c *LocalClient) IsConnected() bool {
	return true
}

// Print answers the device paths the pipeline consumes.
func (c *LocalClient) Print(ctx context.Context, path string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch path {
	case "/system/resource":
		return c.systemResource(ctx)
	case "/interface":
		return c.interfaces(ctx)
	case "/system/identity":
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "localhost"
		}
		return []Record{{"name": hostname}}, nil
	case "/ip/address":
		return nil, nil
	default:
		return nil, models.E(models.KindNotFound, "unknown device path %q", path)
	}
}

// ExecuteRaw is unsupported locally; script execution belongs to real
// devices only.
func (c *LocalClient) ExecuteRaw(ctx context.Context, path string, params map[string]string) (string, error) {
	return "", models.E(models.KindDependency, "local device client cannot execute %q", path)
}

func (c *LocalClient) systemResource(ctx context.Context) ([]Record, error) {
	record := Record{}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		record["cpu-load"] = strconv.FormatFloat(percents[0], 'f', 1, 64)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read memory stats: %w", err)
	}
	record["total-memory"] = strconv.FormatUint(vm.Total, 10)
	record["free-memory"] = strconv.FormatUint(vm.Available, 10)

	du, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil {
		return nil, fmt.Errorf("read disk stats: %w", err)
	}
	record["total-hdd-space"] = strconv.FormatUint(du.Total, 10)
	record["free-hdd-space"] = strconv.FormatUint(du.Free, 10)

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		record["uptime"] = formatUptime(time.Duration(uptime) * time.Second)
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		record["board-name"] = info.Platform
		record["version"] = info.PlatformVersion
	}

	return []Record{record}, nil
}

func (c *LocalClient) interfaces(ctx context.Context) ([]Record, error) {
	counters, err := gopsnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("read interface counters: %w", err)
	}

	up := make(map[string]bool)
	if ifaces, err := gopsnet.InterfacesWithContext(ctx); err == nil {
		for _, ifc := range ifaces {
			for _, flag := range ifc.Flags {
				if flag == "up" {
					up[ifc.Name] = true
				}
			}
		}
	}

	records := make([]Record, 0, len(counters))
	for _, counter := range counters {
		running := "false"
		if up[counter.Name] {
			running = "true"
		}
		records = append(records, Record{
			"name":       counter.Name,
			"running":    running,
			"rx-byte":    strconv.FormatUint(counter.BytesRecv, 10),
			"tx-byte":    strconv.FormatUint(counter.BytesSent, 10),
			"rx-packet":  strconv.FormatUint(counter.PacketsRecv, 10),
			"tx-packet":  strconv.FormatUint(counter.PacketsSent, 10),
			"rx-error":   strconv.FormatUint(counter.Errin, 10),
			"tx-error":   strconv.FormatUint(counter.Errout, 10),
			"rx-drop":    strconv.FormatUint(counter.Dropin, 10),
			"tx-drop":    strconv.FormatUint(counter.Dropout, 10),
		})
	}
	return records, nil
}

// formatUptime renders a duration in the device's human-readable uptime
// shape, e.g. "1w2d3h4m5s".
func formatUptime(d time.Duration) string {
	secs := int64(d.Seconds())
	weeks := secs / (7 * 86400)
	secs -= weeks * 7 * 86400
	days := secs / 86400
	secs -= days * 86400
	hours := secs / 3600
	secs -= hours * 3600
	mins := secs / 60
	secs -= mins * 60

	out := ""
	if weeks > 0 {
		out += strconv.FormatInt(weeks, 10) + "w"
	}
	if days > 0 {
		out += strconv.FormatInt(days, 10) + "d"
	}
	if hours > 0 {
		out += strconv.FormatInt(hours, 10) + "h"
	}
	if mins > 0 {
		out += strconv.FormatInt(mins, 10) + "m"
	}
	out += strconv.FormatInt(secs, 10) + "s"
	return out
}
