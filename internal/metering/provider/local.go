// Package provider contains telemetry sources for the meter.
package provider

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	meteringdomain "github.com/hostlify/hostlify/internal/metering/domain"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// Local reads host-level metrics. It is the provider used when services run
// co-located with the control plane; a fleet deployment swaps in an agent
// backed provider instead.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (l *Local) Read(ctx context.Context, _ snowflake.ID) (meteringdomain.Telemetry, error) {
	var t meteringdomain.Telemetry

	cpuUsage, err := cpu.Percent(time.Second, false)
	if err != nil {
		return t, err
	}
	if len(cpuUsage) > 0 {
		t.CPUUsage = int64(cpuUsage[0])
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return t, err
	}
	t.RAMUsage = int64(memInfo.Used / 1024 / 1024)

	diskInfo, err := disk.Usage("/")
	if err != nil {
		return t, err
	}
	t.StorageUsage = int64(diskInfo.Used / 1024 / 1024)

	netInfo, err := net.IOCounters(false)
	if err != nil {
		return t, err
	}
	if len(netInfo) > 0 {
		t.BandwidthUsage = int64((netInfo[0].BytesSent + netInfo[0].BytesRecv) / 1024 / 1024)
	}

	_ = ctx
	return t, nil
}
