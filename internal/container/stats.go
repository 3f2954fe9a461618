package container

import (
	"context"
	"encoding/json"
)

// ContainerStats mirrors the JSON shape of `docker stats --no-stream`,
// carried forward from the teacher's previously-unused model types and wired
// here as an optional per-test diagnostic (not part of the wire-stable
// JobResult shape), per SPEC_FULL.md §11.
type ContainerStats struct {
	Name        string      `json:"name"`
	ID          string      `json:"id"`
	Read        string      `json:"read"`
	PreRead     string      `json:"preread"`
	PidsStats   PidsStats   `json:"pids_stats"`
	CPUStats    CPUStats    `json:"cpu_stats"`
	PreCPUStats CPUStats    `json:"precpu_stats"`
	MemoryStats MemoryStats `json:"memory_stats"`
}

type PidsStats struct {
	Current int `json:"current"`
	Limit   int `json:"limit"`
}

type CPUStats struct {
	CPUUsage       CPUUsage       `json:"cpu_usage"`
	SystemCPUUsage int64          `json:"system_cpu_usage"`
	OnlineCPUs     int            `json:"online_cpus"`
	ThrottlingData ThrottlingData `json:"throttling_data"`
}

type CPUUsage struct {
	TotalUsage        int64 `json:"total_usage"`
	UsageInKernelMode int64 `json:"usage_in_kernelmode"`
	UsageInUserMode   int64 `json:"usage_in_usermode"`
}

type ThrottlingData struct {
	Periods          int `json:"periods"`
	ThrottledPeriods int `json:"throttled_periods"`
	ThrottledTime    int `json:"throttled_time"`
}

type MemoryStats struct {
	Usage int64 `json:"usage"`
	Limit int64 `json:"limit"`
}

// Stats fetches a single, non-streaming stats snapshot for the container,
// used for post-hoc diagnostic logging on MemoryLimitExceeded verdicts.
func (d *Driver) Stats(ctx context.Context, h Handle) (ContainerStats, error) {
	resp, err := d.client.ContainerStatsOneShot(ctx, h.ID)
	if err != nil {
		return ContainerStats{}, err
	}
	defer resp.Body.Close()

	var stats ContainerStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return ContainerStats{}, err
	}
	return stats, nil
}

// MemoryUsageRatio returns usage/limit (0 when the limit is unknown); the
// orchestrators log it after an exec comes back OOM-killed.
func (s ContainerStats) MemoryUsageRatio() float64 {
	if s.MemoryStats.Limit == 0 {
		return 0
	}
	return float64(s.MemoryStats.Usage) / float64(s.MemoryStats.Limit)
}
