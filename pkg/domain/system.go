package domain

import (
	"math"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/system"
)

const bytesPerGB = 1024 * 1024 * 1024

// SystemInfo summarises GET /info.
type SystemInfo struct {
	Containers        int    `json:"containers" yaml:"containers"`
	ContainersRunning int    `json:"containers_running" yaml:"containers_running"`
	ContainersPaused  int    `json:"containers_paused" yaml:"containers_paused"`
	ContainersStopped int    `json:"containers_stopped" yaml:"containers_stopped"`
	Images            int    `json:"images" yaml:"images"`
	ServerVersion     string `json:"server_version" yaml:"server_version"`
	OperatingSystem   string `json:"operating_system" yaml:"operating_system"`
	Architecture      string `json:"architecture" yaml:"architecture"`
	MemTotal          int64  `json:"mem_total" yaml:"mem_total"`
}

// FromSystemInfo maps the engine's info document. Absent counters stay zero
// and absent strings become "unknown".
func FromSystemInfo(info system.Info) SystemInfo {
	mem := info.MemTotal
	if mem < 0 {
		mem = 0
	}
	return SystemInfo{
		Containers:        info.Containers,
		ContainersRunning: info.ContainersRunning,
		ContainersPaused:  info.ContainersPaused,
		ContainersStopped: info.ContainersStopped,
		Images:            info.Images,
		ServerVersion:     orUnknown(info.ServerVersion),
		OperatingSystem:   orUnknown(info.OperatingSystem),
		Architecture:      orUnknown(info.Architecture),
		MemTotal:          mem,
	}
}

// MemTotalGB is total memory in GiB rounded to two decimals.
func (s SystemInfo) MemTotalGB() float64 {
	return math.Round(float64(s.MemTotal)/bytesPerGB*100) / 100
}

// EngineVersion is the answer to the GET /version connectivity probe.
type EngineVersion struct {
	Version    string `json:"version" yaml:"version"`
	APIVersion string `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	OS         string `json:"os,omitempty" yaml:"os,omitempty"`
	Arch       string `json:"arch,omitempty" yaml:"arch,omitempty"`
	GoVersion  string `json:"go_version,omitempty" yaml:"go_version,omitempty"`
}

// FromVersion maps the version document; a missing version reads "unknown".
func FromVersion(v types.Version) EngineVersion {
	return EngineVersion{
		Version:    orUnknown(v.Version),
		APIVersion: v.APIVersion,
		OS:         v.Os,
		Arch:       v.Arch,
		GoVersion:  v.GoVersion,
	}
}
