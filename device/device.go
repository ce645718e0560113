// Package device resolves which accelerator the current process should place
// its training batches on.
//
// The lookup follows the distributed launcher convention: a process started
// with LOCAL_RANK=N owns accelerator N. AUDIOSFT_DEVICE overrides the choice
// with "cpu", "cuda" or "cuda:N".
package device

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// EnvLocalRank is set by distributed launchers to the per-node process rank.
	EnvLocalRank = "LOCAL_RANK"
	// EnvDevice forces a device, e.g. "cpu" or "cuda:1".
	EnvDevice = "AUDIOSFT_DEVICE"
)

const (
	CPU  = "cpu"
	CUDA = "cuda"
)

// Device identifies a placement target.
type Device struct {
	Kind  string
	Index int
}

// String returns the device in "kind:index" form ("cpu" for the host).
func (d Device) String() string {
	if d.IsHost() {
		return CPU
	}
	return fmt.Sprintf("%s:%d", d.Kind, d.Index)
}

// IsHost reports whether the device is the host CPU.
func (d Device) IsHost() bool {
	return d.Kind == CPU || d.Kind == ""
}

// Parse reads a device string such as "cpu", "cuda" or "cuda:2".
func Parse(s string) (Device, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == CPU {
		return Device{Kind: CPU}, nil
	}
	kind, idx, hasIdx := strings.Cut(s, ":")
	if kind != CUDA {
		return Device{}, fmt.Errorf("unknown device kind %q", kind)
	}
	d := Device{Kind: CUDA}
	if hasIdx {
		n, err := strconv.Atoi(idx)
		if err != nil || n < 0 {
			return Device{}, fmt.Errorf("invalid device index %q", idx)
		}
		d.Index = n
	}
	return d, nil
}

// Current returns the device for this process. Invalid environment values
// fall back to the host.
func Current() Device {
	return current(os.LookupEnv)
}

func current(lookup func(string) (string, bool)) Device {
	if v, ok := lookup(EnvDevice); ok {
		if d, err := Parse(v); err == nil {
			return d
		}
	}
	if v, ok := lookup(EnvLocalRank); ok {
		if rank, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rank >= 0 {
			return Device{Kind: CUDA, Index: rank}
		}
	}
	return Device{Kind: CPU}
}
