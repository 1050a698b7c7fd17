package detector

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/footfall/internal/config"
	"github.com/banshee-data/footfall/internal/monitoring"
)

// ErrDeviceUnavailable is returned when the requested compute device
// cannot be used.
var ErrDeviceUnavailable = errors.New("compute device unavailable")

// DeviceProber checks for accelerator availability. The zero value probes
// the host with nvidia-smi and the /dev/nvidia* device nodes.
type DeviceProber struct {
	// ListGPUs returns the output of `nvidia-smi -L`.
	ListGPUs func() (string, error)
	// Glob matches device nodes.
	Glob func(pattern string) ([]string, error)
}

func (p DeviceProber) listGPUs() (string, error) {
	if p.ListGPUs != nil {
		return p.ListGPUs()
	}
	out, err := exec.Command("nvidia-smi", "-L").Output()
	return string(out), err
}

func (p DeviceProber) glob(pattern string) ([]string, error) {
	if p.Glob != nil {
		return p.Glob(pattern)
	}
	return filepath.Glob(pattern)
}

// gpuCount returns how many NVIDIA GPUs the driver reports, or an error
// when the driver or its device nodes are missing.
func (p DeviceProber) gpuCount() (int, error) {
	out, err := p.listGPUs()
	if err != nil {
		return 0, fmt.Errorf("nvidia-smi: %w", err)
	}
	nodes, _ := p.glob("/dev/nvidia*")
	if len(nodes) == 0 {
		return 0, errors.New("no /dev/nvidia* device nodes")
	}
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "GPU ") {
			n++
		}
	}
	if n == 0 {
		return 0, errors.New("nvidia-smi lists no GPUs")
	}
	return n, nil
}

// Resolve checks that device can be used and returns its canonical name.
// An empty device picks "cuda:0" when a GPU is present and "cpu" otherwise.
func (p DeviceProber) Resolve(device string) (string, error) {
	d, err := config.NormalizeDevice(device)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	switch d {
	case "cpu":
		return "cpu", nil
	case "":
		if _, err := p.gpuCount(); err != nil {
			monitoring.Diagf("no GPU detected (%v), using cpu", err)
			return "cpu", nil
		}
		return "cuda:0", nil
	}

	idx := 0
	if strings.HasPrefix(d, "cuda:") {
		idx, _ = strconv.Atoi(strings.TrimPrefix(d, "cuda:"))
	}
	n, err := p.gpuCount()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, d, err)
	}
	if idx >= n {
		return "", fmt.Errorf("%w: %s requested but only %d GPU(s) present", ErrDeviceUnavailable, d, n)
	}
	return fmt.Sprintf("cuda:%d", idx), nil
}
