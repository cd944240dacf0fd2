// Package acceleration chooses the face detector backend for the dlib runtime.
// The HOG detector runs on any CPU. The CNN (MMOD) detector is more accurate
// and is only worth using when dlib can reach a CUDA device.
package acceleration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/MrCodeEU/attendface/pkg/logging"
)

// Backend represents a detector backend type.
type Backend string

const (
	// BackendHOG is the classical histogram-of-gradients detector (always available).
	BackendHOG Backend = "hog"

	// BackendCNN is the MMOD convolutional detector.
	BackendCNN Backend = "cnn"

	// BackendAuto selects CNN when a GPU and the detector model are present.
	BackendAuto Backend = "auto"
)

// CNNModelFile is the dlib model required by the CNN detector.
const CNNModelFile = "mmod_human_face_detector.dat"

// BackendInfo describes one detector backend on this host.
type BackendInfo struct {
	Backend     Backend
	Name        string
	Available   bool
	Accelerated bool
	Version     string
	DeviceName  string
	DeviceCount int
	Reason      string // why an unavailable backend was rejected
}

// Selector probes the host and picks a backend.
type Selector struct {
	modelPath string
	probeGPU  func() *BackendInfo
}

// NewSelector returns a selector that looks for detector models in modelPath.
func NewSelector(modelPath string) *Selector {
	return &Selector{
		modelPath: modelPath,
		probeGPU:  detectCUDA,
	}
}

// Detect reports every backend and whether it can run here.
func (s *Selector) Detect() map[Backend]*BackendInfo {
	backends := map[Backend]*BackendInfo{
		BackendHOG: {
			Backend:     BackendHOG,
			Name:        "HOG (dlib, CPU)",
			Available:   true,
			DeviceName:  getCPUName(),
			DeviceCount: runtime.NumCPU(),
		},
	}

	cnn := &BackendInfo{
		Backend: BackendCNN,
		Name:    "CNN (dlib MMOD)",
	}
	if _, err := os.Stat(filepath.Join(s.modelPath, CNNModelFile)); err != nil {
		cnn.Reason = fmt.Sprintf("%s not found in %s", CNNModelFile, s.modelPath)
	} else {
		cnn.Available = true
		if gpu := s.probeGPU(); gpu != nil {
			cnn.Accelerated = true
			cnn.DeviceName = gpu.DeviceName
			cnn.DeviceCount = gpu.DeviceCount
			cnn.Version = gpu.Version
		} else {
			cnn.DeviceName = "CPU"
		}
	}
	backends[BackendCNN] = cnn

	return backends
}

// Select resolves the preferred backend against what the host offers.
// An unavailable explicit choice falls back to HOG.
func (s *Selector) Select(preferred Backend) Backend {
	return selectBackend(preferred, s.Detect())
}

func selectBackend(preferred Backend, available map[Backend]*BackendInfo) Backend {
	if preferred != BackendAuto {
		if info, ok := available[preferred]; ok && info.Available {
			return preferred
		}
		reason := "unknown backend"
		if info, ok := available[preferred]; ok {
			reason = info.Reason
		}
		logging.Warnf("Requested detector backend %s not available (%s), falling back to HOG", preferred, reason)
		return BackendHOG
	}

	// The CNN detector without a GPU is several times slower than HOG,
	// so auto only picks it when it is accelerated.
	if info, ok := available[BackendCNN]; ok && info.Available && info.Accelerated {
		return BackendCNN
	}
	return BackendHOG
}

// detectCUDA detects NVIDIA CUDA availability.
func detectCUDA() *BackendInfo {
	cmd := exec.Command("nvidia-smi", "--query-gpu=name,driver_version", "--format=csv,noheader")
	output, err := cmd.Output()
	if err != nil {
		return nil
	}
	return parseNvidiaSMI(string(output))
}

func parseNvidiaSMI(output string) *BackendInfo {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil
	}

	info := &BackendInfo{
		Name:        "NVIDIA CUDA",
		Available:   true,
		Accelerated: true,
		DeviceCount: len(lines),
	}
	parts := strings.Split(lines[0], ",")
	info.DeviceName = strings.TrimSpace(parts[0])
	if len(parts) >= 2 {
		info.Version = strings.TrimSpace(parts[1])
	}
	return info
}

// getCPUName returns the CPU name.
func getCPUName() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "Unknown CPU"
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "model name") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}

	return "Unknown CPU"
}
