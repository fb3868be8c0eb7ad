package opencv

import (
	"os"
	"runtime"
	"strings"

	"presence-gate/config"

	gocv "gocv.io/x/gocv"
	log "github.com/sirupsen/logrus"
)

// DNN-Backend-Typen für die Konfiguration
const (
	BackendDefault = "default"
	BackendCUDA    = "cuda"
	BackendOpenCL  = "opencl"
	TargetCPU      = "cpu"
	TargetCUDA     = "cuda"
	TargetOpenCL   = "opencl"
)

var logFields = log.Fields{
	"component": "opencv",
}

// selectBackend liefert Backend und Target für die DNN-Netze
func selectBackend(cfg config.OpenCVConfig) (gocv.NetBackendType, gocv.NetTargetType) {
	backend := gocv.NetBackendDefault
	target := gocv.NetTargetCPU

	switch cfg.Pose.Backend {
	case "", BackendDefault:
		if !cfg.UseGPU {
			return backend, target
		}
		if haveNvidiaGPU() {
			log.WithFields(logFields).Info("NVIDIA GPU erkannt, verwende CUDA-Backend")
			return gocv.NetBackendCUDA, gocv.NetTargetCUDA
		}
		if haveAMDGPU() {
			log.WithFields(logFields).Info("AMD GPU erkannt, verwende OpenCL")
			return gocv.NetBackendOpenCV, gocv.NetTargetFP32
		}
		if runtime.GOOS == "darwin" && strings.HasPrefix(runtime.GOARCH, "arm") {
			log.WithFields(logFields).Info("Apple Silicon erkannt, verwende optimierte CPU-Version")
			return backend, target
		}
		log.WithFields(logFields).Warn("GPU-Nutzung aktiviert, aber keine unterstützte GPU erkannt. Verwende CPU.")
		return backend, target
	case BackendCUDA:
		backend = gocv.NetBackendCUDA
	case BackendOpenCL:
		backend = gocv.NetBackendOpenCV
	default:
		log.WithFields(logFields).Warnf("Unbekanntes Backend '%s' konfiguriert, verwende Standard", cfg.Pose.Backend)
	}

	switch cfg.Pose.Target {
	case TargetCUDA:
		target = gocv.NetTargetCUDA
	case TargetOpenCL:
		target = gocv.NetTargetFP32
	case TargetCPU, "":
	default:
		log.WithFields(logFields).Warnf("Unbekanntes Target '%s' konfiguriert, verwende CPU", cfg.Pose.Target)
	}
	return backend, target
}

// haveNvidiaGPU prüft, ob eine NVIDIA-GPU verfügbar ist
func haveNvidiaGPU() bool {
	// NVIDIA-Docker
	if os.Getenv("NVIDIA_VISIBLE_DEVICES") != "" || os.Getenv("NVIDIA_DRIVER_CAPABILITIES") != "" {
		return true
	}
	for _, path := range []string{
		"/usr/local/cuda/lib64/libcudart.so",
		"/usr/lib/x86_64-linux-gnu/libcuda.so",
		"/usr/lib/libcuda.so",
		"/usr/bin/nvidia-smi",
		"/usr/local/bin/nvidia-smi",
	} {
		if fileExists(path) {
			log.WithFields(logFields).Debugf("CUDA gefunden: %s", path)
			return true
		}
	}
	return false
}

// haveAMDGPU prüft, ob eine AMD-GPU verfügbar ist
func haveAMDGPU() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	return fileExists("/dev/kfd") || fileExists("/dev/dri/renderD128")
}

// loadNet lädt ein DNN-Netz und setzt Backend und Target
func loadNet(model, cfgFile string, backend gocv.NetBackendType, target gocv.NetTargetType) (gocv.Net, bool) {
	net := gocv.ReadNet(model, cfgFile)
	if net.Empty() {
		net.Close()
		return net, false
	}
	net.SetPreferableBackend(backend)
	net.SetPreferableTarget(target)
	log.WithFields(logFields).Debugf("DNN-Modell %s geladen (Backend %d, Target %d)", model, backend, target)
	return net, true
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
