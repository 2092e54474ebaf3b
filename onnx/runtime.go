package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const libEnv = "ONNXRUNTIME_LIB"

var (
	envOnce sync.Once
	envErr  error
)

// LibPath picks the ONNX Runtime shared library: an explicit path first, then
// $ONNXRUNTIME_LIB, then the usual install locations for this OS.
func LibPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(libEnv); p != "" {
		return p
	}
	for _, p := range candidates(runtime.GOOS) {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func candidates(goos string) []string {
	switch goos {
	case "linux":
		return []string{
			filepath.Join("onnxlibs", "libonnxruntime.so"),
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/libonnxruntime.so",
		}
	case "darwin":
		return []string{
			filepath.Join("onnxlibs", "libonnxruntime.dylib"),
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
		}
	case "windows":
		return []string{filepath.Join("onnxlibs", "onnxruntime.dll"), "onnxruntime.dll"}
	default:
		return nil
	}
}

// Init loads the runtime library and initializes the process-wide environment.
// Only the first call has any effect.
func Init(explicit string) error {
	envOnce.Do(func() {
		path := LibPath(explicit)
		if path == "" {
			envErr = errors.New("ONNX Runtime library not found, set libonnx or " + libEnv)
			return
		}
		slog.Info("Using ONNX Runtime library", slog.String("path", path))
		ort.SetSharedLibraryPath(path)
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
		}
	})
	return envErr
}

func Destroy() {
	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			slog.Warn("Failed to destroy ONNX Runtime environment", slog.String("error", err.Error()))
		}
	}
}
