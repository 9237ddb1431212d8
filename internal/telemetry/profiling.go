package telemetry

import (
	"fmt"
	"runtime"

	"github.com/grafana/pyroscope-go"
)

// ProfilingConfig contains configuration for Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether profiling is enabled
	Enabled bool

	// ServiceName is the application name shown in Pyroscope
	ServiceName string

	// ServiceVersion is the application version
	ServiceVersion string

	// Endpoint is the Pyroscope server URL (e.g., "http://localhost:4040")
	Endpoint string

	// Role tags profiles with the process role (authority or datanode)
	Role string

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string
}

var (
	// profiler is the global Pyroscope profiler instance
	profiler *pyroscope.Profiler

	// profilingEnabled indicates whether profiling is active
	profilingEnabled bool
)

// InitProfiling initializes Pyroscope continuous profiling.
// Returns a shutdown function that should be called to stop profiling.
func InitProfiling(cfg ProfilingConfig) (shutdown func() error, err error) {
	if !cfg.Enabled {
		profilingEnabled = false
		return func() error { return nil }, nil
	}

	profilingEnabled = true

	types := make([]pyroscope.ProfileType, 0, len(cfg.ProfileTypes))
	for _, pt := range cfg.ProfileTypes {
		profileType, err := parseProfileType(pt)
		if err != nil {
			return nil, fmt.Errorf("invalid profile type %q: %w", pt, err)
		}
		types = append(types, profileType)
	}

	// Mutex and block profiles only collect once runtime sampling is on.
	for _, pt := range cfg.ProfileTypes {
		switch pt {
		case "mutex_count", "mutex_duration":
			runtime.SetMutexProfileFraction(5)
		case "block_count", "block_duration":
			runtime.SetBlockProfileRate(5)
		}
	}

	profiler, err = pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.Endpoint,
		Tags: map[string]string{
			"version": cfg.ServiceVersion,
			"role":    cfg.Role,
		},
		ProfileTypes: types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}

	shutdown = func() error {
		if profiler != nil {
			return profiler.Stop()
		}
		return nil
	}

	return shutdown, nil
}

// IsProfilingEnabled returns whether profiling is enabled
func IsProfilingEnabled() bool {
	return profilingEnabled
}

var profileTypes = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

// parseProfileType converts a string profile type to Pyroscope ProfileType.
func parseProfileType(pt string) (pyroscope.ProfileType, error) {
	t, ok := profileTypes[pt]
	if !ok {
		return pyroscope.ProfileCPU, fmt.Errorf("unknown profile type: %s", pt)
	}
	return t, nil
}
