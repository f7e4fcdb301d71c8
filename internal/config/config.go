// Package config parses the ISHMEM_* environment variables into a
// typed Config, reading explicit fields rather than scattering
// os.Getenv calls through the codebase.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ishmem-go/ishmem/internal/constants"
	"github.com/ishmem-go/ishmem/internal/logging"
)

// Config holds every tunable ISHMEM_* recognizes.
type Config struct {
	SymmetricSize uint64 // ISHMEM_SYMMETRIC_SIZE
	RuntimeLib    string // ISHMEM_RUNTIME (backend name passed to runtime.Load)
	RingSize      uint32 // ISHMEM_RING_SIZE (Non-goal-adjacent tuning knob)
	MwaitBurst    int    // ISHMEM_MWAIT_BURST
	IdleSleep     time.Duration
	ProxyCPU      int  // ISHMEM_PROXY_CPU, -1 disables affinity pinning
	EnableMetrics bool // ISHMEM_ENABLE_METRICS
	LogLevel      logging.Level

	// Library name definitions: the shared library dlopen'd for each
	// backend's native symbols (internal/runtime.Load's equivalent of
	// dlopen/dlsym resolution).
	ShmemLibName string // ISHMEM_SHMEM_LIB_NAME
	MPILibName   string // ISHMEM_MPI_LIB_NAME
	PMILibName   string // ISHMEM_PMI_LIB_NAME

	// IPC definitions.
	EnableGPUIPC      bool // ISHMEM_ENABLE_GPU_IPC
	EnableGPUIPCPidfd bool // ISHMEM_ENABLE_GPU_IPC_PIDFD

	// Symmetric heap definitions.
	EnableAccessibleHostHeap bool // ISHMEM_ENABLE_ACCESSIBLE_HOST_HEAP

	// Tuning parameters.
	NBICount int // ISHMEM_NBI_COUNT: nbi ops allowed in flight before a forced drain.

	// Teams.
	TeamsMax           int  // ISHMEM_TEAMS_MAX
	TeamSharedOnlySelf bool // ISHMEM_TEAM_SHARED_ONLY_SELF

	// Runtime definitions.
	RuntimeUseOSHMPI bool // ISHMEM_RUNTIME_USE_OSHMPI

	// Diagnostics.
	Debug              bool // ISHMEM_DEBUG
	EnableVerbosePrint bool // ISHMEM_ENABLE_VERBOSE_PRINT
	StackPrintLimit    int  // ISHMEM_STACK_PRINT_LIMIT
}

// Default returns the library's built-in defaults, matching
// internal/constants.
func Default() Config {
	return Config{
		SymmetricSize: constants.DefaultSymmetricSize,
		RuntimeLib:    "loopback",
		RingSize:      constants.DefaultRingSize,
		MwaitBurst:    constants.DefaultMWaitBurst,
		IdleSleep:     constants.ProxyIdleSleep,
		ProxyCPU:      -1,
		EnableMetrics: false,
		LogLevel:      logging.LevelInfo,

		ShmemLibName: "libsma.so",
		MPILibName:   "libmpi.so",
		PMILibName:   "libpmi.so",

		EnableGPUIPC:      true,
		EnableGPUIPCPidfd: true,

		EnableAccessibleHostHeap: false,

		NBICount: constants.DefaultNBICount,

		TeamsMax:           constants.DefaultTeamsMax,
		TeamSharedOnlySelf: false,

		RuntimeUseOSHMPI: false,

		Debug:              false,
		EnableVerbosePrint: false,
		StackPrintLimit:    10,
	}
}

// FromEnviron builds a Config from the process environment, starting
// from Default and overriding each field whose ISHMEM_* variable is
// set. Unknown ISHMEM_* names are logged and ignored rather than
// treated as fatal, since a newer binary must tolerate an older
// deployment's leftover env vars.
func FromEnviron() (Config, error) {
	c := Default()
	seen := map[string]bool{}

	if v, ok := lookup("ISHMEM_SYMMETRIC_SIZE", seen); ok {
		n, err := parseSize(v)
		if err != nil {
			return c, fmt.Errorf("config: ISHMEM_SYMMETRIC_SIZE: %w", err)
		}
		c.SymmetricSize = n
	}
	if v, ok := lookup("ISHMEM_RUNTIME", seen); ok {
		c.RuntimeLib = v
	}
	if v, ok := lookup("ISHMEM_RING_SIZE", seen); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return c, fmt.Errorf("config: ISHMEM_RING_SIZE: %w", err)
		}
		c.RingSize = uint32(n)
	}
	if v, ok := lookup("ISHMEM_MWAIT_BURST", seen); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("config: ISHMEM_MWAIT_BURST: %w", err)
		}
		c.MwaitBurst = n
	}
	if v, ok := lookup("ISHMEM_IDLE_SLEEP_US", seen); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("config: ISHMEM_IDLE_SLEEP_US: %w", err)
		}
		c.IdleSleep = time.Duration(n) * time.Microsecond
	}
	if v, ok := lookup("ISHMEM_PROXY_CPU", seen); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("config: ISHMEM_PROXY_CPU: %w", err)
		}
		c.ProxyCPU = n
	}
	if v, ok := lookup("ISHMEM_ENABLE_METRICS", seen); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, fmt.Errorf("config: ISHMEM_ENABLE_METRICS: %w", err)
		}
		c.EnableMetrics = b
	}
	if v, ok := lookup("ISHMEM_LOG_LEVEL", seen); ok {
		lvl, err := parseLogLevel(v)
		if err != nil {
			return c, fmt.Errorf("config: ISHMEM_LOG_LEVEL: %w", err)
		}
		c.LogLevel = lvl
	}

	if v, ok := lookup("ISHMEM_SHMEM_LIB_NAME", seen); ok {
		c.ShmemLibName = v
	}
	if v, ok := lookup("ISHMEM_MPI_LIB_NAME", seen); ok {
		c.MPILibName = v
	}
	if v, ok := lookup("ISHMEM_PMI_LIB_NAME", seen); ok {
		c.PMILibName = v
	}

	if err := parseBoolVar("ISHMEM_ENABLE_GPU_IPC", seen, &c.EnableGPUIPC); err != nil {
		return c, err
	}
	if err := parseBoolVar("ISHMEM_ENABLE_GPU_IPC_PIDFD", seen, &c.EnableGPUIPCPidfd); err != nil {
		return c, err
	}
	if err := parseBoolVar("ISHMEM_ENABLE_ACCESSIBLE_HOST_HEAP", seen, &c.EnableAccessibleHostHeap); err != nil {
		return c, err
	}

	if v, ok := lookup("ISHMEM_NBI_COUNT", seen); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("config: ISHMEM_NBI_COUNT: %w", err)
		}
		c.NBICount = n
	}

	if v, ok := lookup("ISHMEM_TEAMS_MAX", seen); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("config: ISHMEM_TEAMS_MAX: %w", err)
		}
		if n < constants.MinTeamsMax {
			n = constants.MinTeamsMax
		}
		c.TeamsMax = n
	}
	if err := parseBoolVar("ISHMEM_TEAM_SHARED_ONLY_SELF", seen, &c.TeamSharedOnlySelf); err != nil {
		return c, err
	}

	if err := parseBoolVar("ISHMEM_RUNTIME_USE_OSHMPI", seen, &c.RuntimeUseOSHMPI); err != nil {
		return c, err
	}

	if err := parseBoolVar("ISHMEM_DEBUG", seen, &c.Debug); err != nil {
		return c, err
	}
	if err := parseBoolVar("ISHMEM_ENABLE_VERBOSE_PRINT", seen, &c.EnableVerbosePrint); err != nil {
		return c, err
	}
	if v, ok := lookup("ISHMEM_STACK_PRINT_LIMIT", seen); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("config: ISHMEM_STACK_PRINT_LIMIT: %w", err)
		}
		c.StackPrintLimit = n
	}

	warnUnknown(seen)
	return c, nil
}

// parseBoolVar looks up name and, if set, parses it as a bool
// with strconv.ParseBool ("0"/"false" ⇒ false, "1"/"true" ⇒ true; any
// value ParseBool does not accept is an error) into *dst.
func parseBoolVar(name string, seen map[string]bool, dst *bool) error {
	v, ok := lookup(name, seen)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	*dst = b
	return nil
}

func lookup(name string, seen map[string]bool) (string, bool) {
	seen[name] = true
	v, ok := os.LookupEnv(name)
	return v, ok
}

// warnUnknown scans the environment for ISHMEM_* names this parser
// doesn't recognize and logs them, instead of silently accepting a
// typo'd tuning knob.
func warnUnknown(known map[string]bool) {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(name, "ISHMEM_") {
			continue
		}
		if known[name] {
			continue
		}
		logging.Default().Warnf("config: unrecognized environment variable %s", name)
	}
}

func parseLogLevel(v string) (logging.Level, error) {
	switch strings.ToUpper(v) {
	case "DEBUG":
		return logging.LevelDebug, nil
	case "INFO":
		return logging.LevelInfo, nil
	case "WARN", "WARNING":
		return logging.LevelWarn, nil
	case "ERROR":
		return logging.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", v)
	}
}

// parseSize parses a byte count with an optional K/M/G/T suffix
// (ISHMEM_SYMMETRIC_SIZE), e.g. "256M" == 256<<20.
func parseSize(v string) (uint64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("empty value")
	}
	mult := uint64(1)
	suffix := v[len(v)-1]
	switch suffix {
	case 'k', 'K':
		mult = 1 << 10
		v = v[:len(v)-1]
	case 'm', 'M':
		mult = 1 << 20
		v = v[:len(v)-1]
	case 'g', 'G':
		mult = 1 << 30
		v = v[:len(v)-1]
	case 't', 'T':
		mult = 1 << 40
		v = v[:len(v)-1]
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}
