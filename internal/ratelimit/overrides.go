package ratelimit

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Per-backend RPM budgets live in an optional backends.yaml so operators can
// tighten limits without a redeploy.

type overridesFile struct {
	RateLimits struct {
		DefaultRPM       int            `yaml:"default_rpm"`
		BackendOverrides map[string]int `yaml:"backend_overrides"`
	} `yaml:"rate_limits"`
}

var (
	mu          sync.RWMutex
	loaded      *overridesFile
	initialized bool
)

var defaultPaths = []string{
	os.Getenv("BACKENDS_CONFIG_PATH"),
	"/app/config/backends.yaml",
	"./config/backends.yaml",
}

func loadLocked() {
	var cfg overridesFile
	for _, p := range defaultPaths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var tmp overridesFile
		if err := yaml.Unmarshal(data, &tmp); err != nil {
			log.Printf("WARNING: failed to unmarshal backend rate limits from %s: %v", p, err)
			continue
		}
		cfg = tmp
		log.Printf("Loaded backend rate limits from %s", p)
		break
	}
	if cfg.RateLimits.DefaultRPM == 0 && len(cfg.RateLimits.BackendOverrides) == 0 {
		if path, ok := findUpConfig(); ok {
			if data, err := os.ReadFile(path); err == nil {
				var tmp overridesFile
				if err := yaml.Unmarshal(data, &tmp); err == nil {
					cfg = tmp
					log.Printf("Loaded backend rate limits from %s", path)
				}
			}
		}
	}
	loaded = &cfg
	initialized = true
}

func findUpConfig() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		cand := filepath.Join(wd, "config", "backends.yaml")
		if _, err := os.Stat(cand); err == nil {
			return cand, true
		}
		wd = filepath.Dir(wd)
	}
	return "", false
}

func get() *overridesFile {
	mu.RLock()
	if initialized {
		defer mu.RUnlock()
		return loaded
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		loadLocked()
	}
	return loaded
}

// RPMForBackend returns the configured budget for a backend, or zero when no
// override applies.
func RPMForBackend(backend string) int {
	cfg := get()
	if cfg == nil {
		return 0
	}
	if rpm, ok := cfg.RateLimits.BackendOverrides[strings.ToLower(strings.TrimSpace(backend))]; ok {
		return rpm
	}
	return cfg.RateLimits.DefaultRPM
}

// EffectiveRPM returns the tightest positive budget across a chain, falling
// back to the supplied default when no overrides exist.
func EffectiveRPM(chain []string, fallback int) int {
	rpm := 0
	for _, backend := range chain {
		if b := RPMForBackend(backend); b > 0 && (rpm == 0 || b < rpm) {
			rpm = b
		}
	}
	if rpm == 0 {
		return fallback
	}
	if fallback > 0 && fallback < rpm {
		return fallback
	}
	return rpm
}

// Reload re-reads the overrides file. Used by config hot-reload.
func Reload() {
	mu.Lock()
	defer mu.Unlock()
	initialized = false
	loadLocked()
}
