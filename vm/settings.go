package vm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings carries the tunables of a VM instance. New replaces a
// non-positive StackDepth and an empty EntryName with the defaults; other
// zero fields are used as given. A YAML settings file and CLI flags overlay
// DefaultSettings.
type Settings struct {
	Version  string `yaml:"version"`
	LangName string `yaml:"lang_name"`
	VMName   string `yaml:"vm_name"`

	// EntryName is the member the entry-point method is looked up by.
	EntryName string `yaml:"entry"`

	LibPath string   `yaml:"lib_path"`
	ModPath []string `yaml:"mod_path"`

	// StackDepth bounds every thread's call stack.
	StackDepth int `yaml:"stack_depth"`

	// HeapLimit bounds the manager's in-use bytes; 0 means unlimited.
	HeapLimit uint64 `yaml:"heap_limit"`

	// GCThreshold triggers a collection at method entry once in-use bytes
	// reach it; 0 disables the automatic trigger.
	GCThreshold uint64 `yaml:"gc_threshold"`

	// InbuiltTypes are the signatures the VM materializes at bootstrap.
	InbuiltTypes []string `yaml:"inbuilt_types"`
}

// DefaultSettings returns the stock configuration.
func DefaultSettings() Settings {
	return Settings{
		Version:    "1.0",
		LangName:   "spade",
		VMName:     "velocity",
		EntryName:  "main",
		StackDepth: 1024,
		InbuiltTypes: []string{
			"basic.bool",
			"basic.int",
			"basic.float",
			"basic.char",
			"basic.string",
			"basic.array",
		},
	}
}

// InfoString renders the version banner.
func (s Settings) InfoString() string {
	return fmt.Sprintf("%s %s %s", s.Version, s.LangName, s.VMName)
}

// LoadSettings overlays the YAML file at path onto the defaults.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return settings, err
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("settings %s: %w", path, err)
	}
	if settings.StackDepth <= 0 {
		settings.StackDepth = DefaultSettings().StackDepth
	}
	return settings, nil
}
