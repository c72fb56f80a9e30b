// Package branding provides compile-time identity values for the CLI and the
// runtime it manages.
//
// Packagers edit branding.yaml in this directory; //go:embed bakes it into
// the binary.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName        string `yaml:"cli_name"`
	DisplayName    string `yaml:"display_name"`
	Description    string `yaml:"description"`
	HomeDir        string `yaml:"home_dir"`
	EnvPrefix      string `yaml:"env_prefix"`
	RuntimePackage string `yaml:"runtime_package"`
	RuntimeSigner  string `yaml:"runtime_signer"`
}

func load() {
	once.Do(func() {
		// Hard defaults in case the embedded file is missing or empty.
		defaults = brand{
			CLIName:        "xwalk",
			DisplayName:    "Crosswalk",
			Description:    "Acquires and readies the shared Crosswalk runtime",
			HomeDir:        ".xwalk",
			EnvPrefix:      "XWALK",
			RuntimePackage: "org.xwalk.core",
		}
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "xwalk").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name.
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME (e.g., ".xwalk").
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix (e.g., "XWALK").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// RuntimePackage returns the store package id of the runtime.
func RuntimePackage() string { load(); return defaults.RuntimePackage }

// RuntimeSigner returns the expected signer fingerprint of the runtime
// package. Empty disables the signer check.
func RuntimeSigner() string { load(); return defaults.RuntimeSigner }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("HOME") → "XWALK_HOME".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
