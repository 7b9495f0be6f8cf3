// Package config assembles BuildConfig (and the Watch/Serve/Tools/Hooks
// companion configs) from Trunk.toml, environment variables, and CLI
// flags, layered through viper. Grounded on src/config.rs,
// src/config/models/*.rs, src/config/rt/*.rs.
package config

import (
	"github.com/trunkrs/trunk/internal/digest"
)

// MinifyPolicy controls when minification passes run.
type MinifyPolicy string

const (
	MinifyNever     MinifyPolicy = "never"
	MinifyOnRelease MinifyPolicy = "on-release"
	MinifyAlways    MinifyPolicy = "always"
)

// CargoFeatures selects which cargo feature flags an individual RustApp
// pipeline invocation uses.
type CargoFeatures struct {
	All               bool
	Custom            bool
	Features          string
	NoDefaultFeatures bool
}

// ToolVersions holds explicit version overrides per external tool.
type ToolVersions struct {
	Sass        string
	TailwindCss string
	WasmBindgen string
	WasmOpt     string
}

// BuildConfig is the read-only, shared configuration every pipeline
// receives. It is constructed once per build invocation.
type BuildConfig struct {
	Target            string // path to the source index.html
	StagingDist       string
	FinalDist         string
	PublicURL         string
	Release           bool
	FileHash          bool
	Minify            MinifyPolicy
	Integrity         digest.Algorithm
	NoSRI             bool
	Tools             ToolVersions
	CargoFeatures     CargoFeatures
	PatternScript     string
	PatternPreload    string
	PatternParams     map[string]string
	Offline           bool
	Frozen            bool
	Locked            bool
	CreateNonce       string
	InjectScripts     bool
	InjectAutoloader  bool
	AllowSelfClosingScript bool
	WorkingDirectory  string
	// AutoreloadWS is the `ws://...` URL of the dev server's autoreload
	// endpoint. Empty in a plain `build` (no dev server running).
	AutoreloadWS string
}

// MinifyAsset reports whether the given pipeline-level no-minify flag,
// combined with the global policy and release mode, means this asset
// should be minified.
func (c *BuildConfig) MinifyAsset(noMinify bool) bool {
	if noMinify {
		return false
	}
	switch c.Minify {
	case MinifyAlways:
		return true
	case MinifyNever:
		return false
	default: // on-release
		return c.Release
	}
}

// IntegrityOrDefault resolves the effective integrity algorithm for a
// pipeline, given an optional per-element override.
func (c *BuildConfig) IntegrityOrDefault(override string) digest.Algorithm {
	if override != "" {
		if algo, ok := digest.ParseAlgorithm(override); ok {
			return algo
		}
	}
	if c.NoSRI || c.Integrity == "" {
		return digest.DefaultUnless(c.NoSRI)
	}
	return c.Integrity
}

// WatchConfig configures the filesystem watcher collaborator.
type WatchConfig struct {
	Paths   []string
	Ignore  []string
	Poll    bool
}

// ServeConfig configures the HTTP/WS server collaborator.
type ServeConfig struct {
	Address       string
	Port          int
	Open          bool
	NoAutoreload  bool
	TLSCertPath   string
	TLSKeyPath    string
	ProxyBackend  string
	ProxyRewrite  string
}

// HooksConfig lists the user-configured external commands run at each
// build stage.
type HooksConfig struct {
	PreBuild  []HookCommand
	Build     []HookCommand
	PostBuild []HookCommand
}

// HookCommand is one external command invocation.
type HookCommand struct {
	Command string
	Args    []string
	Dir     string
}
