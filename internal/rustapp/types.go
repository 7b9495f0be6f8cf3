// Package rustapp implements the RustApp pipeline: invoking cargo to
// build a crate to wasm32-unknown-unknown, running wasm-bindgen over
// the resulting artifact, optionally running wasm-opt, and injecting
// the init script into the document. Grounded on
// src/pipelines/rust/{mod,output}.rs.
package rustapp

import "github.com/trunkrs/trunk/internal/trunkerr"

// AppType distinguishes the main application module from a worker
// module. Workers get no injected script; they're loaded by the app
// at runtime.
type AppType string

const (
	AppTypeMain   AppType = "main"
	AppTypeWorker AppType = "worker"
)

// ParseAppType parses the `data-type` attribute value.
func ParseAppType(s string) (AppType, error) {
	switch s {
	case "", "main":
		return AppTypeMain, nil
	case "worker":
		return AppTypeWorker, nil
	default:
		return "", trunkerr.New(trunkerr.ReasonPipelineInlineTypeUnsupported, "unknown data-type "+s)
	}
}

// BindgenTarget is the value of wasm-bindgen's --target flag.
type BindgenTarget string

const (
	BindgenBundler   BindgenTarget = "bundler"
	BindgenWeb       BindgenTarget = "web"
	BindgenNoModules BindgenTarget = "no-modules"
	BindgenNodeJS    BindgenTarget = "nodejs"
	BindgenDeno      BindgenTarget = "deno"
)

// ParseBindgenTarget parses the `data-bindgen-target` attribute value,
// defaulting to "web".
func ParseBindgenTarget(s string) (BindgenTarget, error) {
	if s == "" {
		return BindgenWeb, nil
	}
	switch BindgenTarget(s) {
	case BindgenBundler, BindgenWeb, BindgenNoModules, BindgenNodeJS, BindgenDeno:
		return BindgenTarget(s), nil
	default:
		return "", trunkerr.New(trunkerr.ReasonToolchainUnsupportedTarget, "unknown data-bindgen-target "+s)
	}
}

// OptLevel selects wasm-opt's optimization pass, or turns it off
// entirely.
type OptLevel string

const (
	OptDefault OptLevel = ""
	OptOff     OptLevel = "0"
	Opt1       OptLevel = "1"
	Opt2       OptLevel = "2"
	Opt3       OptLevel = "3"
	Opt4       OptLevel = "4"
	OptSize    OptLevel = "s"
	OptSizeMax OptLevel = "z"
)

// ParseOptLevel parses the `data-wasm-opt` attribute value, defaulting
// to the release/debug-sensitive default the caller supplies.
func ParseOptLevel(s string, releaseDefault OptLevel) (OptLevel, error) {
	if s == "" {
		return releaseDefault, nil
	}
	switch OptLevel(s) {
	case OptDefault, OptOff, Opt1, Opt2, Opt3, Opt4, OptSize, OptSizeMax:
		return OptLevel(s), nil
	default:
		return "", trunkerr.New(trunkerr.ReasonToolchainUnsupportedTarget, "unknown wasm-opt level "+s)
	}
}

// Flag returns the `-O<level>` argument for wasm-opt.
func (o OptLevel) Flag() string {
	return "-O" + string(o)
}
