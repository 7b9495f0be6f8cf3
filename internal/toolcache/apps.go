package toolcache

import (
	"fmt"
	"runtime"

	"github.com/trunkrs/trunk/internal/archive"
)

// Application names an external tool the engine shells out to.
type Application string

const (
	Sass        Application = "sass"
	TailwindCss Application = "tailwindcss"
	WasmBindgen Application = "wasm-bindgen"
	WasmOpt     Application = "wasm-opt"
)

// Name returns the executable name (minus extension) for app.
func (a Application) Name() string {
	switch a {
	case Sass:
		return "sass"
	case TailwindCss:
		return "tailwindcss"
	case WasmBindgen:
		return "wasm-bindgen"
	case WasmOpt:
		return "wasm-opt"
	default:
		return string(a)
	}
}

// VersionArg is the flag passed to the executable to print its version.
func (a Application) VersionArg() string {
	return "--version"
}

// DefaultVersion is the safe default version pinned for this tool when
// no override is configured.
func (a Application) DefaultVersion() string {
	switch a {
	case Sass:
		return "1.83.0"
	case TailwindCss:
		return "3.4.17"
	case WasmBindgen:
		return "0.2.100"
	case WasmOpt:
		return "119"
	default:
		return ""
	}
}

// ArchiveFormat reports which container this tool ships in for the
// current platform.
func (a Application) ArchiveFormat(goos string) archive.Format {
	if a == Sass && goos == "windows" {
		return archive.Zip
	}
	return archive.TarGz
}

// IsSingleBinary reports whether the download is a bare executable with
// no archive container at all (tailwindcss releases ship this way).
func (a Application) IsSingleBinary() bool {
	return a == TailwindCss
}

// AuxiliaryFiles lists additional archive members (besides the main
// executable) that should be extracted alongside it. Missing entries are
// logged, not fatal.
func (a Application) AuxiliaryFiles(goos string) []string {
	switch a {
	case WasmOpt:
		if goos == "darwin" {
			return []string{"lib/libbinaryen.dylib"}
		}
		return nil
	case Sass:
		if goos == "windows" {
			return []string{"src/dart.exe", "src/sass.snapshot"}
		}
		return nil
	default:
		return nil
	}
}

// platformKey normalizes Go's GOOS/GOARCH into the naming scheme used by
// each tool's release assets.
func platformKey(goos, goarch string) (string, error) {
	var osKey string
	switch goos {
	case "darwin":
		osKey = "macos"
	case "linux":
		osKey = "linux"
	case "windows":
		osKey = "windows"
	default:
		return "", fmt.Errorf("unsupported os: %s", goos)
	}

	var archKey string
	switch goarch {
	case "amd64":
		archKey = "x86_64"
	case "arm64":
		archKey = "aarch64"
	default:
		return "", fmt.Errorf("unsupported arch: %s", goarch)
	}

	return osKey + "-" + archKey, nil
}

// DownloadURL resolves the archive URL for app at version, for the
// current runtime platform, following the fixed GitHub-release template
// per application.
func DownloadURL(app Application, version string) (string, error) {
	key, err := platformKey(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}

	switch app {
	case Sass:
		ext := "tar.gz"
		if runtime.GOOS == "windows" {
			ext = "zip"
		}
		return fmt.Sprintf(
			"https://github.com/sass/dart-sass/releases/download/%s/dart-sass-%s-%s.%s",
			version, version, sassPlatform(key), ext), nil
	case TailwindCss:
		return fmt.Sprintf(
			"https://github.com/tailwindlabs/tailwindcss/releases/download/v%s/tailwindcss-%s",
			version, tailwindPlatform(key)), nil
	case WasmBindgen:
		return fmt.Sprintf(
			"https://github.com/rustwasm/wasm-bindgen/releases/download/%s/wasm-bindgen-%s-%s.tar.gz",
			version, version, bindgenTarget(key)), nil
	case WasmOpt:
		return fmt.Sprintf(
			"https://github.com/WebAssembly/binaryen/releases/download/version_%s/binaryen-version_%s-%s.tar.gz",
			version, version, binaryenTarget(key)), nil
	default:
		return "", fmt.Errorf("unknown application: %s", app)
	}
}

func sassPlatform(key string) string {
	switch key {
	case "macos-x86_64":
		return "macos-x64"
	case "macos-aarch64":
		return "macos-arm64"
	case "linux-x86_64":
		return "linux-x64"
	case "linux-aarch64":
		return "linux-arm64"
	case "windows-x86_64":
		return "windows-x64"
	default:
		return key
	}
}

func tailwindPlatform(key string) string {
	switch key {
	case "macos-x86_64":
		return "macos-x64"
	case "macos-aarch64":
		return "macos-arm64"
	case "linux-x86_64":
		return "linux-x64"
	case "linux-aarch64":
		return "linux-arm64"
	case "windows-x86_64":
		return "windows-x64.exe"
	default:
		return key
	}
}

func bindgenTarget(key string) string {
	switch key {
	case "macos-x86_64":
		return "x86_64-apple-darwin"
	case "macos-aarch64":
		return "aarch64-apple-darwin"
	case "linux-x86_64":
		return "x86_64-unknown-linux-musl"
	case "windows-x86_64":
		return "x86_64-pc-windows-msvc"
	default:
		return key
	}
}

func binaryenTarget(key string) string {
	switch key {
	case "macos-x86_64":
		return "x86_64-macos"
	case "macos-aarch64":
		return "arm64-macos"
	case "linux-x86_64":
		return "x86_64-linux"
	case "linux-aarch64":
		return "aarch64-linux"
	case "windows-x86_64":
		return "x86_64-windows"
	default:
		return key
	}
}
