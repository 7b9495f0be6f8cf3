package rustapp

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/trunkrs/trunk/internal/trunkerr"
)

// Manifest holds the subset of `cargo metadata` output the pipeline
// needs: the target package's identity and the workspace's shared
// target directory.
type Manifest struct {
	ManifestPath    string
	PackageID       string
	PackageName     string
	TargetDirectory string
}

type cargoMetadataOutput struct {
	Packages []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		ManifestPath string `json:"manifest_path"`
	} `json:"packages"`
	Resolve struct {
		Root string `json:"root"`
	} `json:"resolve"`
	TargetDirectory string `json:"target_directory"`
}

// LoadManifest runs `cargo metadata` against manifestPath and extracts
// the identity of the crate it describes.
func LoadManifest(ctx context.Context, manifestPath string) (*Manifest, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "cargo", "metadata", "--format-version=1", "--no-deps", "--manifest-path", manifestPath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonCargoBuildFailed, stderr.String(), err)
	}

	var out cargoMetadataOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonCargoArtifactNotFound, "parsing cargo metadata", err)
	}

	root := out.Resolve.Root
	for _, pkg := range out.Packages {
		if root == "" || pkg.ID == root {
			return &Manifest{
				ManifestPath:    manifestPath,
				PackageID:       pkg.ID,
				PackageName:     pkg.Name,
				TargetDirectory: out.TargetDirectory,
			}, nil
		}
	}
	return nil, trunkerr.New(trunkerr.ReasonCargoArtifactNotFound, "no root package found in "+manifestPath)
}

type cargoLockPackage struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

type cargoLock struct {
	Package []cargoLockPackage `toml:"package"`
}

type cargoTomlDeps struct {
	Dependencies map[string]any `toml:"dependencies"`
}

// FindWasmBindgenVersion resolves the wasm-bindgen version to install,
// in priority order: an explicit Trunk.toml override, the version
// locked in Cargo.lock, then the version named in Cargo.toml's direct
// dependencies. Grounded on find_wasm_bindgen_version in
// src/pipelines/rust/mod.rs.
func FindWasmBindgenVersion(configured string, m *Manifest, readFile func(string) ([]byte, error)) string {
	if configured != "" {
		return configured
	}

	lockPath := filepath.Join(filepath.Dir(m.ManifestPath), "Cargo.lock")
	if data, err := readFile(lockPath); err == nil {
		var lock cargoLock
		if err := toml.Unmarshal(data, &lock); err == nil {
			for _, pkg := range lock.Package {
				if pkg.Name == "wasm-bindgen" {
					return pkg.Version
				}
			}
		}
	}

	if data, err := readFile(m.ManifestPath); err == nil {
		var deps cargoTomlDeps
		if err := toml.Unmarshal(data, &deps); err == nil {
			if v, ok := deps.Dependencies["wasm-bindgen"]; ok {
				switch t := v.(type) {
				case string:
					return t
				case map[string]any:
					if ver, ok := t["version"].(string); ok {
						return ver
					}
				}
			}
		}
	}

	return ""
}
