package rustapp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/trunkrs/trunk/internal/trunkerr"
)

// cargoMessage is one line of cargo's `--message-format=json` stream.
// Only the fields needed to find the built wasm artifact are parsed.
type cargoMessage struct {
	Reason      string   `json:"reason"`
	PackageID   string   `json:"package_id"`
	Target      struct{ Kind []string `json:"kind"` } `json:"target"`
	Filenames   []string `json:"filenames"`
	Success     bool     `json:"success"`
}

// BuildArgs are the flags common to both the real cargo build and the
// follow-up JSON-artifact-listing invocation.
type BuildArgs struct {
	ManifestPath      string
	Release           bool
	Offline           bool
	Frozen            bool
	Locked            bool
	Bin               string
	AllFeatures       bool
	NoDefaultFeatures bool
	Features          string
}

func (a BuildArgs) toArgs() []string {
	args := []string{"build", "--target=wasm32-unknown-unknown", "--manifest-path", a.ManifestPath}
	if a.Release {
		args = append(args, "--release")
	}
	if a.Offline {
		args = append(args, "--offline")
	}
	if a.Frozen {
		args = append(args, "--frozen")
	}
	if a.Locked {
		args = append(args, "--locked")
	}
	if a.Bin != "" {
		args = append(args, "--bin", a.Bin)
	}
	if a.AllFeatures {
		args = append(args, "--all-features")
	} else {
		if a.NoDefaultFeatures {
			args = append(args, "--no-default-features")
		}
		if a.Features != "" {
			args = append(args, "--features", a.Features)
		}
	}
	return args
}

// Build runs `cargo build` for the target wasm32 crate, then a second
// `--message-format=json` invocation to recover the built artifact's
// path deterministically, exactly as the reference implementation
// does (a plain build first so errors surface with normal cargo
// diagnostics, then a JSON pass purely to locate output files).
func Build(ctx context.Context, args BuildArgs, pkgID string) (wasmPath string, err error) {
	buildCmd := exec.CommandContext(ctx, "cargo", args.toArgs()...)
	buildCmd.Stdout = os.Stderr
	buildCmd.Stderr = os.Stderr
	if runErr := buildCmd.Run(); runErr != nil {
		return "", trunkerr.Wrap(trunkerr.ReasonCargoBuildFailed, "cargo build", runErr)
	}

	jsonArgs := append(args.toArgs(), "--message-format=json")
	artifactsCmd := exec.CommandContext(ctx, "cargo", jsonArgs...)
	var stdout, stderr bytes.Buffer
	artifactsCmd.Stdout = &stdout
	artifactsCmd.Stderr = &stderr
	if runErr := artifactsCmd.Run(); runErr != nil {
		return "", trunkerr.Wrap(trunkerr.ReasonCargoBuildFailed, stderr.String(), runErr)
	}

	var artifacts []cargoMessage
	scanner := bufio.NewScanner(bytes.NewReader(stdout.Bytes()))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		var msg cargoMessage
		if jsonErr := json.Unmarshal(line, &msg); jsonErr != nil {
			continue
		}
		switch msg.Reason {
		case "compiler-artifact":
			if msg.PackageID != pkgID {
				continue
			}
			isBinOrCdylib := false
			for _, k := range msg.Target.Kind {
				if k == "bin" || k == "cdylib" {
					isBinOrCdylib = true
					break
				}
			}
			if isBinOrCdylib {
				artifacts = append(artifacts, msg)
			}
		case "build-finished":
			if !msg.Success {
				return "", trunkerr.New(trunkerr.ReasonCargoBuildFailed, "cargo reported build failure")
			}
		}
	}

	if len(artifacts) > 1 {
		names := make([]string, 0, len(artifacts))
		for _, a := range artifacts {
			names = append(names, strings.Join(a.Target.Kind, "+"))
		}
		return "", trunkerr.New(trunkerr.ReasonCargoManyArtifacts,
			"found more than one binary crate, pass data-bin to select one: "+strings.Join(names, ", "))
	}
	if len(artifacts) == 0 {
		return "", trunkerr.New(trunkerr.ReasonCargoArtifactNotFound, "no cargo artifacts found for target crate")
	}

	for _, f := range artifacts[0].Filenames {
		if filepath.Ext(f) == ".wasm" {
			return f, nil
		}
	}
	return "", trunkerr.New(trunkerr.ReasonCargoWasmArtifactNotFound, "no wasm output in cargo artifact")
}
