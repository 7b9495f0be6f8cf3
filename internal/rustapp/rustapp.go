package rustapp

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/trunkrs/trunk/internal/asset"
	"github.com/trunkrs/trunk/internal/config"
	"github.com/trunkrs/trunk/internal/digest"
	"github.com/trunkrs/trunk/internal/integrity"
	"github.com/trunkrs/trunk/internal/minify"
	"github.com/trunkrs/trunk/internal/toolcache"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

const snippetsDir = "snippets"

// RustApp is the pipeline that drives a cargo build to wasm, then
// wasm-bindgen and (in release mode) wasm-opt, ending with an output
// ready for document injection. Grounded on src/pipelines/rust/mod.rs.
type RustApp struct {
	id            int
	hasID         bool
	cfg           *config.BuildConfig
	tools         *toolcache.Cache
	manifest      *Manifest
	bin           string
	keepDebug     bool
	typescript    bool
	noDemangle    bool
	appType       AppType
	referenceTypes bool
	weakRefs      bool
	wasmOpt       OptLevel
	bindgenTarget BindgenTarget
	name          string
	loaderShim    bool
	crossOrigin   string
	algo          digest.Algorithm
	importBindings     bool
	importBindingsName string
	bindgenVersion     string
	ignoreTargetDir    func(string)
}

// Options captures the per-element attributes parsed by the
// dispatcher for a `<link data-trunk rel="rust">` element.
type Options struct {
	ManifestHref       string
	Bin                string
	KeepDebug          bool
	Typescript         bool
	NoDemangle         bool
	AppType            string
	ReferenceTypes     bool
	WeakRefs           bool
	WasmOptLevel       string
	BindgenTarget      string
	LoaderShim         bool
	CrossOrigin        string
	Integrity          string
	CargoAllFeatures   bool
	CargoNoDefaultFeatures bool
	CargoFeatures      string
	ImportBindingsOff  bool
	ImportBindingsName string
}

// New constructs a RustApp from an explicit `<link data-trunk
// rel="rust">` element's attributes.
func New(ctx context.Context, cfg *config.BuildConfig, tools *toolcache.Cache, htmlDir string, id int, opts Options, ignoreTargetDir func(string)) (*RustApp, error) {
	manifestPath := opts.ManifestHref
	if manifestPath == "" {
		manifestPath = filepath.Join(htmlDir, "Cargo.toml")
	} else if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(htmlDir, manifestPath)
	}
	if filepath.Base(manifestPath) != "Cargo.toml" {
		manifestPath = filepath.Join(manifestPath, "Cargo.toml")
	}

	manifest, err := LoadManifest(ctx, manifestPath)
	if err != nil {
		return nil, err
	}

	appType, err := ParseAppType(opts.AppType)
	if err != nil {
		return nil, err
	}
	bindgenTarget, err := ParseBindgenTarget(opts.BindgenTarget)
	if err != nil {
		return nil, err
	}
	releaseDefault := OptOff
	if cfg.Release {
		releaseDefault = OptDefault
	}
	wasmOpt, err := ParseOptLevel(opts.WasmOptLevel, releaseDefault)
	if err != nil {
		return nil, err
	}
	if opts.LoaderShim && appType != AppTypeWorker {
		return nil, trunkerr.New(trunkerr.ReasonRustUselessShim, "loader shim has no effect when data-type is \"main\"")
	}
	if opts.CargoAllFeatures && (opts.CargoNoDefaultFeatures || opts.CargoFeatures != "") {
		return nil, trunkerr.New(trunkerr.ReasonCargoFeatureConflict, "cannot combine data-cargo-all-features with data-cargo-no-default-features/data-cargo-features")
	}

	name := opts.Bin
	if name == "" {
		name = manifest.PackageName
	}
	algo := cfg.IntegrityOrDefault(opts.Integrity)

	return &RustApp{
		id: id, hasID: true, cfg: cfg, tools: tools, manifest: manifest,
		bin: opts.Bin, keepDebug: opts.KeepDebug, typescript: opts.Typescript,
		noDemangle: opts.NoDemangle, appType: appType, referenceTypes: opts.ReferenceTypes,
		weakRefs: opts.WeakRefs, wasmOpt: wasmOpt, bindgenTarget: bindgenTarget, name: name,
		loaderShim: opts.LoaderShim, crossOrigin: opts.CrossOrigin, algo: algo,
		importBindings: !opts.ImportBindingsOff, importBindingsName: opts.ImportBindingsName,
		bindgenVersion: cfg.Tools.WasmBindgen, ignoreTargetDir: ignoreTargetDir,
	}, nil
}

// NewDefault synthesizes a main-application RustApp when the source
// document names no explicit rust element but a Cargo.toml sits next
// to it. Returns (nil, nil) when there is no Cargo.toml to build.
func NewDefault(ctx context.Context, cfg *config.BuildConfig, tools *toolcache.Cache, htmlDir string, ignoreTargetDir func(string)) (*RustApp, error) {
	manifestPath := filepath.Join(htmlDir, "Cargo.toml")
	if _, err := os.Stat(manifestPath); err != nil {
		return nil, nil
	}
	manifest, err := LoadManifest(ctx, manifestPath)
	if err != nil {
		return nil, err
	}
	return &RustApp{
		cfg: cfg, tools: tools, manifest: manifest, appType: AppTypeMain,
		bindgenTarget: BindgenWeb, wasmOpt: OptOff, name: manifest.PackageName,
		algo: cfg.IntegrityOrDefault(""), importBindings: true,
		bindgenVersion: cfg.Tools.WasmBindgen, ignoreTargetDir: ignoreTargetDir,
	}, nil
}

// Run drives the full cargo -> wasm-bindgen -> wasm-opt chain.
func (r *RustApp) Run(ctx context.Context) (*Output, error) {
	wasmPath, hashedName, wasmDigest, err := r.cargoBuild(ctx)
	if err != nil {
		return nil, err
	}
	out, err := r.wasmBindgenBuild(ctx, wasmPath, hashedName, wasmDigest)
	if err != nil {
		return nil, err
	}
	if err := r.wasmOptBuild(ctx, out.WasmOutput); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RustApp) cargoBuild(ctx context.Context) (wasmPath, hashedName string, wasmDigest digest.Output, err error) {
	args := BuildArgs{
		ManifestPath: r.manifest.ManifestPath,
		Release:      r.cfg.Release,
		Offline:      r.cfg.Offline,
		Frozen:       r.cfg.Frozen,
		Locked:       r.cfg.Locked,
		Bin:          r.bin,
	}
	if r.cfg.CargoFeatures.All {
		args.AllFeatures = true
	} else {
		args.NoDefaultFeatures = r.cfg.CargoFeatures.NoDefaultFeatures
		args.Features = r.cfg.CargoFeatures.Features
	}

	wasmPath, err = Build(ctx, args, r.manifest.PackageID)
	if r.ignoreTargetDir != nil && r.manifest.TargetDirectory != "" {
		r.ignoreTargetDir(r.manifest.TargetDirectory)
	}
	if err != nil {
		return "", "", digest.Output{}, err
	}

	wasmBytes, readErr := os.ReadFile(wasmPath)
	if readErr != nil {
		return "", "", digest.Output{}, trunkerr.Wrap(trunkerr.ReasonFsRead, wasmPath, readErr)
	}
	wasmDigest = digest.Generate(r.algo, wasmBytes)

	if !r.cfg.FileHash {
		hashedName = r.name
	} else {
		hashedName = asset.HashedName(r.name, "", wasmBytes)
	}
	return wasmPath, hashedName, wasmDigest, nil
}

func (r *RustApp) wasmBindgenBuild(ctx context.Context, wasmPath, hashedName string, wasmDigest digest.Output) (*Output, error) {
	if r.appType == AppTypeWorker {
		hashedName = r.name
	}

	bindgenVersion := FindWasmBindgenVersion(r.bindgenVersion, r.manifest, os.ReadFile)
	tool, err := r.tools.Get(toolcache.WasmBindgen, bindgenVersion, r.cfg.Offline)
	if err != nil {
		return nil, err
	}

	modeSegment := "debug"
	if r.cfg.Release {
		modeSegment = "release"
	}
	bindgenOut := filepath.Join(r.manifest.TargetDirectory, toolcache.WasmBindgen.Name(), modeSegment)
	if err := os.MkdirAll(bindgenOut, 0o755); err != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonFsWrite, bindgenOut, err)
	}

	args := []string{
		"--target=" + string(r.bindgenTarget),
		"--out-dir=" + bindgenOut,
		"--out-name=" + hashedName,
		wasmPath,
	}
	if r.keepDebug {
		args = append(args, "--keep-debug")
	}
	if r.noDemangle {
		args = append(args, "--no-demangle")
	}
	if r.referenceTypes {
		args = append(args, "--reference-types")
	}
	if r.weakRefs {
		args = append(args, "--weak-refs")
	}
	if !r.typescript {
		args = append(args, "--no-typescript")
	}

	cmd := exec.CommandContext(ctx, tool.Path, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonToolchainCommandFailed, "wasm-bindgen", err)
	}

	hashedJSName := hashedName + ".js"
	hashedWasmName := hashedName + "_bg.wasm"
	hashedTSName := hashedName + ".d.ts"

	jsLoaderSrc := filepath.Join(bindgenOut, hashedJSName)
	jsLoaderDist := filepath.Join(r.cfg.StagingDist, hashedJSName)
	wasmSrc := filepath.Join(bindgenOut, hashedWasmName)
	wasmDist := filepath.Join(r.cfg.StagingDist, hashedWasmName)

	if err := r.copyOrMinifyJS(jsLoaderSrc, jsLoaderDist); err != nil {
		return nil, err
	}
	if err := copyFileTo(wasmSrc, wasmDist); err != nil {
		return nil, err
	}

	var tsOutput string
	if r.typescript {
		if err := copyFileTo(filepath.Join(bindgenOut, hashedTSName), filepath.Join(r.cfg.StagingDist, hashedTSName)); err != nil {
			return nil, err
		}
		tsOutput = hashedTSName
	}

	var loaderShimOutput string
	if r.loaderShim {
		shim, err := loaderShimContent(r.bindgenTarget, hashedJSName, hashedWasmName)
		if err != nil {
			return nil, err
		}
		loaderShimOutput = hashedName + "_loader.js"
		if err := os.WriteFile(filepath.Join(r.cfg.StagingDist, loaderShimOutput), []byte(shim), 0o644); err != nil {
			return nil, trunkerr.Wrap(trunkerr.ReasonFsWrite, loaderShimOutput, err)
		}
	}

	snippetIntegrities, err := r.copySnippets(bindgenOut)
	if err != nil {
		return nil, err
	}

	jsBytes, err := os.ReadFile(jsLoaderDist)
	if err != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonFsRead, jsLoaderDist, err)
	}
	jsDigest := digest.Generate(r.algo, jsBytes)

	builder := integrity.NewBuilder()
	builder.Set(integrity.Record{Kind: integrity.KindModulePreload, Name: hashedJSName, As: "script", Digest: jsDigest})
	builder.Set(integrity.Record{Kind: integrity.KindPreload, Name: hashedWasmName, As: "fetch", Type: "application/wasm", Digest: wasmDigest})
	for name, d := range snippetIntegrities {
		builder.Set(integrity.Record{Kind: integrity.KindPreload, Name: name, As: "script", Digest: d})
	}

	return &Output{
		ID: r.id, HasID: r.hasID, Type: r.appType, JSOutput: hashedJSName, WasmOutput: hashedWasmName,
		TSOutput: tsOutput, LoaderShimOutput: loaderShimOutput, CrossOrigin: r.crossOrigin,
		Integrities: builder, ImportBindings: r.importBindings, ImportBindingsName: r.importBindingsName,
		InitWithObject: initWithObject(bindgenVersion),
	}, nil
}

func (r *RustApp) copyOrMinifyJS(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsRead, src, err)
	}
	if r.cfg.Release {
		data = minify.JS(data, nil)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsWrite, dest, err)
	}
	return nil
}

func (r *RustApp) copySnippets(bindgenOut string) (map[string]digest.Output, error) {
	snippetsSrc := filepath.Join(bindgenOut, snippetsDir)
	info, err := os.Stat(snippetsSrc)
	if err != nil || !info.IsDir() {
		return nil, nil
	}
	snippetsDest := filepath.Join(r.cfg.StagingDist, snippetsDir)

	digests := map[string]digest.Output{}
	walkErr := filepathWalk(snippetsSrc, func(path, rel string, isDir bool) error {
		dest := filepath.Join(snippetsDest, rel)
		if isDir {
			return os.MkdirAll(dest, 0o755)
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		if writeErr := os.MkdirAll(filepath.Dir(dest), 0o755); writeErr != nil {
			return writeErr
		}
		if writeErr := os.WriteFile(dest, data, 0o644); writeErr != nil {
			return writeErr
		}
		distRel, relErr := filepath.Rel(r.cfg.StagingDist, dest)
		if relErr == nil {
			digests[distRel] = digest.Generate(r.algo, data)
		}
		return nil
	})
	if walkErr != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonFsCopy, snippetsSrc, walkErr)
	}
	return digests, nil
}

func (r *RustApp) wasmOptBuild(ctx context.Context, hashedWasmName string) error {
	if !r.cfg.Release || r.wasmOpt == OptOff {
		return nil
	}
	tool, err := r.tools.Get(toolcache.WasmOpt, r.cfg.Tools.WasmOpt, r.cfg.Offline)
	if err != nil {
		return err
	}

	outDir := filepath.Join(r.manifest.TargetDirectory, toolcache.WasmOpt.Name(), "release")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsWrite, outDir, err)
	}
	output := filepath.Join(outDir, hashedWasmName)
	targetWasm := filepath.Join(r.cfg.StagingDist, hashedWasmName)

	args := []string{"--output=" + output, r.wasmOpt.Flag(), targetWasm}
	if r.referenceTypes {
		args = append(args, "--enable-reference-types")
	}

	cmd := exec.CommandContext(ctx, tool.Path, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonToolchainCommandFailed, "wasm-opt", err)
	}

	return copyFileTo(output, targetWasm)
}

func copyFileTo(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsRead, src, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsWrite, dest, err)
	}
	return nil
}

func loaderShimContent(target BindgenTarget, jsName, wasmName string) (string, error) {
	switch target {
	case BindgenWeb:
		return "import init from './" + jsName + "';await init();", nil
	case BindgenNoModules:
		return `importScripts("./` + jsName + `");wasm_bindgen("./` + wasmName + `");`, nil
	default:
		return "", trunkerr.New(trunkerr.ReasonRustUselessShim, "loader shim can only be created for data-bindgen-target \"web\" or \"no-modules\"")
	}
}
