// Package engine implements the top-level build orchestrator: read
// index.html, dispatch its data-trunk elements, run every pipeline
// concurrently, finalize the document once they all complete, and
// gate the whole thing between pre/post-build hook barriers. Grounded
// on src/build.rs and src/pipelines/html.rs.
package engine

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/trunkrs/trunk/internal/asset"
	"github.com/trunkrs/trunk/internal/config"
	"github.com/trunkrs/trunk/internal/dispatch"
	"github.com/trunkrs/trunk/internal/finalize"
	"github.com/trunkrs/trunk/internal/hooks"
	"github.com/trunkrs/trunk/internal/logx"
	"github.com/trunkrs/trunk/internal/pipeline"
	"github.com/trunkrs/trunk/internal/rustapp"
	"github.com/trunkrs/trunk/internal/toolcache"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// Engine runs builds against a fixed configuration and tool cache.
type Engine struct {
	cfg       *config.BuildConfig
	tools     *toolcache.Cache
	hooksCfg  *config.HooksConfig
	log       *logx.Logger
	onIgnore  func(path string) // forwarded to the watcher so cargo's target dir is excluded
}

// New constructs an Engine.
func New(cfg *config.BuildConfig, tools *toolcache.Cache, hooksCfg *config.HooksConfig, log *logx.Logger, onIgnore func(string)) *Engine {
	if log == nil {
		log = logx.Default()
	}
	if hooksCfg == nil {
		hooksCfg = &config.HooksConfig{}
	}
	return &Engine{cfg: cfg, tools: tools, hooksCfg: hooksCfg, log: log, onIgnore: onIgnore}
}

// Build runs one full build: hooks, dispatch, pipeline fan-out,
// finalize.
func (e *Engine) Build(ctx context.Context) error {
	e.log.Start("building")

	if err := hooks.RunBarrier(ctx, e.hooksCfg.PreBuild, e.log); err != nil {
		return err
	}

	htmlBytes, err := os.ReadFile(e.cfg.Target)
	if err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsRead, e.cfg.Target, err)
	}
	manifestDir := manifestDirOf(e.cfg.Target)

	result, err := dispatch.Dispatch(htmlBytes, manifestDir, e.cfg.AllowSelfClosingScript)
	if err != nil {
		return err
	}

	env := &pipeline.Env{Config: e.cfg, Tools: e.tools, Log: e.log, ManifestDir: manifestDir}
	chain := pipeline.DefaultChain()

	g, gctx := errgroup.WithContext(ctx)

	outputs := make([]pipeline.Output, len(result.Assets))
	for i, in := range result.Assets {
		i, in := i, in
		g.Go(func() error {
			runnable, ok, err := chain(env, in)
			if err != nil {
				return err
			}
			if !ok {
				return pipeline.NotMatched(in)
			}
			out, err := runnable.Run(gctx)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}

	rustOutputs := make([]*rustapp.Output, 1+len(result.WorkerRustElements))
	g.Go(func() error {
		app, err := e.buildRustApp(gctx, result, manifestDir)
		if err != nil {
			return err
		}
		if app == nil {
			return nil
		}
		out, err := app.Run(gctx)
		if err != nil {
			return err
		}
		rustOutputs[0] = out
		return nil
	})
	for i, worker := range result.WorkerRustElements {
		i, worker := i, worker
		g.Go(func() error {
			opts := optionsFromAttrs(worker.Attrs)
			app, err := rustapp.New(gctx, e.cfg, e.tools, manifestDir, worker.ID, opts, e.onIgnore)
			if err != nil {
				return err
			}
			out, err := app.Run(gctx)
			if err != nil {
				return err
			}
			rustOutputs[1+i] = out
			return nil
		})
	}

	waitBuildHooks := hooks.Spawn(gctx, e.hooksCfg.Build, e.log)
	g.Go(waitBuildHooks)

	if err := g.Wait(); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonTaskJoinFailed, "build", err)
	}

	f := finalize.New(e.cfg)
	if err := f.ApplyOutputs(result.Doc, outputs); err != nil {
		return err
	}
	for _, rustOutput := range rustOutputs {
		if rustOutput == nil {
			continue
		}
		if err := rustOutput.Finalize(result.Doc, e.cfg); err != nil {
			return err
		}
	}
	if err := f.Write(result.Doc); err != nil {
		return err
	}

	if err := hooks.RunBarrier(ctx, e.hooksCfg.PostBuild, e.log); err != nil {
		return err
	}

	e.log.Success("build finished")
	return nil
}

func (e *Engine) buildRustApp(ctx context.Context, result *dispatch.Result, manifestDir string) (*rustapp.RustApp, error) {
	if result.RustElement == nil {
		return rustapp.NewDefault(ctx, e.cfg, e.tools, manifestDir, e.onIgnore)
	}
	opts := optionsFromAttrs(result.RustElement.Attrs)
	return rustapp.New(ctx, e.cfg, e.tools, manifestDir, result.RustElement.ID, opts, e.onIgnore)
}

func optionsFromAttrs(a *asset.Attrs) rustapp.Options {
	get := func(key string) string {
		v, _ := a.Get(key)
		return v
	}
	return rustapp.Options{
		ManifestHref:           get("href"),
		Bin:                    get("data-bin"),
		KeepDebug:              a.Has("data-keep-debug"),
		Typescript:             a.Has("data-typescript"),
		NoDemangle:             a.Has("data-no-demangle"),
		AppType:                get("data-type"),
		ReferenceTypes:         a.Has("data-reference-types"),
		WeakRefs:               a.Has("data-weak-refs"),
		WasmOptLevel:           get("data-wasm-opt"),
		BindgenTarget:          get("data-bindgen-target"),
		LoaderShim:             a.Has("data-loader-shim"),
		CrossOrigin:            get("data-cross-origin"),
		Integrity:              get("data-integrity"),
		CargoAllFeatures:       a.Has("data-cargo-all-features"),
		CargoNoDefaultFeatures: a.Has("data-cargo-no-default-features"),
		CargoFeatures:          get("data-cargo-features"),
		ImportBindingsOff:      a.Has("data-wasm-no-import"),
		ImportBindingsName:     get("data-wasm-import-name"),
	}
}

func manifestDirOf(target string) string {
	return filepath.Dir(target)
}
