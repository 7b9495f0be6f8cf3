// Package pipeline implements the asset pipeline abstraction: each
// concrete pipeline classifies a dispatcher-discovered Input
// (try_accept), performs its build work concurrently with every other
// pipeline (run), then synchronously mutates the shared Document once
// its work completes (finalize). Grounded on src/pipelines/mod.rs and
// the per-kind files under src/pipelines/.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/trunkrs/trunk/internal/asset"
	"github.com/trunkrs/trunk/internal/config"
	"github.com/trunkrs/trunk/internal/digest"
	"github.com/trunkrs/trunk/internal/document"
	"github.com/trunkrs/trunk/internal/logx"
	"github.com/trunkrs/trunk/internal/toolcache"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// Env is the shared, read-only context every pipeline's constructor and
// Run method receive.
type Env struct {
	Config    *config.BuildConfig
	Tools     *toolcache.Cache
	Log       *logx.Logger
	ManifestDir string // directory containing the source index.html
}

// Output is the result of a pipeline's Run step: everything it needs to
// apply to the shared Document during the synchronous finalize phase.
type Output interface {
	// Finalize applies this pipeline's result to doc. Called on the
	// single document-owning goroutine; must not block on I/O.
	Finalize(doc *document.Document) error
}

// Runnable is a pipeline instance that has already classified its
// input and is ready to do its (possibly slow, I/O-bound) build work.
type Runnable interface {
	Run(ctx context.Context) (Output, error)
}

// TryAcceptFunc classifies a dispatcher Input. It returns ok=false with
// a nil error when the input simply isn't this pipeline's kind (the
// AssetNotMatched case — Chain tries the next classifier).
// A non-nil error means the input WAS this kind but is malformed, and
// must propagate immediately rather than fall through to another
// pipeline.
type TryAcceptFunc func(env *Env, in asset.Input) (Runnable, bool, error)

// Chain tries each classifier in order, returning the first match. If
// none match, it returns ok=false with a nil error; the caller reports
// that case with NotMatched.
func Chain(classifiers ...TryAcceptFunc) TryAcceptFunc {
	return func(env *Env, in asset.Input) (Runnable, bool, error) {
		for _, try := range classifiers {
			r, ok, err := try(env, in)
			if err != nil {
				return nil, false, err
			}
			if ok {
				return r, true, nil
			}
		}
		return nil, false, nil
	}
}

// NotMatched builds the canonical AssetNotMatched error for a fully
// exhausted classifier chain.
func NotMatched(in asset.Input) error {
	return trunkerr.New(trunkerr.ReasonAssetNotMatched,
		"no pipeline recognizes element "+strconv.Itoa(in.ID)+" (attrs "+in.Attrs.Render()+")")
}

// writeWithDigest is a small helper shared by the static-asset
// pipelines: it computes the public file name for data (with an
// optional content-hash suffix) plus its SRI record. It writes nothing;
// callers write the bytes with writeStaged.
func writeWithDigest(dir, stem, ext string, data []byte, fileHash bool, algo digest.Algorithm) (name string, out digest.Output, err error) {
	name = stem
	if ext != "" {
		name += "." + ext
	}
	if fileHash {
		name = asset.HashedName(stem, ext, data)
	}
	out = digest.Generate(algo, data)
	return name, out, nil
}

// writeStaged writes data to name under dir, creating dir as needed.
func writeStaged(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsWrite, dir, err)
	}
	dest := filepath.Join(dir, name)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsWrite, dest, err)
	}
	return nil
}
