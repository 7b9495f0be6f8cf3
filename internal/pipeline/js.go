package pipeline

import (
	"context"

	"github.com/trunkrs/trunk/internal/asset"
	"github.com/trunkrs/trunk/internal/digest"
	"github.com/trunkrs/trunk/internal/document"
	"github.com/trunkrs/trunk/internal/logx"
	"github.com/trunkrs/trunk/internal/minify"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// Js copies (and, unless suppressed, minifies) a `<script data-trunk
// src="...">` asset, hashing its output name and rewriting the element
// to point at the staged file while stripping every `data-trunk*`
// attribute and the original `src`. Grounded on src/pipelines/js.rs.
type Js struct {
	id          int
	file        *asset.File
	minify      bool
	fileHash    bool
	stagingDist string
	publicURL   string
	algo        digest.Algorithm
	keepAttrs   *asset.Attrs
	log         *logx.Logger
}

// TryAcceptJs classifies `script[data-trunk][src]` elements that are
// not otherwise claimed by a more specific rel (rust main scripts are
// filtered out upstream by the dispatcher).
func TryAcceptJs(env *Env, in asset.Input) (Runnable, bool, error) {
	if in.Kind != "script" {
		return nil, false, nil
	}
	src, ok := in.Attrs.Get("src")
	if !ok || src == "" {
		return nil, false, trunkerr.New(trunkerr.ReasonPipelineScriptSrcMissing, "script missing src")
	}
	f, err := asset.Open(in.ManifestDir, src)
	if err != nil {
		return nil, false, err
	}

	_, noMinify := in.Attrs.Get("data-no-minify")
	algo := env.Config.IntegrityOrDefault(mustGet(in.Attrs, "data-integrity"))

	return &Js{
		id:          in.ID,
		file:        f,
		minify:      env.Config.MinifyAsset(noMinify),
		fileHash:    env.Config.FileHash,
		stagingDist: env.Config.StagingDist,
		publicURL:   env.Config.PublicURL,
		algo:        algo,
		keepAttrs:   in.Attrs.WithoutPrefixAndKeys("data-trunk", "src"),
		log:         env.Log,
	}, true, nil
}

// Run reads, optionally minifies, hashes, and writes the script.
func (p *Js) Run(ctx context.Context) (Output, error) {
	raw, err := p.file.ReadToString()
	if err != nil {
		return nil, err
	}
	data := []byte(raw)
	if p.minify {
		data = minify.JS(data, p.log)
	}

	name, out, err := writeWithDigest(p.stagingDist, p.file.FileStem, p.file.Ext, data, p.fileHash, p.algo)
	if err != nil {
		return nil, err
	}
	if err := writeStaged(p.stagingDist, name, data); err != nil {
		return nil, err
	}
	return &jsOutput{id: p.id, name: name, publicURL: p.publicURL, digest: out, keepAttrs: p.keepAttrs}, nil
}

type jsOutput struct {
	id        int
	name      string
	publicURL string
	digest    digest.Output
	keepAttrs *asset.Attrs
}

// Finalize rewrites the element's src to the staged file and
// re-applies every attribute that survived the data-trunk* filter.
func (o *jsOutput) Finalize(doc *document.Document) error {
	sel := document.IDSelector(o.id)
	for _, k := range o.keepAttrs.Keys() {
		v, _ := o.keepAttrs.Get(k)
		doc.SetAttr(sel, k, v)
	}
	doc.SetAttr(sel, "src", o.publicURL+o.name)
	if v := o.digest.ToValue(); v != "" {
		doc.SetAttr(sel, "integrity", v)
		doc.SetAttr(sel, "crossorigin", "anonymous")
	}
	doc.RemoveAttr(sel, "data-trunk")
	doc.RemoveAttr(sel, "data-trunk-id")
	return nil
}
