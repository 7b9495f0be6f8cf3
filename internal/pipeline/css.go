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

// cssRef is the source of a Css pipeline's stylesheet: either an
// external file named by href, or inline content carried in the
// element's data-inline-content attribute. Grounded on CssRef::{Inline,File} in
// src/pipelines/css.rs.
type cssRef struct {
	file    *asset.File
	inline  string
	isFile  bool
}

// Css copies a plain stylesheet, optionally minifying and
// content-hashing it, then rewrites the source element into a
// `<link rel="stylesheet">`. Inline content is also written to the
// staging directory (as style.css, or its hashed form) and linked the
// same way; it is never left inline. Grounded on
// src/pipelines/css.rs.
type Css struct {
	id          int
	ref         cssRef
	minify      bool
	fileHash    bool
	stagingDist string
	publicURL   string
	algo        digest.Algorithm
	log         *logx.Logger
}

// TryAcceptCss classifies `link[rel="css"]` elements.
func TryAcceptCss(env *Env, in asset.Input) (Runnable, bool, error) {
	if in.Kind != "link" {
		return nil, false, nil
	}
	rel, _ := in.Attrs.Get("rel")
	if rel != "css" {
		return nil, false, nil
	}

	var ref cssRef
	if href, ok := in.Attrs.Get("href"); ok && href != "" {
		f, err := asset.Open(in.ManifestDir, href)
		if err != nil {
			return nil, false, err
		}
		ref = cssRef{file: f, isFile: true}
	} else if inline, ok := in.Attrs.Get("data-inline-content"); ok {
		ref = cssRef{inline: inline}
	} else {
		return nil, false, trunkerr.New(trunkerr.ReasonPipelineLinkHrefMissing, "css link missing href")
	}

	_, noMinify := in.Attrs.Get("data-no-minify")
	algo := env.Config.IntegrityOrDefault(mustGet(in.Attrs, "data-integrity"))

	return &Css{
		id:          in.ID,
		ref:         ref,
		minify:      env.Config.MinifyAsset(noMinify),
		fileHash:    env.Config.FileHash,
		stagingDist: env.Config.StagingDist,
		publicURL:   env.Config.PublicURL,
		algo:        algo,
		log:         env.Log,
	}, true, nil
}

func mustGet(a *asset.Attrs, key string) string {
	v, _ := a.Get(key)
	return v
}

// Run reads, optionally minifies, hashes, and writes the stylesheet.
func (p *Css) Run(ctx context.Context) (Output, error) {
	var data []byte
	if p.ref.isFile {
		raw, err := p.ref.file.ReadToString()
		if err != nil {
			return nil, err
		}
		data = []byte(raw)
	} else {
		data = []byte(p.ref.inline)
	}

	minified := minifyCSSIfEnabled(data, p.minify, p.log)

	stem, ext := "style", "css"
	if p.ref.isFile {
		stem, ext = p.ref.file.FileStem, p.ref.file.Ext
	}

	name, out, err := writeWithDigest(p.stagingDist, stem, ext, minified, p.fileHash, p.algo)
	if err != nil {
		return nil, err
	}
	if err := writeStaged(p.stagingDist, name, minified); err != nil {
		return nil, err
	}

	return &cssOutput{id: p.id, name: name, publicURL: p.publicURL, digest: out}, nil
}

// minifyCSSIfEnabled centralizes the minify-policy check shared by Css,
// Sass, and TailwindCss.
func minifyCSSIfEnabled(data []byte, doMinify bool, log *logx.Logger) []byte {
	if !doMinify {
		return data
	}
	return minify.CSS(data, log)
}

type cssOutput struct {
	id        int
	name      string
	publicURL string
	digest    digest.Output
}

// Finalize rewrites the element into a stylesheet <link>.
func (o *cssOutput) Finalize(doc *document.Document) error {
	doc.SetAttr(document.IDSelector(o.id), "rel", "stylesheet")
	doc.SetAttr(document.IDSelector(o.id), "href", o.publicURL+o.name)
	doc.RemoveAttr(document.IDSelector(o.id), "data-trunk")
	doc.RemoveAttr(document.IDSelector(o.id), "data-no-minify")
	doc.RemoveAttr(document.IDSelector(o.id), "data-inline-content")
	if v := o.digest.ToValue(); v != "" {
		doc.SetAttr(document.IDSelector(o.id), "integrity", v)
		doc.SetAttr(document.IDSelector(o.id), "crossorigin", "anonymous")
	}
	doc.RemoveAttr(document.IDSelector(o.id), "data-trunk-id")
	return nil
}
