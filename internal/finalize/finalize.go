// Package finalize applies every pipeline's synchronous document
// mutation in order, injects the base URL and autoreload script, and
// writes the finished index.html. Grounded on the finalize half of
// src/pipelines/html.rs.
package finalize

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/trunkrs/trunk/internal/config"
	"github.com/trunkrs/trunk/internal/document"
	"github.com/trunkrs/trunk/internal/minify"
	"github.com/trunkrs/trunk/internal/pipeline"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// publicURLMarkerAttr names the marker attribute a source `<base>`
// element may carry; Write strips it from every element that has it
// once the base href has been set.
const publicURLMarkerAttr = "data-trunk-public-url"

// Finalizer owns the document for the duration of a build's finalize
// phase; nothing else may mutate it concurrently.
type Finalizer struct {
	cfg *config.BuildConfig
}

// New returns a Finalizer bound to cfg.
func New(cfg *config.BuildConfig) *Finalizer {
	return &Finalizer{cfg: cfg}
}

// ApplyOutputs runs every pipeline output's Finalize against doc, in
// the order of the outputs slice (the engine passes them in document
// order, after every pipeline has completed). Does not touch the Rust application output, whose
// Finalize takes an extra config argument and is applied separately by
// the caller.
func (f *Finalizer) ApplyOutputs(doc *document.Document, outputs []pipeline.Output) error {
	for _, out := range outputs {
		if out == nil {
			continue
		}
		if err := out.Finalize(doc); err != nil {
			return trunkerr.Wrap(trunkerr.ReasonAssetFinalizeFailed, "finalizing pipeline output", err)
		}
	}
	return nil
}

// Write injects the base href and autoreload script, then writes the
// minified (in release mode) HTML to StagingDist/index.html. Call
// after every pipeline output (including the Rust application's) has
// been applied to doc.
func (f *Finalizer) Write(doc *document.Document) error {
	f.injectPublicURL(doc)
	f.injectAutoreload(doc)

	html, err := doc.HTML()
	if err != nil {
		return err
	}
	if f.cfg.Release {
		html = minify.HTML(html, nil)
	}

	dest := filepath.Join(f.cfg.StagingDist, "index.html")
	if err := os.MkdirAll(f.cfg.StagingDist, 0o755); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsWrite, f.cfg.StagingDist, err)
	}
	if err := os.WriteFile(dest, html, 0o644); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsWrite, dest, err)
	}
	return nil
}

// injectPublicURL sets the href of every `<base>` in `<head>` to the
// configured public URL (appending a new `<base>` when there is none),
// then removes the marker attribute from every element carrying it.
func (f *Finalizer) injectPublicURL(doc *document.Document) {
	if f.cfg.PublicURL == "" {
		return
	}
	if doc.Exists("html head base") {
		doc.SetAttr("html head base", "href", f.cfg.PublicURL)
	} else {
		doc.AppendHTML("html head", fmt.Sprintf(`<base href="%s"/>`, f.cfg.PublicURL))
	}
	doc.RemoveAttr("["+publicURLMarkerAttr+"]", publicURLMarkerAttr)
}

// injectAutoreload appends the WebSocket-driven live-reload script to
// `<body>`, pointed at the dev server's autoreload endpoint.
func (f *Finalizer) injectAutoreload(doc *document.Document) {
	if f.cfg.Release || f.cfg.AutoreloadWS == "" {
		return
	}
	script := fmt.Sprintf(`<script type="module">
const ws = new WebSocket("%s");
ws.onmessage = (ev) => {
  if (JSON.parse(ev.data).type === "reload") { window.location.reload(); }
};
</script>`, f.cfg.AutoreloadWS)
	doc.AppendHTML("html body", script)
}
