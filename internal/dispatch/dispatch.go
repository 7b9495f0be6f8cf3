// Package dispatch parses the source index.html, assigns a stable
// data-trunk-id to every asset element, and separates main and worker
// Rust links from the other assets. Pipeline classification of the
// other assets and the implicit default Rust application are left to
// the engine. Grounded on the dispatch half of src/pipelines/html.rs.
package dispatch

import (
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/trunkrs/trunk/internal/asset"
	"github.com/trunkrs/trunk/internal/document"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// Result is everything the engine needs to run a build: the parsed
// Document, the non-rust asset elements, at most one main Rust element
// (explicit; the engine synthesizes a default when nil), and zero or
// more worker Rust elements.
type Result struct {
	Doc                *document.Document
	Assets             []asset.Input
	RustElement        *asset.Input
	WorkerRustElements []asset.Input
}

// Dispatch parses html, assigns ids, and classifies every
// `[data-trunk]` element. manifestDir is the directory the source
// index.html lives in.
func Dispatch(html []byte, manifestDir string, allowSelfClosingScript bool) (*Result, error) {
	doc, err := document.New(html, document.Options{AllowSelfClosingScript: allowSelfClosingScript})
	if err != nil {
		return nil, err
	}

	sel := doc.Select(`link[data-trunk], script[data-trunk]`)

	var assets []asset.Input
	var rustElement *asset.Input
	var workerRustElements []asset.Input
	mainRustCount := 0

	id := 0
	sel.Each(func(_ int, s *goquery.Selection) {
		thisID := id
		id++
		s.SetAttr("data-trunk-id", strconv.Itoa(thisID))

		kind, isScript := nodeKind(s)
		attrs := extractAttrs(s)

		in := asset.Input{ID: thisID, Kind: kind, Attrs: attrs, ManifestDir: manifestDir, IsScript: isScript}

		rel, _ := attrs.Get("rel")
		if kind == "link" && rel == "rust" {
			dataType, _ := attrs.Get("data-type")
			if dataType == "worker" {
				workerRustElements = append(workerRustElements, in)
				return
			}
			mainRustCount++
			elem := in
			rustElement = &elem
			return
		}
		assets = append(assets, in)
	})

	if mainRustCount > 1 {
		return nil, trunkerr.New(trunkerr.ReasonRustManyMainBinary,
			`found more than one main <link data-trunk rel="rust"/> element; only one main Rust application is supported per document`)
	}

	return &Result{Doc: doc, Assets: assets, RustElement: rustElement, WorkerRustElements: workerRustElements}, nil
}

func nodeKind(s *goquery.Selection) (kind string, isScript bool) {
	if s.Length() == 0 {
		return "", false
	}
	tag := s.Nodes[0].Data
	return tag, tag == "script"
}

func extractAttrs(s *goquery.Selection) *asset.Attrs {
	a := asset.NewAttrs()
	if s.Length() == 0 {
		return a
	}
	for _, attr := range s.Nodes[0].Attr {
		a.Set(attr.Key, attr.Val)
	}
	return a
}
