package pipeline

import (
	"context"
	"strings"

	"github.com/trunkrs/trunk/internal/asset"
	"github.com/trunkrs/trunk/internal/document"
	"github.com/trunkrs/trunk/internal/minify"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// contentType selects how Inline splices its asset's content back into
// the document. Grounded on ContentType in src/pipelines/inline.rs.
type contentType string

const (
	contentHTML   contentType = "html"
	contentSVG    contentType = "svg"
	contentCSS    contentType = "css"
	contentJS     contentType = "js"
	contentModule contentType = "module"
)

func contentTypeFromExt(ext string) (contentType, bool) {
	switch ext {
	case "html", "htm":
		return contentHTML, true
	case "svg":
		return contentSVG, true
	case "css":
		return contentCSS, true
	case "js":
		return contentJS, true
	case "mjs":
		return contentModule, true
	default:
		return "", false
	}
}

// Inline splices a file's content directly into the document in place
// of the source element: raw for html/svg, wrapped in `<style>` for
// css, `<script>`/`<script type="module">` for js/mjs. Grounded on
// src/pipelines/inline.rs.
type Inline struct {
	id     int
	file   *asset.File
	kind   contentType
	minify bool
	nonce  string
}

// TryAcceptInline classifies `link[rel="inline"]` elements.
func TryAcceptInline(env *Env, in asset.Input) (Runnable, bool, error) {
	if in.Kind != "link" {
		return nil, false, nil
	}
	rel, _ := in.Attrs.Get("rel")
	if rel != "inline" {
		return nil, false, nil
	}
	href, ok := in.Attrs.Get("href")
	if !ok || href == "" {
		return nil, false, trunkerr.New(trunkerr.ReasonPipelineLinkHrefMissing, "inline link missing href")
	}
	f, err := asset.Open(in.ManifestDir, href)
	if err != nil {
		return nil, false, err
	}

	typeOverride, _ := in.Attrs.Get("data-type")
	kind, ok := contentTypeFromExt(f.Ext)
	if typeOverride != "" {
		kind, ok = contentType(typeOverride), true
	}
	if !ok {
		return nil, false, trunkerr.New(trunkerr.ReasonPipelineInlineTypeUnsupported, f.Ext)
	}

	_, noMinify := in.Attrs.Get("data-no-minify")

	return &Inline{
		id:     in.ID,
		file:   f,
		kind:   kind,
		minify: env.Config.MinifyAsset(noMinify),
		nonce:  env.Config.CreateNonce,
	}, true, nil
}

// Run reads and, for css/js/module/html content, minifies the asset.
func (p *Inline) Run(ctx context.Context) (Output, error) {
	raw, err := p.file.ReadToString()
	if err != nil {
		return nil, err
	}
	data := []byte(raw)
	if p.minify {
		switch p.kind {
		case contentCSS:
			data = minify.CSS(data, nil)
		case contentJS, contentModule:
			data = minify.JS(data, nil)
		case contentHTML:
			data = minify.HTML(data, nil)
		}
	}
	return &inlineOutput{id: p.id, kind: p.kind, content: string(data), nonce: p.nonce}, nil
}

type inlineOutput struct {
	id      int
	kind    contentType
	content string
	nonce   string
}

// Finalize replaces the source element with its inlined content.
func (o *inlineOutput) Finalize(doc *document.Document) error {
	sel := document.IDSelector(o.id)
	var fragment string
	switch o.kind {
	case contentHTML, contentSVG:
		fragment = o.content
	case contentCSS:
		nonceAttr := ""
		if o.nonce != "" {
			nonceAttr = ` nonce="` + o.nonce + `"`
		}
		fragment = "<style" + nonceAttr + ">" + o.content + "</style>"
	case contentJS:
		fragment = o.scriptTag("")
	case contentModule:
		fragment = o.scriptTag(` type="module"`)
	}
	doc.ReplaceWithHTML(sel, fragment)
	return nil
}

func (o *inlineOutput) scriptTag(typeAttr string) string {
	var b strings.Builder
	b.WriteString("<script")
	b.WriteString(typeAttr)
	if o.nonce != "" {
		b.WriteString(` nonce="`)
		b.WriteString(o.nonce)
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.WriteString(o.content)
	b.WriteString("</script>")
	return b.String()
}
