package pipeline

import (
	"context"
	"mime"
	"os"

	"github.com/trunkrs/trunk/internal/asset"
	"github.com/trunkrs/trunk/internal/digest"
	"github.com/trunkrs/trunk/internal/document"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// Icon copies a favicon-like asset, hashing and SRI-protecting it like
// any other static file. Only PNG icons are eligible for a future
// minification pass; other formats (ico, svg) are always copied as-is.
// Grounded on src/pipelines/icon.rs.
type Icon struct {
	id          int
	file        *asset.File
	fileHash    bool
	stagingDist string
	publicURL   string
	algo        digest.Algorithm
}

// TryAcceptIcon classifies `link[rel="icon"]` elements.
func TryAcceptIcon(env *Env, in asset.Input) (Runnable, bool, error) {
	if in.Kind != "link" {
		return nil, false, nil
	}
	rel, _ := in.Attrs.Get("rel")
	if rel != "icon" {
		return nil, false, nil
	}
	href, ok := in.Attrs.Get("href")
	if !ok || href == "" {
		return nil, false, trunkerr.New(trunkerr.ReasonPipelineLinkHrefMissing, "icon link missing href")
	}
	f, err := asset.Open(in.ManifestDir, href)
	if err != nil {
		return nil, false, err
	}
	algo := env.Config.IntegrityOrDefault(mustGet(in.Attrs, "data-integrity"))

	return &Icon{
		id:          in.ID,
		file:        f,
		fileHash:    env.Config.FileHash,
		stagingDist: env.Config.StagingDist,
		publicURL:   env.Config.PublicURL,
		algo:        algo,
	}, true, nil
}

// Run copies the icon, identifying its mime type for future
// format-specific processing even though only plain copy is performed
// today.
func (p *Icon) Run(ctx context.Context) (Output, error) {
	data, err := os.ReadFile(p.file.Path)
	if err != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonFsRead, p.file.Path, err)
	}
	_ = mime.TypeByExtension("." + p.file.Ext) // reserved for a future PNG-specific pass

	name, out, err := writeWithDigest(p.stagingDist, p.file.FileStem, p.file.Ext, data, p.fileHash, p.algo)
	if err != nil {
		return nil, err
	}
	if err := writeStaged(p.stagingDist, name, data); err != nil {
		return nil, err
	}
	return &iconOutput{id: p.id, name: name, publicURL: p.publicURL, digest: out}, nil
}

type iconOutput struct {
	id        int
	name      string
	publicURL string
	digest    digest.Output
}

// Finalize rewrites the icon link's href.
func (o *iconOutput) Finalize(doc *document.Document) error {
	sel := document.IDSelector(o.id)
	doc.SetAttr(sel, "href", o.publicURL+o.name)
	doc.RemoveAttr(sel, "data-trunk")
	if v := o.digest.ToValue(); v != "" {
		doc.SetAttr(sel, "integrity", v)
		doc.SetAttr(sel, "crossorigin", "anonymous")
	}
	doc.RemoveAttr(sel, "data-trunk-id")
	return nil
}
