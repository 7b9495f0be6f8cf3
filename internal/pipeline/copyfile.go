package pipeline

import (
	"context"

	"github.com/trunkrs/trunk/internal/asset"
	"github.com/trunkrs/trunk/internal/document"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// CopyFile copies `<link data-trunk rel="copy-file" href="...">` verbatim
// into the staging directory, never renamed or hashed. Grounded on
// src/pipelines/copy_file.rs.
type CopyFile struct {
	id          int
	file        *asset.File
	stagingDist string
}

// TryAcceptCopyFile classifies `link[rel="copy-file"]` elements.
func TryAcceptCopyFile(env *Env, in asset.Input) (Runnable, bool, error) {
	if in.Kind != "link" {
		return nil, false, nil
	}
	rel, _ := in.Attrs.Get("rel")
	if rel != "copy-file" {
		return nil, false, nil
	}
	href, ok := in.Attrs.Get("href")
	if !ok || href == "" {
		return nil, false, trunkerr.New(trunkerr.ReasonPipelineLinkHrefMissing, "copy-file link missing href")
	}
	f, err := asset.Open(in.ManifestDir, href)
	if err != nil {
		return nil, false, err
	}
	return &CopyFile{id: in.ID, file: f, stagingDist: env.Config.StagingDist}, true, nil
}

// Run copies the file into the staging directory unhashed.
func (p *CopyFile) Run(ctx context.Context) (Output, error) {
	if _, err := p.file.Copy(p.stagingDist, false); err != nil {
		return nil, err
	}
	return &copyFileOutput{id: p.id}, nil
}

type copyFileOutput struct {
	id int
}

// Finalize removes the source `<link>` element; copy-file has no HTML
// representation in the output document.
func (o *copyFileOutput) Finalize(doc *document.Document) error {
	doc.Remove(document.IDSelector(o.id))
	return nil
}
