package pipeline

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/trunkrs/trunk/internal/asset"
	"github.com/trunkrs/trunk/internal/document"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// CopyDir recursively mirrors a directory tree into the staging
// directory, optionally retargeted under a sub-path via
// data-target-path. Grounded on src/pipelines/copy_dir.rs.
type CopyDir struct {
	id          int
	srcDir      string
	targetPath  string // staging-relative destination sub-directory, "" for the root
	stagingDist string
}

// TryAcceptCopyDir classifies `link[rel="copy-dir"]` elements.
func TryAcceptCopyDir(env *Env, in asset.Input) (Runnable, bool, error) {
	if in.Kind != "link" {
		return nil, false, nil
	}
	rel, _ := in.Attrs.Get("rel")
	if rel != "copy-dir" {
		return nil, false, nil
	}
	href, ok := in.Attrs.Get("href")
	if !ok || href == "" {
		return nil, false, trunkerr.New(trunkerr.ReasonPipelineLinkHrefMissing, "copy-dir link missing href")
	}

	src := href
	if !filepath.IsAbs(src) {
		src = filepath.Join(in.ManifestDir, src)
	}
	canon, err := filepath.EvalSymlinks(src)
	if err != nil {
		return nil, false, trunkerr.Wrap(trunkerr.ReasonFsNotExist, src, err)
	}
	info, err := os.Stat(canon)
	if err != nil || !info.IsDir() {
		return nil, false, trunkerr.New(trunkerr.ReasonFsNotExist, canon)
	}

	target, _ := in.Attrs.Get("data-target-path")
	target = filepath.Clean(target)
	if target == "." {
		target = ""
	}
	if strings.HasPrefix(target, "..") || filepath.IsAbs(target) {
		return nil, false, trunkerr.New(trunkerr.ReasonPathEscapesStagingDir, target)
	}

	return &CopyDir{id: in.ID, srcDir: canon, targetPath: target, stagingDist: env.Config.StagingDist}, true, nil
}

// Run recursively copies srcDir into the staging directory.
func (p *CopyDir) Run(ctx context.Context) (Output, error) {
	destRoot := p.stagingDist
	if p.targetPath != "" {
		destRoot = filepath.Join(p.stagingDist, p.targetPath)
	}

	err := filepath.WalkDir(p.srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(p.srcDir, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(destRoot, rel)

		// Guard against a directory entry (e.g. a symlink target) that
		// resolves outside the intended destination tree.
		if !strings.HasPrefix(dest, filepath.Clean(destRoot)+string(filepath.Separator)) && dest != filepath.Clean(destRoot) {
			return trunkerr.New(trunkerr.ReasonPathEscapesStagingDir, dest)
		}

		if d.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		return copyRegularFile(path, dest)
	})
	if err != nil {
		if te, ok := err.(*trunkerr.Error); ok {
			return nil, te
		}
		return nil, trunkerr.Wrap(trunkerr.ReasonFsCopy, p.srcDir, err)
	}
	return &copyDirOutput{id: p.id}, nil
}

func copyRegularFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

type copyDirOutput struct {
	id int
}

// Finalize removes the source `<link>` element.
func (o *copyDirOutput) Finalize(doc *document.Document) error {
	doc.Remove(document.IDSelector(o.id))
	return nil
}
