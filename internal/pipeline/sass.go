package pipeline

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/trunkrs/trunk/internal/asset"
	"github.com/trunkrs/trunk/internal/digest"
	"github.com/trunkrs/trunk/internal/document"
	"github.com/trunkrs/trunk/internal/logx"
	"github.com/trunkrs/trunk/internal/toolcache"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// Sass compiles a `.sass`/`.scss` file via the cached `sass` executable,
// then behaves like Css for the rest of the pipeline (minify, hash,
// write, SRI, rewrite). Grounded on src/pipelines/sass.rs.
type Sass struct {
	id          int
	file        *asset.File
	release     bool
	minify      bool
	fileHash    bool
	stagingDist string
	publicURL   string
	algo        digest.Algorithm
	tools       *toolcache.Cache
	toolVersion string
	offline     bool
	log         *logx.Logger
}

// TryAcceptSass classifies `link[rel="sass"]` and `link[rel="scss"]`
// elements.
func TryAcceptSass(env *Env, in asset.Input) (Runnable, bool, error) {
	if in.Kind != "link" {
		return nil, false, nil
	}
	rel, _ := in.Attrs.Get("rel")
	if rel != "sass" && rel != "scss" {
		return nil, false, nil
	}
	href, ok := in.Attrs.Get("href")
	if !ok || href == "" {
		return nil, false, trunkerr.New(trunkerr.ReasonPipelineLinkHrefMissing, "sass link missing href")
	}
	f, err := asset.Open(in.ManifestDir, href)
	if err != nil {
		return nil, false, err
	}
	_, noMinify := in.Attrs.Get("data-no-minify")
	algo := env.Config.IntegrityOrDefault(mustGet(in.Attrs, "data-integrity"))

	return &Sass{
		id:          in.ID,
		file:        f,
		release:     env.Config.Release,
		minify:      env.Config.MinifyAsset(noMinify),
		fileHash:    env.Config.FileHash,
		stagingDist: env.Config.StagingDist,
		publicURL:   env.Config.PublicURL,
		algo:        algo,
		tools:       env.Tools,
		toolVersion: env.Config.Tools.Sass,
		offline:     env.Config.Offline,
		log:         env.Log,
	}, true, nil
}

// Run invokes sass to compile the stylesheet to plain CSS, then
// minifies and hashes the result exactly like the Css pipeline.
func (p *Sass) Run(ctx context.Context) (Output, error) {
	tool, err := p.tools.Get(toolcache.Sass, p.toolVersion, p.offline)
	if err != nil {
		return nil, err
	}

	args := []string{p.file.Path}
	if p.minify {
		args = append(args, "--style=compressed")
	} else {
		args = append(args, "--style=expanded")
	}
	if p.release {
		args = append(args, "--no-source-map")
	} else {
		args = append(args, "--source-map")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, tool.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonToolchainCommandFailed, stderr.String(), err)
	}

	minified := minifyCSSIfEnabled(stdout.Bytes(), p.minify, p.log)

	name, out, err := writeWithDigest(p.stagingDist, p.file.FileStem, "css", minified, p.fileHash, p.algo)
	if err != nil {
		return nil, err
	}
	if err := writeStaged(p.stagingDist, name, minified); err != nil {
		return nil, err
	}
	return &cssOutput{id: p.id, name: name, publicURL: p.publicURL, digest: out}, nil
}
