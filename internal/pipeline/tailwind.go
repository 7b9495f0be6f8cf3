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

// TailwindCss runs the standalone tailwindcss CLI over an input
// stylesheet against the project's configured content globs, producing
// plain CSS that is then minified, hashed, and written exactly like
// Css. Grounded on src/pipelines/tailwind_css.rs.
type TailwindCss struct {
	id          int
	file        *asset.File
	configPath  string
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

// TryAcceptTailwindCss classifies `link[rel="tailwind-css"]` elements.
func TryAcceptTailwindCss(env *Env, in asset.Input) (Runnable, bool, error) {
	if in.Kind != "link" {
		return nil, false, nil
	}
	rel, _ := in.Attrs.Get("rel")
	if rel != "tailwind-css" {
		return nil, false, nil
	}
	href, ok := in.Attrs.Get("href")
	if !ok || href == "" {
		return nil, false, trunkerr.New(trunkerr.ReasonPipelineLinkHrefMissing, "tailwind-css link missing href")
	}
	f, err := asset.Open(in.ManifestDir, href)
	if err != nil {
		return nil, false, err
	}
	configPath, _ := in.Attrs.Get("data-config")
	_, noMinify := in.Attrs.Get("data-no-minify")
	algo := env.Config.IntegrityOrDefault(mustGet(in.Attrs, "data-integrity"))

	return &TailwindCss{
		id:          in.ID,
		file:        f,
		configPath:  configPath,
		minify:      env.Config.MinifyAsset(noMinify),
		fileHash:    env.Config.FileHash,
		stagingDist: env.Config.StagingDist,
		publicURL:   env.Config.PublicURL,
		algo:        algo,
		tools:       env.Tools,
		toolVersion: env.Config.Tools.TailwindCss,
		offline:     env.Config.Offline,
		log:         env.Log,
	}, true, nil
}

// Run invokes tailwindcss with `-i <input> -o -` (stdout output) so the
// result can flow straight into the shared minify/hash/write path.
func (p *TailwindCss) Run(ctx context.Context) (Output, error) {
	tool, err := p.tools.Get(toolcache.TailwindCss, p.toolVersion, p.offline)
	if err != nil {
		return nil, err
	}

	args := []string{"-i", p.file.Path, "-o", "-"}
	if p.configPath != "" {
		args = append(args, "-c", p.configPath)
	}
	if p.minify {
		args = append(args, "--minify")
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
