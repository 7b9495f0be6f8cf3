// Package minify provides the best-effort JS/CSS/HTML minification
// passes used in release builds. Grounded on src/processing/minify.rs;
// any minifier error is logged and the original bytes are returned
// unchanged, so a brittle minifier never breaks a build.
package minify

import (
	"bytes"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/tdewolff/minify/v2"
	mcss "github.com/tdewolff/minify/v2/css"
	mhtml "github.com/tdewolff/minify/v2/html"

	"github.com/trunkrs/trunk/internal/logx"
)

// JS minifies JavaScript source via esbuild's transform API, narrowed
// to just its minify pass.
func JS(src []byte, log *logx.Logger) []byte {
	result := api.Transform(string(src), api.TransformOptions{
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Target:            api.ES2020,
	})
	if len(result.Errors) > 0 {
		if log != nil {
			log.Info("JS minification failed, using original bytes: %s", result.Errors[0].Text)
		}
		return src
	}
	return result.Code
}

var m = newMinifier()

func newMinifier() *minify.M {
	mm := minify.New()
	mm.AddFunc("text/css", mcss.Minify)
	mm.Add("text/html", &mhtml.Minifier{KeepEndTags: true})
	return mm
}

// CSS minifies a stylesheet via tdewolff/minify.
func CSS(src []byte, log *logx.Logger) []byte {
	var buf bytes.Buffer
	if err := m.Minify("text/css", &buf, bytes.NewReader(src)); err != nil {
		if log != nil {
			log.Info("CSS minification failed, using original bytes: %v", err)
		}
		return src
	}
	return buf.Bytes()
}

// HTML minifies a full document, spec-compliant and keeping closing
// tags, matching minify_html::Cfg::spec_compliant() on the Rust side.
func HTML(src []byte, log *logx.Logger) []byte {
	var buf bytes.Buffer
	if err := m.Minify("text/html", &buf, bytes.NewReader(src)); err != nil {
		if log != nil {
			log.Info("HTML minification failed, using original bytes: %v", err)
		}
		return src
	}
	return buf.Bytes()
}
