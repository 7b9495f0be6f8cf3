package rustapp

import (
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/trunkrs/trunk/internal/config"
	"github.com/trunkrs/trunk/internal/document"
	"github.com/trunkrs/trunk/internal/integrity"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// initWithObjectSince is the wasm-bindgen version at which the
// generated loader's init() takes a { module_or_path } options object
// instead of a bare URL string.
var initWithObjectSince = semver.MustParse("0.2.93")

// initWithObject reports whether the resolved wasm-bindgen version
// generates a loader whose init() expects { module_or_path } rather
// than a plain string. An unparsable version conservatively falls back
// to the pre-0.2.93 string form.
func initWithObject(bindgenVersion string) bool {
	v, err := semver.NewVersion(strings.TrimPrefix(bindgenVersion, "v"))
	if err != nil {
		return false
	}
	return !v.LessThan(initWithObjectSince)
}

// Output is a RustApp build's result: everything finalize needs to
// mutate the document. Grounded on RustAppOutput in
// src/pipelines/rust/output.rs.
type Output struct {
	ID                 int
	HasID              bool
	Type               AppType
	JSOutput           string
	WasmOutput         string
	TSOutput           string
	LoaderShimOutput   string
	CrossOrigin        string
	Integrities        *integrity.Builder
	ImportBindings     bool
	ImportBindingsName string
	InitWithObject     bool
}

// Finalize mutates the document for this app. It takes the build
// config as an extra argument, so it does not satisfy pipeline.Output
// and the engine calls it directly. Worker modules are stripped
// entirely from the document (they're loaded at runtime by app code);
// main modules get their source `<link>` replaced with the init
// script, or appended to `<body>` when no element was present (the
// implicit default-init case).
func (o *Output) Finalize(doc *document.Document, cfg *config.BuildConfig) error {
	if o.Type == AppTypeWorker {
		if o.HasID {
			doc.Remove(document.IDSelector(o.ID))
		}
		return nil
	}
	if !cfg.InjectScripts {
		return nil
	}

	params := map[string]string{}
	for k, v := range cfg.PatternParams {
		params[k] = v
	}
	params["base"] = cfg.PublicURL
	params["js"] = o.JSOutput
	params["wasm"] = o.WasmOutput
	params["crossorigin"] = o.CrossOrigin

	if cfg.PatternPreload != "" {
		doc.AppendHTML("html head", PatternEvaluate(cfg.PatternPreload, params, os.ReadFile))
	} else {
		for _, rec := range o.Integrities.Records() {
			doc.AppendHTML("html head", integrity.RenderLink(cfg.PublicURL, rec))
		}
	}

	var script string
	if cfg.PatternScript != "" {
		script = PatternEvaluate(cfg.PatternScript, params, os.ReadFile)
	} else {
		script = o.defaultInitializer(cfg)
	}

	if o.HasID {
		doc.ReplaceWithHTML(document.IDSelector(o.ID), script)
		return nil
	}
	if doc.Len("html body") == 0 {
		return trunkerr.New(trunkerr.ReasonRustManyMainBinary,
			`document has neither a <link data-trunk rel="rust"/> nor a <body>; either one must be present`)
	}
	doc.AppendHTML("html body", script)
	return nil
}

// PatternEvaluate substitutes `{key}` placeholders in template with
// params, reading `@file` values from disk via readFile. Grounded on
// pattern_evaluate in src/pipelines/rust/output.rs.
func PatternEvaluate(template string, params map[string]string, readFile func(string) ([]byte, error)) string {
	result := template
	for k, v := range params {
		placeholder := "{" + k + "}"
		if strings.HasPrefix(v, "@") {
			path := strings.TrimPrefix(v, "@")
			if data, err := readFile(path); err == nil {
				result = strings.ReplaceAll(result, placeholder, string(data))
			}
			continue
		}
		result = strings.ReplaceAll(result, placeholder, v)
	}
	return result
}

func nonceAttr(nonce string) string {
	if nonce == "" {
		return ""
	}
	return ` nonce="` + nonce + `"`
}

func (o *Output) defaultInitializer(cfg *config.BuildConfig) string {
	importClause, bindLine := "", ""
	if o.ImportBindings {
		name := o.ImportBindingsName
		if name == "" {
			name = "wasmBindings"
		}
		importClause = ", * as bindings"
		bindLine = fmt.Sprintf("\nwindow.%s = bindings;\n", name)
	}

	const fireEvent = "\ndispatchEvent(new CustomEvent(\"TrunkApplicationStarted\", {detail: {wasm}}));\n"

	initCall := fmt.Sprintf("'%s%s'", cfg.PublicURL, o.WasmOutput)
	if o.InitWithObject {
		initCall = fmt.Sprintf("{ module_or_path: '%s%s' }", cfg.PublicURL, o.WasmOutput)
	}

	return fmt.Sprintf(
		"\n<script type=\"module\"%s>\nimport init%s from '%s%s';\nconst wasm = await init(%s);\n%s%s</script>",
		nonceAttr(cfg.CreateNonce), importClause, cfg.PublicURL, o.JSOutput, initCall,
		bindLine, fireEvent,
	)
}
